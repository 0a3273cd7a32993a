package vm

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/aspath"
	"github.com/CSUNetSec/bgpfilter/bgp"
	"github.com/CSUNetSec/bgpfilter/community"
	"github.com/CSUNetSec/bgpfilter/errs"
	"github.com/CSUNetSec/bgpfilter/patricia"
)

// decodeCommunities parses a COMMUNITY attribute value (a flat run of
// 4-byte big-endian community values) into community.Value.
func decodeCommunities(value []byte) ([]community.Value, error) {
	if len(value)%4 != 0 {
		return nil, errs.Errorf("malformed COMMUNITY attribute length %d", len(value))
	}
	out := make([]community.Value, 0, len(value)/4)
	for i := 0; i < len(value); i += 4 {
		out = append(out, community.Value(binary.BigEndian.Uint32(value[i:i+4])))
	}
	return out, nil
}

// MatchRecord is one entry in the match list described by spec.md
// §4.J: pc is the instruction that produced it. Base, Lim and Pos are
// not filled in by emitMatch and are always zero; no byte range of the
// matched BGP segment is recorded. Records are linked newest-first (LIFO with respect to execution
// order).
//
// The temp-heap bump-allocation discipline spec.md §4.L describes is
// honored via Vm.tempAlloc's accounting (so heap exhaustion is still
// detected), but the record itself is an ordinary Go struct linked by
// pointer rather than laid out by hand inside the byte arena — the
// teacher never hand-rolls manual memory layouts either, and doing so
// here would fight Go's GC for no behavioral gain.
type MatchRecord struct {
	Pc         int
	IsMatching bool
	IsPassing  bool
	Tag        uint8
	Base, Lim  int
	Pos        int
	Next       *MatchRecord
}

// emitMatch bump-allocates (for heap-exhaustion accounting) and
// prepends a new MatchRecord, per spec.md §4.G's "every CHKT/CHKA and
// network op... allocates a match record from the temp heap and
// prepends it to the match list."
func (v *Vm) emitMatch(matched bool) {
	if _, err := v.tempAlloc(recordAccountingSize); err != nil {
		return
	}
	rec := &MatchRecord{
		Pc:         v.pc,
		IsMatching: matched,
		IsPassing:  v.curMatch.IsPassing,
		Tag:        v.curMatch.Tag,
		Next:       v.matches,
	}
	v.matches = rec
}

const recordAccountingSize = 48

// Matches returns the head of the newest-first match record list built
// by the most recent Exec.
func (v *Vm) Matches() *MatchRecord { return v.matches }

func (v *Vm) chkAttr(code uint8) (int64, error) {
	if v.msg == nil || v.msg.Type() != bgp.TypeUpdate {
		return 0, nil
	}
	up, err := v.msg.AsUpdate()
	if err != nil {
		return 0, v.fail(errs.ErrMsgAccess, "CHKA")
	}
	_, ok, err := up.GetAttribute(code)
	if err != nil {
		return 0, v.fail(errs.ErrMsgAccess, "CHKA")
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

// netOp gathers the addresses named by set, then tests each against
// both the IPv4 and IPv6 tries popped from the stack, per the relation
// op names.
func (v *Vm) netOp(op Op, set NetSet) (int64, error) {
	idx6, err := v.pop()
	if err != nil {
		return 0, err
	}
	idx4, err := v.pop()
	if err != nil {
		return 0, err
	}
	var t4, t6 *patricia.Trie
	if idx4 >= 0 && int(idx4) < len(v.tries4) {
		t4 = v.tries4[idx4]
	}
	if idx6 >= 0 && int(idx6) < len(v.tries6) {
		t6 = v.tries6[idx6]
	}

	prefixes, err := v.collectPrefixes(set)
	if err != nil {
		return 0, err
	}

	for _, p := range prefixes {
		var t *patricia.Trie
		if p.Family() == addr.FamilyV4 {
			t = t4
		} else {
			t = t6
		}
		if t == nil {
			continue
		}
		if relationMatches(op, t, p) {
			return 1, nil
		}
	}
	return 0, nil
}

func relationMatches(op Op, t *patricia.Trie, p addr.Prefix) bool {
	raw := addr.RawPrefix{Family: p.Family(), Width: p.Width, Bytes: p.Bytes}
	switch op {
	case OpExct:
		_, ok := t.ExactMatch(raw)
		return ok
	case OpSubn:
		return t.IsSubnetOf(raw)
	case OpSupn:
		return t.IsSupernetOf(raw)
	case OpRelt:
		return t.IsRelatedOf(raw)
	}
	return false
}

func (v *Vm) collectPrefixes(set NetSet) ([]addr.Prefix, error) {
	if v.msg == nil || v.msg.Type() != bgp.TypeUpdate {
		return nil, nil
	}
	up, err := v.msg.AsUpdate()
	if err != nil {
		return nil, v.fail(errs.ErrMsgAccess, "netOp")
	}
	switch set {
	case NetNLRI:
		return up.MultiprotocolPrefixes(addr.AfiIPv4, addr.SafiUnicast, false, false)
	case NetMPReach:
		return up.MultiprotocolPrefixes(addr.AfiIPv6, addr.SafiUnicast, false, false)
	case NetWithdrawn:
		return up.MultiprotocolPrefixes(addr.AfiIPv4, addr.SafiUnicast, false, true)
	case NetMPUnreach:
		return up.MultiprotocolPrefixes(addr.AfiIPv6, addr.SafiUnicast, false, true)
	case NetAllNLRI:
		v4, err := up.MultiprotocolPrefixes(addr.AfiIPv4, addr.SafiUnicast, false, false)
		if err != nil {
			return nil, err
		}
		v6, err := up.MultiprotocolPrefixes(addr.AfiIPv6, addr.SafiUnicast, false, false)
		if err != nil {
			return nil, err
		}
		return append(v4, v6...), nil
	case NetAllWithdrawn:
		v4, err := up.MultiprotocolPrefixes(addr.AfiIPv4, addr.SafiUnicast, false, true)
		if err != nil {
			return nil, err
		}
		v6, err := up.MultiprotocolPrefixes(addr.AfiIPv6, addr.SafiUnicast, false, true)
		if err != nil {
			return nil, err
		}
		return append(v4, v6...), nil
	}
	return nil, nil
}

func (v *Vm) asMatch() (int64, error) {
	idx, err := v.pop()
	if err != nil {
		return 0, err
	}
	if idx < 0 || int(idx) >= len(v.nfaPrograms) {
		return 0, v.fail(errs.ErrBadOperand, "ASMTCH")
	}
	if v.msg == nil || v.msg.Type() != bgp.TypeUpdate {
		return 0, nil
	}
	up, err := v.msg.AsUpdate()
	if err != nil {
		return 0, v.fail(errs.ErrMsgAccess, "ASMTCH")
	}
	realPath, err := up.RealAsPath()
	if err != nil {
		return 0, v.fail(errs.ErrMsgAccess, "ASMTCH")
	}
	res := aspath.Run(v.nfaPrograms[idx], realPath)
	if res.Matched {
		return 1, nil
	}
	return 0, nil
}

func (v *Vm) comMatch(all bool) (int64, error) {
	idx, err := v.pop()
	if err != nil {
		return 0, err
	}
	if idx < 0 || int(idx) >= len(v.comIndexes) {
		return 0, v.fail(errs.ErrBadOperand, "COMTCH/ACOMTC")
	}
	if v.msg == nil || v.msg.Type() != bgp.TypeUpdate {
		return 0, nil
	}
	up, err := v.msg.AsUpdate()
	if err != nil {
		return 0, v.fail(errs.ErrMsgAccess, "COMTCH/ACOMTC")
	}
	attr, ok, err := up.GetAttribute(bgp.AttrCommunity)
	if err != nil {
		return 0, v.fail(errs.ErrMsgAccess, "COMTCH/ACOMTC")
	}
	var communities []community.Value
	if ok {
		communities, err = decodeCommunities(attr.Value)
		if err != nil {
			return 0, v.fail(errs.ErrBadAttrType, "COMTCH/ACOMTC")
		}
	}
	idxObj := v.comIndexes[idx]
	var res bool
	if all {
		res = idxObj.Acomtc(communities)
	} else {
		res = idxObj.Comtch(communities)
	}
	if res {
		return 1, nil
	}
	return 0, nil
}
