// Package rib implements the RIB-entry-to-UPDATE rebuilder described
// in spec.md §4.E: given one NLRI prefix and the TPA bytes of a
// TABLE_DUMP/TABLE_DUMPV2 RIB entry, synthesize a fresh BGP UPDATE
// message carrying that single prefix.
//
// It is grounded on the teacher's protocol/rib.go RIB-entry attribute
// parsing (peer index / timestamp / attrLen framing) and
// protocol/bgp.go's readAttrs MP_REACH/MP_UNREACH field layout, but
// the operation itself — resynthesizing a standalone UPDATE from a RIB
// snapshot entry — has no teacher equivalent; the teacher only ever
// decodes a RIB entry into a protobuf tree, it never re-serializes one.
package rib

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/bgp"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// Flag controls how Rebuild treats the source RIB entry.
type Flag uint8

const (
	FlagRIBV2 Flag = 1 << iota
	FlagStrictRFC6396
	FlagStripUnreach
	FlagClearUnreach
	FlagEXMSG
)

const (
	bgpHeaderLen = 19
	markerLen    = 16
	maxLenDefault = 4096
	maxLenExmsg   = 65535
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// Rebuild synthesizes a BGP UPDATE carrying exactly pfx, with a TPA
// derived from srcAttrs per the algorithm in spec.md §4.E.
func Rebuild(pfx addr.Prefix, srcAttrs []byte, flags Flag) (*bgp.BgpMessage, error) {
	msgFlags := bgp.Flag(0)
	addPath := pfx.IsAddPath
	if flags.has(FlagRIBV2) {
		msgFlags |= bgp.FlagASN32BIT
	}
	if addPath {
		msgFlags |= bgp.FlagADDPATH
	}
	if flags.has(FlagEXMSG) {
		msgFlags |= bgp.FlagEXMSG
	}

	var newAttrs []byte
	var mpReachWritten bool
	it := newAttrIterator(srcAttrs)
	for {
		a, ok, err := it.next()
		if err != nil {
			return nil, errs.Wrap(err, "iterating source RIB attributes")
		}
		if !ok {
			break
		}
		switch a.code {
		case bgp.AttrMPReachNLRI:
			rebuilt, wrote, err := rebuildMPReach(a, pfx, flags)
			if err != nil {
				return nil, err
			}
			if wrote {
				newAttrs = append(newAttrs, rebuilt...)
				mpReachWritten = true
			}
		case bgp.AttrMPUnreachNLRI:
			rebuilt, keep := rebuildMPUnreach(a, pfx, flags)
			if keep {
				newAttrs = append(newAttrs, rebuilt...)
			}
		default:
			newAttrs = append(newAttrs, a.raw...)
		}
	}

	var nlriTail []byte
	if !mpReachWritten {
		if pfx.Family() == addr.FamilyV4 {
			nlriTail = encodePlainPrefix(pfx)
		} else {
			return nil, errs.Errorf("RIB entry lacks MP_REACH_NLRI for IPv6 prefix")
		}
	}

	body := make([]byte, 0, 4+len(newAttrs)+len(nlriTail))
	body = append(body, 0, 0) // withdrawn length = 0
	var alenBuf [2]byte
	binary.BigEndian.PutUint16(alenBuf[:], uint16(len(newAttrs)))
	body = append(body, alenBuf[:]...)
	body = append(body, newAttrs...)
	body = append(body, nlriTail...)

	total := bgpHeaderLen + len(body)
	maxLen := maxLenDefault
	if flags.has(FlagEXMSG) {
		maxLen = maxLenExmsg
	}
	if total > maxLen {
		return nil, errs.Errorf("rebuilt UPDATE size %d exceeds cap %d (OVRSIZ)", total, maxLen)
	}

	buf := make([]byte, total)
	for i := 0; i < markerLen; i++ {
		buf[i] = 0xFF
	}
	binary.BigEndian.PutUint16(buf[16:18], uint16(total))
	buf[18] = byte(bgp.TypeUpdate)
	copy(buf[bgpHeaderLen:], body)

	return bgp.NewBgpMessage(buf, msgFlags)
}

func encodePlainPrefix(p addr.Prefix) []byte {
	n := p.SigBytes()
	out := make([]byte, 0, 4+1+n)
	if p.IsAddPath {
		var id [4]byte
		binary.BigEndian.PutUint32(id[:], p.PathId)
		out = append(out, id[:]...)
	}
	out = append(out, p.Width)
	out = append(out, p.Bytes[:n]...)
	return out
}

// rawAttr is one decoded source attribute plus its original wire
// bytes, so "copy verbatim" can just reuse raw.
type rawAttr struct {
	flags byte
	code  uint8
	value []byte
	raw   []byte
}

type attrIterator struct {
	buf []byte
}

func newAttrIterator(buf []byte) *attrIterator { return &attrIterator{buf: buf} }

func (it *attrIterator) next() (rawAttr, bool, error) {
	if len(it.buf) == 0 {
		return rawAttr{}, false, nil
	}
	if len(it.buf) < 2 {
		return rawAttr{}, false, errs.Errorf("truncated attribute header")
	}
	flagByte := it.buf[0]
	code := it.buf[1]
	extended := flagByte&(1<<4) != 0
	var vlen, hdrLen int
	if extended {
		if len(it.buf) < 4 {
			return rawAttr{}, false, errs.Errorf("truncated extended attribute header")
		}
		vlen = int(binary.BigEndian.Uint16(it.buf[2:4]))
		hdrLen = 4
	} else {
		if len(it.buf) < 3 {
			return rawAttr{}, false, errs.Errorf("truncated attribute header")
		}
		vlen = int(it.buf[2])
		hdrLen = 3
	}
	total := hdrLen + vlen
	if len(it.buf) < total {
		return rawAttr{}, false, errs.Errorf("truncated attribute value")
	}
	a := rawAttr{flags: flagByte, code: code, value: it.buf[hdrLen:total], raw: it.buf[:total]}
	it.buf = it.buf[total:]
	return a, true, nil
}

func encodeMPReachHeader(flags byte, afi uint16, safi uint8, nextHop []byte, nlri []byte) []byte {
	body := make([]byte, 0, 4+len(nextHop)+1+len(nlri))
	var afiBuf [2]byte
	binary.BigEndian.PutUint16(afiBuf[:], afi)
	body = append(body, afiBuf[:]...)
	body = append(body, safi)
	body = append(body, byte(len(nextHop)))
	body = append(body, nextHop...)
	body = append(body, 0) // reserved SNPA count
	body = append(body, nlri...)

	out := make([]byte, 0, 4+len(body))
	extended := len(body) > 255
	if extended {
		flags |= 1 << 4
	} else {
		flags &^= 1 << 4
	}
	out = append(out, flags, bgp.AttrMPReachNLRI)
	if extended {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(body)))
		out = append(out, l[:]...)
	} else {
		out = append(out, byte(len(body)))
	}
	out = append(out, body...)
	return out
}

// rebuildMPReach implements the MP_REACH_NLRI branch of spec.md §4.E's
// step 3: under RIBV2, detect and skip a non-compliant AFI/SAFI
// preamble; otherwise verify family and rebuild around the requested
// prefix only.
func rebuildMPReach(a rawAttr, pfx addr.Prefix, flags Flag) ([]byte, bool, error) {
	nlri := encodePlainPrefix(pfx)

	if flags.has(FlagRIBV2) {
		value := a.value
		nextHop := value
		if !flags.has(FlagStrictRFC6396) && len(value) > 2+1+1 &&
			binary.BigEndian.Uint16(value[0:2]) == pfx.Afi && value[2] == pfx.Safi &&
			int(value[3])+2+1 <= len(value) {
			// Non-compliant RIBv2 source also carries AFI/SAFI/reserved;
			// resynchronize to the next-hop-length field at offset 3.
			nextHop = value[3:]
		}
		if len(nextHop) < 1 {
			return nil, false, errs.Errorf("truncated RIBv2 MP_REACH_NLRI next hop")
		}
		nhLen := int(nextHop[0])
		if len(nextHop) < 1+nhLen {
			return nil, false, errs.Errorf("truncated RIBv2 MP_REACH_NLRI next hop bytes")
		}
		nh := nextHop[1 : 1+nhLen]
		return encodeMPReachHeader(a.flags, pfx.Afi, pfx.Safi, nh, nlri), true, nil
	}

	reach, err := bgp.ParseMPReach(a.value)
	if err != nil {
		return nil, false, errs.Wrap(err, "parsing source MP_REACH_NLRI")
	}
	if reach.Afi != pfx.Afi {
		// family mismatch: drop the attribute entirely.
		return nil, false, nil
	}
	return encodeMPReachHeader(a.flags, reach.Afi, reach.Safi, reach.NextHop, nlri), true, nil
}

// rebuildMPUnreach implements the MP_UNREACH_NLRI branch: strip, clear
// to a minimal (afi,safi)-only body, or copy verbatim.
func rebuildMPUnreach(a rawAttr, pfx addr.Prefix, flags Flag) ([]byte, bool) {
	if flags.has(FlagStripUnreach) {
		return nil, false
	}
	if flags.has(FlagClearUnreach) {
		body := make([]byte, 0, 3)
		var afiBuf [2]byte
		binary.BigEndian.PutUint16(afiBuf[:], pfx.Afi)
		body = append(body, afiBuf[:]...)
		body = append(body, pfx.Safi)
		out := make([]byte, 0, 3+len(body))
		out = append(out, a.flags&^(1<<4), bgp.AttrMPUnreachNLRI, byte(len(body)))
		out = append(out, body...)
		return out, true
	}
	return a.raw, true
}
