// Package bgp implements the zero-copy BGP-4 message decoder described
// in spec.md §4.D/§4.F: header validation, per-type accessors, an
// attribute iterator with RFC 7606 duplicate handling backed by a
// 12-slot atomic offset cache, AS-path and real-AS-path iteration,
// aggregator resolution, and next-hop/prefix iterators.
//
// Decoding never materializes a parsed tree: every accessor slices
// into the message's own buffer, mirroring the teacher
// (protocol/bgp/bgp.go)'s bgpHeaderBuf/bgpUpdateBuf split but replacing
// eager protobuf population with on-demand views.
package bgp

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/CSUNetSec/bgpfilter/errs"
)

// Type is the BGP message type (RFC 4271 §4.1, plus the CLOSE sentinel
// some collectors emit out-of-band).
type Type uint8

const (
	TypeOpen         Type = 1
	TypeUpdate       Type = 2
	TypeNotification Type = 3
	TypeKeepalive    Type = 4
	TypeRouteRefresh Type = 5
	TypeClose        Type = 255
)

// Attribute type codes (RFC 4271, RFC 4760, RFC 6793, RFC 4360 et al).
const (
	AttrOrigin          uint8 = 1
	AttrAsPath          uint8 = 2
	AttrNextHop         uint8 = 3
	AttrMultiExitDisc   uint8 = 4
	AttrLocalPref       uint8 = 5
	AttrAtomicAggregate uint8 = 6
	AttrAggregator      uint8 = 7
	AttrCommunity       uint8 = 8
	AttrMPReachNLRI     uint8 = 14
	AttrMPUnreachNLRI   uint8 = 15
	AttrExtCommunity    uint8 = 16
	AttrAs4Path         uint8 = 17
	AttrAs4Aggregator   uint8 = 18
	AttrLargeCommunity  uint8 = 32
)

// Flag bits on a BgpMessage.
type Flag uint8

const (
	FlagUnowned Flag = 1 << iota
	FlagASN32BIT
	FlagADDPATH
	FlagEXMSG
)

const (
	headerLen      = 19
	maxLenDefault  = 4096
	maxLenExmsg    = 65535
	markerLen      = 16
)

// Cache sentinel values for the attribute offset cache (spec.md §4.F).
const (
	offsetUnknown  int16 = -1
	offsetNotFound int16 = -2
)

// notableAttrIndex maps the 12 notable attribute codes to a cache slot;
// any other code is not cached (full scan only).
var notableAttrIndex = map[uint8]int{
	AttrOrigin:          0,
	AttrAsPath:          1,
	AttrNextHop:         2,
	AttrMultiExitDisc:   3,
	AttrLocalPref:       4,
	AttrAtomicAggregate: 5,
	AttrAggregator:      6,
	AttrCommunity:       7,
	AttrMPReachNLRI:     8,
	AttrMPUnreachNLRI:   9,
	AttrAs4Path:         10,
	AttrAs4Aggregator:   11,
}

// BgpMessage is a zero-copy view over one complete BGP message
// (including its 19-byte header).
type BgpMessage struct {
	buf   []byte
	flags Flag

	cache [12]int32 // atomic access only; stored as int32 for atomic ops
}

func (m *BgpMessage) has(f Flag) bool { return m.flags&f != 0 }

// NewBgpMessage validates buf as a BGP message per spec.md §4.D's
// header check (length >= 19, marker all-0xFF, length <= 4096 unless
// EXMSG, length <= len(buf)) and returns a view over it.
func NewBgpMessage(buf []byte, flags Flag) (*BgpMessage, error) {
	if len(buf) < headerLen {
		return nil, errs.Errorf("BGP message shorter than header (%d < %d)", len(buf), headerLen)
	}
	for i := 0; i < markerLen; i++ {
		if buf[i] != 0xFF {
			return nil, errs.Errorf("bad BGP marker")
		}
	}
	declLen := int(binary.BigEndian.Uint16(buf[16:18]))
	if declLen < headerLen {
		return nil, errs.Errorf("BGP message declared length %d below header size %d", declLen, headerLen)
	}
	maxLen := maxLenDefault
	if flags&FlagEXMSG != 0 {
		maxLen = maxLenExmsg
	}
	if declLen > maxLen {
		return nil, errs.Errorf("BGP message length %d exceeds cap %d", declLen, maxLen)
	}
	if declLen > len(buf) {
		return nil, errs.Errorf("BGP message length %d exceeds available buffer %d", declLen, len(buf))
	}
	m := &BgpMessage{buf: buf[:declLen], flags: flags}
	for i := range m.cache {
		m.cache[i] = int32(offsetUnknown)
	}
	return m, nil
}

// Type returns the message type byte.
func (m *BgpMessage) Type() Type { return Type(m.buf[18]) }

// Length returns the declared message length, header included.
func (m *BgpMessage) Length() int { return len(m.buf) }

func (m *BgpMessage) body() []byte { return m.buf[headerLen:] }

// Open is the fixed-format OPEN body (RFC 4271 §4.2):
// version(1) myAs(2) holdTime(2) bgpId(4) parmsLen(1) parms[].
type Open struct {
	Version   uint8
	MyAs      uint16
	HoldTime  uint16
	BgpId     uint32
	ParmsLen  uint8
	Parms     []byte
}

// AsOpen validates the message is an OPEN and returns its typed view.
func (m *BgpMessage) AsOpen() (Open, error) {
	if m.Type() != TypeOpen {
		return Open{}, errs.Errorf("message is not OPEN")
	}
	b := m.body()
	if len(b) < 10 {
		return Open{}, errs.Errorf("truncated OPEN body")
	}
	o := Open{
		Version:  b[0],
		MyAs:     binary.BigEndian.Uint16(b[1:3]),
		HoldTime: binary.BigEndian.Uint16(b[3:5]),
		BgpId:    binary.BigEndian.Uint32(b[5:9]),
		ParmsLen: b[9],
	}
	if len(b) < 10+int(o.ParmsLen) {
		return Open{}, errs.Errorf("truncated OPEN optional parameters")
	}
	o.Parms = b[10 : 10+int(o.ParmsLen)]
	return o, nil
}

// Notification is the fixed-format NOTIFICATION body (RFC 4271 §4.5).
type Notification struct {
	ErrorCode    uint8
	ErrorSubcode uint8
	Data         []byte
}

// AsNotification validates the message is a NOTIFICATION.
func (m *BgpMessage) AsNotification() (Notification, error) {
	if m.Type() != TypeNotification {
		return Notification{}, errs.Errorf("message is not NOTIFICATION")
	}
	b := m.body()
	if len(b) < 2 {
		return Notification{}, errs.Errorf("truncated NOTIFICATION body")
	}
	return Notification{ErrorCode: b[0], ErrorSubcode: b[1], Data: b[2:]}, nil
}

// AsRouteRefresh validates the message is a ROUTE_REFRESH and returns
// its (afi, safi) body (RFC 2918).
func (m *BgpMessage) AsRouteRefresh() (afi uint16, safi uint8, err error) {
	if m.Type() != TypeRouteRefresh {
		return 0, 0, errs.Errorf("message is not ROUTE_REFRESH")
	}
	b := m.body()
	if len(b) < 4 {
		return 0, 0, errs.Errorf("truncated ROUTE_REFRESH body")
	}
	return binary.BigEndian.Uint16(b[0:2]), b[3], nil
}

// AsKeepalive validates the message is a KEEPALIVE (no body).
func (m *BgpMessage) AsKeepalive() error {
	if m.Type() != TypeKeepalive {
		return errs.Errorf("message is not KEEPALIVE")
	}
	return nil
}

// AsClose validates the message is the out-of-band CLOSE sentinel.
func (m *BgpMessage) AsClose() error {
	if m.Type() != TypeClose {
		return errs.Errorf("message is not CLOSE")
	}
	return nil
}

// Update is the zero-copy view over an UPDATE body's three segments.
type Update struct {
	msg        *BgpMessage
	Withdrawn  []byte
	Attrs      []byte
	Nlri       []byte
}

// AsUpdate validates the message is an UPDATE and slices its three
// segments: WITHDRAWN_LEN | WITHDRAWN[] | TPA_LEN | ATTRIBUTES[] | NLRI[].
func (m *BgpMessage) AsUpdate() (*Update, error) {
	if m.Type() != TypeUpdate {
		return nil, errs.Errorf("message is not UPDATE")
	}
	b := m.body()
	if len(b) < 2 {
		return nil, errs.Errorf("truncated UPDATE withdrawn-length")
	}
	wlen := int(binary.BigEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < wlen {
		return nil, errs.Errorf("truncated UPDATE withdrawn routes")
	}
	withdrawn := b[:wlen]
	b = b[wlen:]
	if len(b) < 2 {
		return nil, errs.Errorf("truncated UPDATE TPA-length")
	}
	alen := int(binary.BigEndian.Uint16(b[0:2]))
	b = b[2:]
	if len(b) < alen {
		return nil, errs.Errorf("truncated UPDATE attributes")
	}
	attrs := b[:alen]
	nlri := b[alen:]
	return &Update{msg: m, Withdrawn: withdrawn, Attrs: attrs, Nlri: nlri}, nil
}

// Attribute is one decoded path attribute header plus its value bytes.
type Attribute struct {
	Optional   bool
	Transitive bool
	Partial    bool
	Extended   bool
	Code       uint8
	Value      []byte
	// offset is this attribute's byte offset within the TPA (Attrs),
	// used to populate the owning message's cache.
	offset int
}

// AttrIterator walks a TPA byte-by-byte, enforcing RFC 7606 §3.g
// duplicate handling and populating the owning message's offset cache
// as it goes.
type AttrIterator struct {
	msg  *BgpMessage
	buf  []byte
	pos  int
	seen map[uint8]bool
}

// Attributes returns a fresh iterator over u's TPA.
func (u *Update) Attributes() *AttrIterator {
	return &AttrIterator{msg: u.msg, buf: u.Attrs, seen: make(map[uint8]bool)}
}

// Next returns the next attribute, or (Attribute{}, false, nil) at
// clean end of sequence, or (Attribute{}, false, err) on a decode
// error (including DUP_NLRI_ATTR for a duplicate MP_REACH/MP_UNREACH).
func (it *AttrIterator) Next() (Attribute, bool, error) {
	for {
		if it.pos >= len(it.buf) {
			return Attribute{}, false, nil
		}
		if len(it.buf)-it.pos < 2 {
			return Attribute{}, false, errs.Errorf("truncated attribute header")
		}
		start := it.pos
		flagByte := it.buf[it.pos]
		code := it.buf[it.pos+1]
		extended := flagByte&(1<<4) != 0
		var vlen int
		var hdrLen int
		if extended {
			if len(it.buf)-it.pos < 4 {
				return Attribute{}, false, errs.Errorf("truncated extended attribute header")
			}
			vlen = int(binary.BigEndian.Uint16(it.buf[it.pos+2 : it.pos+4]))
			hdrLen = 4
		} else {
			if len(it.buf)-it.pos < 3 {
				return Attribute{}, false, errs.Errorf("truncated attribute header")
			}
			vlen = int(it.buf[it.pos+2])
			hdrLen = 3
		}
		valStart := it.pos + hdrLen
		if len(it.buf)-valStart < vlen {
			return Attribute{}, false, errs.Errorf("truncated attribute value")
		}
		a := Attribute{
			Optional:   flagByte&(1<<7) != 0,
			Transitive: flagByte&(1<<6) != 0,
			Partial:    flagByte&(1<<5) != 0,
			Extended:   extended,
			Code:       code,
			Value:      it.buf[valStart : valStart+vlen],
			offset:     start,
		}
		it.pos = valStart + vlen

		if it.seen[code] {
			if code == AttrMPReachNLRI || code == AttrMPUnreachNLRI {
				return Attribute{}, false, errs.Errorf("duplicate NLRI attribute code %d", code)
			}
			continue // silently skip other duplicates
		}
		it.seen[code] = true
		if it.msg != nil {
			it.msg.publishOffset(code, int32(start))
		}
		return a, true, nil
	}
}

func (m *BgpMessage) publishOffset(code uint8, offset int32) {
	idx, ok := notableAttrIndex[code]
	if !ok {
		return
	}
	atomic.StoreInt32(&m.cache[idx], offset)
}

// GetAttribute looks up a notable attribute by code, consulting the
// offset cache first and falling back to a full scan per spec.md §4.D.
func (u *Update) GetAttribute(code uint8) (Attribute, bool, error) {
	idx, cached := notableAttrIndex[code]
	if cached {
		off := atomic.LoadInt32(&u.msg.cache[idx])
		switch int16(off) {
		case offsetNotFound:
			return Attribute{}, false, nil
		case offsetUnknown:
			// fall through to full scan below
		default:
			return u.decodeAt(int(off))
		}
	}

	it := u.Attributes()
	var found *Attribute
	for {
		a, ok, err := it.Next()
		if err != nil {
			return Attribute{}, false, err
		}
		if !ok {
			break
		}
		if a.Code == code {
			cp := a
			found = &cp
		}
	}
	// Iteration completed cleanly: finalize any still-UNKNOWN slot for
	// notable codes to NOTFOUND via CAS (only on UNKNOWN->NOTFOUND).
	for c, i := range notableAttrIndex {
		atomic.CompareAndSwapInt32(&u.msg.cache[i], int32(offsetUnknown), int32(offsetNotFound))
		_ = c
	}
	if found == nil {
		return Attribute{}, false, nil
	}
	return *found, true, nil
}

func (u *Update) decodeAt(offset int) (Attribute, bool, error) {
	buf := u.Attrs
	if offset < 0 || offset >= len(buf) {
		return Attribute{}, false, errs.Errorf("cached attribute offset out of range")
	}
	flagByte := buf[offset]
	code := buf[offset+1]
	extended := flagByte&(1<<4) != 0
	var vlen, hdrLen int
	if extended {
		vlen = int(binary.BigEndian.Uint16(buf[offset+2 : offset+4]))
		hdrLen = 4
	} else {
		vlen = int(buf[offset+2])
		hdrLen = 3
	}
	valStart := offset + hdrLen
	if valStart+vlen > len(buf) {
		return Attribute{}, false, errs.Errorf("truncated cached attribute")
	}
	return Attribute{
		Optional:   flagByte&(1<<7) != 0,
		Transitive: flagByte&(1<<6) != 0,
		Partial:    flagByte&(1<<5) != 0,
		Extended:   extended,
		Code:       code,
		Value:      buf[valStart : valStart+vlen],
		offset:     offset,
	}, true, nil
}
