package bgp

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// PrefixIterator reads prefixes framed as optional 4-byte path-id,
// 1-byte width, ceil(width/8) bytes — parameterized by AFI/SAFI and
// ADDPATH mode per spec.md §4.D.
type PrefixIterator struct {
	buf       []byte
	afi       uint16
	safi      uint8
	addPath   bool
	maxWidth  uint8
}

// NewPrefixIterator builds an iterator over buf.
func NewPrefixIterator(buf []byte, afi uint16, safi uint8, addPath bool) *PrefixIterator {
	maxWidth := uint8(32)
	if afi == addr.AfiIPv6 {
		maxWidth = 128
	}
	return &PrefixIterator{buf: buf, afi: afi, safi: safi, addPath: addPath, maxWidth: maxWidth}
}

// Next returns the next prefix, or (Prefix{}, false, nil) at clean
// end, or an error (BAD_PFX_WIDTH / TRUNC_PFX) on malformed input.
func (it *PrefixIterator) Next() (addr.Prefix, bool, error) {
	if len(it.buf) == 0 {
		return addr.Prefix{}, false, nil
	}
	var pathId uint32
	if it.addPath {
		if len(it.buf) < 4 {
			return addr.Prefix{}, false, errs.Errorf("truncated ADD-PATH path id")
		}
		pathId = binary.BigEndian.Uint32(it.buf[0:4])
		it.buf = it.buf[4:]
	}
	if len(it.buf) < 1 {
		return addr.Prefix{}, false, errs.Errorf("truncated prefix width")
	}
	width := it.buf[0]
	it.buf = it.buf[1:]
	if width > it.maxWidth {
		return addr.Prefix{}, false, errs.Wrap(addr.ErrBadWidth, "prefix width exceeds family max")
	}
	bytelen := int(width+7) / 8
	if len(it.buf) < bytelen {
		return addr.Prefix{}, false, errs.Errorf("truncated prefix bytes (need %d, have %d)", bytelen, len(it.buf))
	}
	p, err := addr.NewPrefix(it.afi, it.safi, it.addPath, pathId, width, it.buf[:bytelen])
	if err != nil {
		return addr.Prefix{}, false, errs.Wrap(err, "building prefix")
	}
	it.buf = it.buf[bytelen:]
	return p, true, nil
}

// MultiprotocolPrefixes yields prefixes across the plain NLRI/WITHDRAWN
// segment and the MP_REACH/MP_UNREACH NLRI, switching iterators when
// the first is exhausted. withdrawn selects WITHDRAWN+MP_UNREACH
// instead of NLRI+MP_REACH.
func (u *Update) MultiprotocolPrefixes(afi uint16, safi uint8, addPath, withdrawn bool) ([]addr.Prefix, error) {
	var out []addr.Prefix
	plainFam := addr.FamilyV4
	if afi == addr.AfiIPv6 {
		plainFam = addr.FamilyV6
	}
	plainBuf := u.Nlri
	if withdrawn {
		plainBuf = u.Withdrawn
	}
	if plainFam == addr.FamilyV4 {
		it := NewPrefixIterator(plainBuf, afi, safi, addPath)
		for {
			p, ok, err := it.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			out = append(out, p)
		}
	}

	mpCode := AttrMPReachNLRI
	if withdrawn {
		mpCode = AttrMPUnreachNLRI
	}
	mpAttr, ok, err := u.GetAttribute(mpCode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return out, nil
	}
	var nlri []byte
	if withdrawn {
		if len(mpAttr.Value) < 3 {
			return nil, errs.Errorf("truncated MP_UNREACH_NLRI")
		}
		nlri = mpAttr.Value[3:]
	} else {
		reach, err := ParseMPReach(mpAttr.Value)
		if err != nil {
			return nil, err
		}
		nlri = reach.Nlri
	}
	it := NewPrefixIterator(nlri, afi, safi, addPath)
	for {
		p, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out, nil
}
