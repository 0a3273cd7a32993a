package bgp

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/errs"
)

// AS-path segment types (RFC 4271 §4.3).
const (
	AsSet       uint8 = 1
	AsSequence  uint8 = 2
)

// AsPathSegment is one decoded AS_PATH/AS4_PATH segment: a type plus
// the raw inline ASN bytes (width 2 or 4 per the iterator's asWidth).
type AsPathSegment struct {
	Type     uint8
	Count    int
	asnBytes []byte
	asWidth  int
}

// Asn returns the i-th ASN in the segment (0-indexed).
func (s AsPathSegment) Asn(i int) uint32 {
	off := i * s.asWidth
	if s.asWidth == 4 {
		return binary.BigEndian.Uint32(s.asnBytes[off : off+4])
	}
	return uint32(binary.BigEndian.Uint16(s.asnBytes[off : off+2]))
}

// segmentIterator walks the segments of one AS_PATH or AS4_PATH
// attribute value, with a caller-selected ASN width.
type segmentIterator struct {
	buf     []byte
	asWidth int
}

func newSegmentIterator(value []byte, asWidth int) *segmentIterator {
	return &segmentIterator{buf: value, asWidth: asWidth}
}

// Next returns the next segment, or (Segment{}, false, nil) at clean
// end, or an error on truncation.
func (it *segmentIterator) Next() (AsPathSegment, bool, error) {
	if len(it.buf) == 0 {
		return AsPathSegment{}, false, nil
	}
	if len(it.buf) < 2 {
		return AsPathSegment{}, false, errs.Errorf("truncated AS-path segment header")
	}
	typ := it.buf[0]
	count := int(it.buf[1])
	need := 2 + count*it.asWidth
	if len(it.buf) < need {
		return AsPathSegment{}, false, errs.Errorf("truncated AS-path segment body")
	}
	seg := AsPathSegment{Type: typ, Count: count, asnBytes: it.buf[2:need], asWidth: it.asWidth}
	it.buf = it.buf[need:]
	return seg, true, nil
}

// AsPathSegments returns a segment iterator over the AS_PATH (or
// AS4_PATH) attribute value. Width is 2 or 4 bytes per the message's
// ASN32BIT flag, forced to 4 when code == AttrAs4Path regardless.
func (u *Update) AsPathSegments(value []byte, code uint8) *segmentIterator {
	width := 2
	if u.msg.has(FlagASN32BIT) || code == AttrAs4Path {
		width = 4
	}
	return newSegmentIterator(value, width)
}

// segmentElements flattens value into one slice per unit of AS-path
// length (RFC 6793's counting rule): an AS_SEQUENCE contributes one
// element per ASN, while an entire AS_SET contributes a single element
// holding all of its ASNs together.
func segmentElements(value []byte, asWidth int) ([][]uint32, error) {
	it := newSegmentIterator(value, asWidth)
	var elems [][]uint32
	for {
		seg, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if seg.Type == AsSet {
			set := make([]uint32, seg.Count)
			for i := 0; i < seg.Count; i++ {
				set[i] = seg.Asn(i)
			}
			elems = append(elems, set)
		} else {
			for i := 0; i < seg.Count; i++ {
				elems = append(elems, []uint32{seg.Asn(i)})
			}
		}
	}
	return elems, nil
}

func flattenElements(elems [][]uint32) []uint32 {
	var out []uint32
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

// RealAsPath yields the merged AS_PATH/AS4_PATH per RFC 6793: if
// AGGREGATOR and AS4_AGGREGATOR are both present and valid and AS4_PATH
// is present, compare ASN counts (AS_SET contributes 1, AS_SEQUENCE
// contributes its length); when AS_PATH's count >= AS4_PATH's, yield
// the leading (AS_PATH_count - AS4_PATH_count) ASNs from AS_PATH then
// switch to AS4_PATH for the remainder; otherwise yield AS_PATH in full.
func (u *Update) RealAsPath() ([]uint32, error) {
	asPathAttr, hasAsPath, err := u.GetAttribute(AttrAsPath)
	if err != nil {
		return nil, err
	}
	if !hasAsPath {
		return nil, nil
	}
	asWidth := 2
	if u.msg.has(FlagASN32BIT) {
		asWidth = 4
	}
	asPathAsns, err := flattenSegments(asPathAttr.Value, asWidth)
	if err != nil {
		return nil, err
	}

	aggAttr, hasAgg, err := u.GetAttribute(AttrAggregator)
	if err != nil {
		return nil, err
	}
	agg4Attr, hasAgg4, err := u.GetAttribute(AttrAs4Aggregator)
	if err != nil {
		return nil, err
	}
	as4PathAttr, hasAs4Path, err := u.GetAttribute(AttrAs4Path)
	if err != nil {
		return nil, err
	}
	if !(hasAgg && hasAgg4 && hasAs4Path) {
		return asPathAsns, nil
	}
	if _, _, err := decodeAggregatorValue(aggAttr.Value, asWidth); err != nil {
		return asPathAsns, nil
	}
	if _, _, err := decodeAggregatorValue(agg4Attr.Value, 4); err != nil {
		return asPathAsns, nil
	}

	as4PathAsns, err := flattenSegments(as4PathAttr.Value, 4)
	if err != nil {
		return nil, err
	}

	asPathElems, err := segmentElements(asPathAttr.Value, asWidth)
	if err != nil {
		return nil, err
	}
	as4PathElems, err := segmentElements(as4PathAttr.Value, 4)
	if err != nil {
		return nil, err
	}
	if len(asPathElems) < len(as4PathElems) {
		return asPathAsns, nil
	}
	keep := len(asPathElems) - len(as4PathElems)
	out := flattenElements(asPathElems[:keep])
	out = append(out, as4PathAsns...)
	return out, nil
}

func flattenSegments(value []byte, asWidth int) ([]uint32, error) {
	it := newSegmentIterator(value, asWidth)
	var out []uint32
	for {
		seg, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		for i := 0; i < seg.Count; i++ {
			out = append(out, seg.Asn(i))
		}
	}
	return out, nil
}

// AsTrans is the RFC 6793 sentinel ASN meaning "see AS4_AGGREGATOR".
const AsTrans uint32 = 23456

// Aggregator is the resolved (asn, ip) pair after RFC 6793 AS_TRANS
// substitution.
type Aggregator struct {
	Asn uint32
	Ip  []byte
}

// ResolveAggregator implements spec.md §4.D's aggregator resolution:
// if AGGREGATOR's ASN is AS_TRANS, prefer AS4_AGGREGATOR; else return
// AGGREGATOR as-is.
func (u *Update) ResolveAggregator() (Aggregator, bool, error) {
	aggAttr, hasAgg, err := u.GetAttribute(AttrAggregator)
	if err != nil {
		return Aggregator{}, false, err
	}
	if !hasAgg {
		return Aggregator{}, false, nil
	}
	asWidth := 2
	if u.msg.has(FlagASN32BIT) {
		asWidth = 4
	}
	asn, ip, err := decodeAggregatorValue(aggAttr.Value, asWidth)
	if err != nil {
		return Aggregator{}, false, err
	}
	if asn != AsTrans {
		return Aggregator{Asn: asn, Ip: ip}, true, nil
	}
	agg4Attr, hasAgg4, err := u.GetAttribute(AttrAs4Aggregator)
	if err != nil {
		return Aggregator{}, false, err
	}
	if !hasAgg4 {
		return Aggregator{Asn: asn, Ip: ip}, true, nil
	}
	asn4, ip4, err := decodeAggregatorValue(agg4Attr.Value, 4)
	if err != nil {
		return Aggregator{}, false, err
	}
	return Aggregator{Asn: asn4, Ip: ip4}, true, nil
}

func decodeAggregatorValue(value []byte, asWidth int) (uint32, []byte, error) {
	ipLen := len(value) - asWidth
	if ipLen != 4 && ipLen != 16 {
		return 0, nil, errs.Errorf("malformed AGGREGATOR/AS4_AGGREGATOR value (%d bytes, asWidth %d)", len(value), asWidth)
	}
	var asn uint32
	if asWidth == 4 {
		asn = binary.BigEndian.Uint32(value[:4])
	} else {
		asn = uint32(binary.BigEndian.Uint16(value[:2]))
	}
	return asn, value[asWidth:], nil
}
