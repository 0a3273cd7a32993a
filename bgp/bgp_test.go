package bgp

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func marker() []byte {
	m := make([]byte, 16)
	for i := range m {
		m[i] = 0xFF
	}
	return m
}

func TestOpenParse(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(marker())
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], 29)
	buf.Write(u16[:]) // length
	buf.WriteByte(byte(TypeOpen))
	buf.WriteByte(4) // version
	binary.BigEndian.PutUint16(u16[:], 0x1234)
	buf.Write(u16[:]) // myAs
	binary.BigEndian.PutUint16(u16[:], 0x00B4)
	buf.Write(u16[:]) // holdTime
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], 0x01020304)
	buf.Write(u32[:]) // bgpId
	buf.WriteByte(0)  // parmsLen

	msg, err := NewBgpMessage(buf.Bytes(), 0)
	if err != nil {
		t.Fatal(err)
	}
	o, err := msg.AsOpen()
	if err != nil {
		t.Fatal(err)
	}
	if o.ParmsLen != 0 || len(o.Parms) != 0 {
		t.Fatalf("expected empty parms, got %+v", o)
	}
	if o.MyAs != 0x1234 || o.HoldTime != 0x00B4 || o.BgpId != 0x01020304 {
		t.Fatalf("field mismatch: %+v", o)
	}
}

func buildUpdateWithAsPathAndNextHop(t *testing.T) []byte {
	t.Helper()
	var attrs bytes.Buffer
	// ORIGIN = IGP(0)
	attrs.Write([]byte{0x40, AttrOrigin, 1, 0})
	// AS_PATH: one AS_SEQUENCE segment [100,200,300], 2-byte width
	var asPath bytes.Buffer
	asPath.WriteByte(AsSequence)
	asPath.WriteByte(3)
	for _, as := range []uint16{100, 200, 300} {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], as)
		asPath.Write(b[:])
	}
	attrs.Write([]byte{0x40, AttrAsPath, byte(asPath.Len())})
	attrs.Write(asPath.Bytes())
	// NEXT_HOP
	attrs.Write([]byte{0x40, AttrNextHop, 4, 192, 0, 2, 1})

	var nlri bytes.Buffer
	nlri.WriteByte(24)
	nlri.Write([]byte{10, 0, 0})

	var body bytes.Buffer
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], 0)
	body.Write(u16[:]) // withdrawn len
	binary.BigEndian.PutUint16(u16[:], uint16(attrs.Len()))
	body.Write(u16[:])
	body.Write(attrs.Bytes())
	body.Write(nlri.Bytes())

	var full bytes.Buffer
	full.Write(marker())
	binary.BigEndian.PutUint16(u16[:], uint16(19+body.Len()))
	full.Write(u16[:])
	full.WriteByte(byte(TypeUpdate))
	full.Write(body.Bytes())
	return full.Bytes()
}

func TestUpdateNlriAndAttrs(t *testing.T) {
	data := buildUpdateWithAsPathAndNextHop(t)
	msg, err := NewBgpMessage(data, 0)
	if err != nil {
		t.Fatal(err)
	}
	up, err := msg.AsUpdate()
	if err != nil {
		t.Fatal(err)
	}
	prefixes, err := up.MultiprotocolPrefixes(1, 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(prefixes) != 1 || prefixes[0].Width != 24 {
		t.Fatalf("expected 1 /24 prefix, got %+v", prefixes)
	}

	asPathAttr, ok, err := up.GetAttribute(AttrAsPath)
	if err != nil || !ok {
		t.Fatalf("expected AS_PATH attribute, err=%v ok=%v", err, ok)
	}
	segs := up.AsPathSegments(asPathAttr.Value, AttrAsPath)
	seg, ok, err := segs.Next()
	if err != nil || !ok {
		t.Fatalf("expected one segment, err=%v ok=%v", err, ok)
	}
	want := []uint32{100, 200, 300}
	for i, w := range want {
		if seg.Asn(i) != w {
			t.Fatalf("asn[%d] = %d, want %d", i, seg.Asn(i), w)
		}
	}

	nh, ok, err := up.GetAttribute(AttrNextHop)
	if err != nil || !ok {
		t.Fatalf("expected NEXT_HOP attribute, err=%v ok=%v", err, ok)
	}
	if !bytes.Equal(nh.Value, []byte{192, 0, 2, 1}) {
		t.Fatalf("next hop mismatch: %v", nh.Value)
	}
}

func TestDuplicateMPReachFailsHard(t *testing.T) {
	mp := []byte{0, 1, 1, 4, 192, 0, 2, 1, 0}
	var attrs bytes.Buffer
	attrs.Write([]byte{0xC0, AttrMPReachNLRI, byte(len(mp))})
	attrs.Write(mp)
	attrs.Write([]byte{0xC0, AttrMPReachNLRI, byte(len(mp))})
	attrs.Write(mp)

	var body bytes.Buffer
	var u16 [2]byte
	binary.BigEndian.PutUint16(u16[:], 0)
	body.Write(u16[:])
	binary.BigEndian.PutUint16(u16[:], uint16(attrs.Len()))
	body.Write(u16[:])
	body.Write(attrs.Bytes())

	var full bytes.Buffer
	full.Write(marker())
	binary.BigEndian.PutUint16(u16[:], uint16(19+body.Len()))
	full.Write(u16[:])
	full.WriteByte(byte(TypeUpdate))
	full.Write(body.Bytes())

	msg, err := NewBgpMessage(full.Bytes(), 0)
	if err != nil {
		t.Fatal(err)
	}
	up, err := msg.AsUpdate()
	if err != nil {
		t.Fatal(err)
	}
	it := up.Attributes()
	if _, _, err := it.Next(); err != nil {
		t.Fatalf("first MP_REACH should decode cleanly: %v", err)
	}
	if _, _, err := it.Next(); err == nil {
		t.Fatal("expected DUP_NLRI_ATTR error on second MP_REACH")
	}
}
