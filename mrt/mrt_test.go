package mrt

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildHeader(typ Type, sub Subtype, payload []byte) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], 0x11223344)
	buf.Write(tmp[:])
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], uint16(typ))
	buf.Write(tmp2[:])
	binary.BigEndian.PutUint16(tmp2[:], uint16(sub))
	buf.Write(tmp2[:])
	binary.BigEndian.PutUint32(tmp[:], uint32(len(payload)))
	buf.Write(tmp[:])
	buf.Write(payload)
	return buf.Bytes()
}

func TestReadMrtRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	data := buildHeader(TypeTableDump, SubTableDumpAFIv4, payload)
	rec, err := ReadMrt(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Header.Type != TypeTableDump || rec.Header.Subtype != SubTableDumpAFIv4 {
		t.Fatalf("header mismatch: %+v", rec.Header)
	}
	if !bytes.Equal(rec.Payload, payload) {
		t.Fatalf("payload mismatch: %v", rec.Payload)
	}
	if _, err := ReadMrt(bytes.NewReader(nil)); err != ErrEndOfStream {
		t.Fatalf("expected ErrEndOfStream on empty reader, got %v", err)
	}
}

func TestSplitMrtScanner(t *testing.T) {
	var all []byte
	all = append(all, buildHeader(TypeTableDump, SubTableDumpAFIv4, []byte{1, 2, 3})...)
	all = append(all, buildHeader(TypeTableDumpV2, SubPeerIndexTable, []byte{4, 5})...)
	sc := NewScanner(bytes.NewReader(all))
	var count int
	for sc.Scan() {
		rec, err := ParseRecord(sc.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		count++
		_ = rec
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2 records, got %d", count)
	}
}

func buildPeerIndexPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], 0xAABBCCDD)
	buf.Write(tmp4[:]) // collector id
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], 0)
	buf.Write(tmp2[:]) // empty view name
	binary.BigEndian.PutUint16(tmp2[:], 2)
	buf.Write(tmp2[:]) // peer count = 2

	// peer 0: v4, 2-byte AS
	buf.WriteByte(0)
	binary.BigEndian.PutUint32(tmp4[:], 1)
	buf.Write(tmp4[:])
	buf.Write([]byte{10, 0, 0, 1})
	binary.BigEndian.PutUint16(tmp2[:], 65000)
	buf.Write(tmp2[:])

	// peer 1: v6 + ASN32
	buf.WriteByte(peerFlagIPv6 | peerFlagASN32)
	binary.BigEndian.PutUint32(tmp4[:], 2)
	buf.Write(tmp4[:])
	buf.Write(make([]byte, 16))
	binary.BigEndian.PutUint32(tmp4[:], 4200000001)
	buf.Write(tmp4[:])

	return buf.Bytes()
}

func TestPeerIndexTable(t *testing.T) {
	payload := buildPeerIndexPayload(t)
	data := buildHeader(TypeTableDumpV2, SubPeerIndexTable, payload)
	rec, err := ParseRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	pit, err := ParsePeerIndexTable(rec)
	if err != nil {
		t.Fatal(err)
	}
	if pit.PeerCount != 2 {
		t.Fatalf("expected 2 peers, got %d", pit.PeerCount)
	}
	peers, err := pit.Peers()
	if err != nil {
		t.Fatal(err)
	}
	if peers[0].PeerAs != 65000 || peers[0].isV6() {
		t.Fatalf("peer 0 mismatch: %+v", peers[0])
	}
	if peers[1].PeerAs != 4200000001 || !peers[1].isV6() || !peers[1].isASN32() {
		t.Fatalf("peer 1 mismatch: %+v", peers[1])
	}
	// repeat random access to exercise the lazily-published offset table
	pe, err := pit.GetPeerByIndex(0)
	if err != nil {
		t.Fatal(err)
	}
	if pe.BgpId != 1 {
		t.Fatalf("expected bgpId 1, got %d", pe.BgpId)
	}
	if _, err := pit.GetPeerByIndex(5); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func buildRIBV4Payload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	var tmp4 [4]byte
	buf.Write(tmp4[:]) // sequence number
	buf.WriteByte(24)  // width
	buf.Write([]byte{10, 0, 1}) // 3 significant bytes for /24
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], 1) // entry count
	buf.Write(tmp2[:])

	binary.BigEndian.PutUint16(tmp2[:], 0) // peer index
	buf.Write(tmp2[:])
	binary.BigEndian.PutUint32(tmp4[:], 0x5f000000)
	buf.Write(tmp4[:]) // timestamp
	attrs := []byte{1, 2, 3}
	binary.BigEndian.PutUint16(tmp2[:], uint16(len(attrs)))
	buf.Write(tmp2[:])
	buf.Write(attrs)
	return buf.Bytes()
}

func TestRIBView(t *testing.T) {
	payload := buildRIBV4Payload(t)
	data := buildHeader(TypeTableDumpV2, SubRIBIPv4Unicast, payload)
	rec, err := ParseRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ParseRIBView(rec)
	if err != nil {
		t.Fatal(err)
	}
	if v.Prefix.Width != 24 {
		t.Fatalf("expected width 24, got %d", v.Prefix.Width)
	}
	if len(v.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(v.Entries))
	}
	if !bytes.Equal(v.Entries[0].Attrs, []byte{1, 2, 3}) {
		t.Fatalf("attrs mismatch: %v", v.Entries[0].Attrs)
	}
}

func TestBGP4MPMessageAS4(t *testing.T) {
	var buf bytes.Buffer
	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], 65010)
	buf.Write(tmp4[:])
	binary.BigEndian.PutUint32(tmp4[:], 65020)
	buf.Write(tmp4[:])
	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], 1) // interface index
	buf.Write(tmp2[:])
	binary.BigEndian.PutUint16(tmp2[:], 1) // AFI_IP
	buf.Write(tmp2[:])
	buf.Write([]byte{192, 168, 1, 1})
	buf.Write([]byte{192, 168, 1, 2})
	msg := []byte{0xde, 0xad, 0xbe, 0xef}
	buf.Write(msg)

	data := buildHeader(TypeBGP4MP, SubBGP4MPMessageAS4, buf.Bytes())
	rec, err := ParseRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	v, err := ParseBGP4MP(rec)
	if err != nil {
		t.Fatal(err)
	}
	if v.PeerAs != 65010 || v.LocalAs != 65020 {
		t.Fatalf("AS mismatch: %+v", v)
	}
	if v.StateChange {
		t.Fatal("did not expect state change")
	}
	if !bytes.Equal(v.Message, msg) {
		t.Fatalf("message mismatch: %v", v.Message)
	}
}
