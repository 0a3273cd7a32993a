package rib

import (
	"bytes"
	"testing"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/bgp"
)

// TestRebuildRIBv2Scenario4 follows spec.md scenario 4: prefix
// 10.0.0.0/24, ORIGIN=IGP, AS_PATH [65001] (ASN32BIT), MP_REACH_NLRI
// carrying only (nextHopLen=4, 192.0.2.1), flags RIBV2. Expect a
// rebuilt UPDATE whose NLRI iterator yields 10.0.0.0/24 and whose
// MP_REACH_NLRI is (afi=1, safi=1, nhLen=4, 192.0.2.1, reserved=0,
// width=24, 10.0.0.0).
func TestRebuildRIBv2Scenario4(t *testing.T) {
	pfx, err := addr.StringToPrefix("10.0.0.0/24")
	if err != nil {
		t.Fatal(err)
	}

	var src bytes.Buffer
	src.Write([]byte{0x40, bgp.AttrOrigin, 1, 0}) // ORIGIN = IGP
	src.Write([]byte{0x40, bgp.AttrAsPath, 6, 2, 1, 0, 0, 0xFD, 0xE9})
	// MP_REACH_NLRI (RIBv2-compact): nhLen(1)=4, nextHop=192.0.2.1
	mp := []byte{4, 192, 0, 2, 1}
	src.Write([]byte{0x80, bgp.AttrMPReachNLRI, byte(len(mp))})
	src.Write(mp)

	msg, err := Rebuild(pfx, src.Bytes(), FlagRIBV2)
	if err != nil {
		t.Fatal(err)
	}
	up, err := msg.AsUpdate()
	if err != nil {
		t.Fatal(err)
	}
	prefixes, err := up.MultiprotocolPrefixes(addr.AfiIPv4, addr.SafiUnicast, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(prefixes) != 1 {
		t.Fatalf("expected exactly 1 prefix, got %d", len(prefixes))
	}
	if addr.PrefixToString(prefixes[0]) != "10.0.0.0/24" {
		t.Fatalf("expected 10.0.0.0/24, got %s", addr.PrefixToString(prefixes[0]))
	}

	mpAttr, ok, err := up.GetAttribute(bgp.AttrMPReachNLRI)
	if err != nil || !ok {
		t.Fatalf("expected MP_REACH_NLRI, err=%v ok=%v", err, ok)
	}
	reach, err := bgp.ParseMPReach(mpAttr.Value)
	if err != nil {
		t.Fatal(err)
	}
	if reach.Afi != addr.AfiIPv4 || reach.Safi != addr.SafiUnicast {
		t.Fatalf("afi/safi mismatch: %+v", reach)
	}
	if !bytes.Equal(reach.NextHop, []byte{192, 0, 2, 1}) {
		t.Fatalf("next hop mismatch: %v", reach.NextHop)
	}

	origin, ok, err := up.GetAttribute(bgp.AttrOrigin)
	if err != nil || !ok || len(origin.Value) != 1 || origin.Value[0] != 0 {
		t.Fatalf("expected ORIGIN=IGP preserved verbatim: %+v ok=%v err=%v", origin, ok, err)
	}
}

func TestRebuildIPv6WithoutMPReachFails(t *testing.T) {
	pfx, err := addr.StringToPrefix("2001:db8::/32")
	if err != nil {
		t.Fatal(err)
	}
	var src bytes.Buffer
	src.Write([]byte{0x40, bgp.AttrOrigin, 1, 0})
	if _, err := Rebuild(pfx, src.Bytes(), 0); err == nil {
		t.Fatal("expected RIB_NO_MPREACH error for IPv6 prefix with no MP_REACH_NLRI")
	}
}

func TestRebuildStripUnreach(t *testing.T) {
	pfx, err := addr.StringToPrefix("10.0.0.0/24")
	if err != nil {
		t.Fatal(err)
	}
	var src bytes.Buffer
	src.Write([]byte{0x40, bgp.AttrOrigin, 1, 0})
	unreach := []byte{0, 1, 1} // afi=1 safi=1, no NLRI
	src.Write([]byte{0x80, bgp.AttrMPUnreachNLRI, byte(len(unreach))})
	src.Write(unreach)

	msg, err := Rebuild(pfx, src.Bytes(), FlagStripUnreach)
	if err != nil {
		t.Fatal(err)
	}
	up, err := msg.AsUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := up.GetAttribute(bgp.AttrMPUnreachNLRI); err != nil || ok {
		t.Fatalf("expected MP_UNREACH_NLRI stripped, ok=%v err=%v", ok, err)
	}
}
