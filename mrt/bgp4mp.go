package mrt

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// BGP4MPView is the decoded BGP4MP/BGP4MP_ET header preceding either a
// STATE_CHANGE notification or a wrapped BGP message, grounded on the
// teacher's protocol/mrt.bgp4mpHdrBuf field layout (peer AS, local AS,
// interface index, address family, peer/local IP) but generalized to
// every BGP4MP subtype instead of only MESSAGE/MESSAGE_AS4.
type BGP4MPView struct {
	PeerAs         uint32
	LocalAs        uint32
	InterfaceIndex uint16
	AddressFamily  uint16
	PeerIp         addr.Ip
	LocalIp        addr.Ip

	// StateChange is set for SubBGP4MPStateChange[AS4]; OldState/NewState
	// are then meaningful and Message is empty.
	StateChange bool
	OldState    uint16
	NewState    uint16

	// Message is the wrapped BGP message bytes for the MESSAGE* subtypes.
	Message []byte

	AddPath bool
}

func bgp4mpIsAS4(sub Subtype) bool {
	switch sub {
	case SubBGP4MPMessageAS4, SubBGP4MPStateChangeAS4, SubBGP4MPMessageAS4Local, SubBGP4MPMessageAS4AddPath, SubBGP4MPMessageAS4LocalAddPath:
		return true
	}
	return false
}

func bgp4mpIsStateChange(sub Subtype) bool {
	return sub == SubBGP4MPStateChange || sub == SubBGP4MPStateChangeAS4
}

func bgp4mpIsAddPath(sub Subtype) bool {
	switch sub {
	case SubBGP4MPMessageAddPath, SubBGP4MPMessageAS4AddPath, SubBGP4MPMessageLocalAddPath, SubBGP4MPMessageAS4LocalAddPath:
		return true
	}
	return false
}

// ParseBGP4MP decodes the BGP4MP/BGP4MP_ET payload of rec.
func ParseBGP4MP(rec *Record) (*BGP4MPView, error) {
	if rec.Header.Type != TypeBGP4MP && rec.Header.Type != TypeBGP4MPET {
		return nil, errs.Errorf("record is not BGP4MP/BGP4MP_ET")
	}
	buf := rec.Payload
	sub := rec.Header.Subtype
	as4 := bgp4mpIsAS4(sub)

	asWidth := 2
	if as4 {
		asWidth = 4
	}
	if len(buf) < 2*asWidth+2+2 {
		return nil, errs.Errorf("truncated BGP4MP header")
	}
	var v BGP4MPView
	v.AddPath = bgp4mpIsAddPath(sub)
	off := 0
	if as4 {
		v.PeerAs = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
		v.LocalAs = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
	} else {
		v.PeerAs = uint32(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
		v.LocalAs = uint32(binary.BigEndian.Uint16(buf[off : off+2]))
		off += 2
	}
	v.InterfaceIndex = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2
	v.AddressFamily = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2

	addrLen := 4
	fam := addr.FamilyV4
	if v.AddressFamily == addr.AfiIPv6 {
		addrLen = 16
		fam = addr.FamilyV6
	}
	if len(buf) < off+2*addrLen {
		return nil, errs.Errorf("truncated BGP4MP peer/local address")
	}
	v.PeerIp = addr.Ip{Family: fam}
	copy(v.PeerIp.Bytes[:addrLen], buf[off:off+addrLen])
	off += addrLen
	v.LocalIp = addr.Ip{Family: fam}
	copy(v.LocalIp.Bytes[:addrLen], buf[off:off+addrLen])
	off += addrLen

	rest := buf[off:]
	if bgp4mpIsStateChange(sub) {
		if len(rest) < 4 {
			return nil, errs.Errorf("truncated BGP4MP state change")
		}
		v.StateChange = true
		v.OldState = binary.BigEndian.Uint16(rest[0:2])
		v.NewState = binary.BigEndian.Uint16(rest[2:4])
		return &v, nil
	}
	v.Message = rest
	return &v, nil
}

// ZebraBGPView decodes the legacy (pre-BGP4MP, MRT type ZEBRA_BGP=5)
// wrapper: (peerAs, peerAddr, localAs, localAddr, bgpMessage-without-
// header). It predates AS4/ADDPATH entirely, so both are always false,
// and it predates IPv6 MRT support, so the addresses are always IPv4.
type ZebraBGPView struct {
	PeerAs  uint16
	PeerIp  addr.Ip
	LocalAs uint16
	LocalIp addr.Ip
	Message []byte
}

// ParseZebraBGP decodes the legacy ZEBRA_BGP payload of rec.
func ParseZebraBGP(rec *Record) (*ZebraBGPView, error) {
	if rec.Header.Type != TypeZebraBGP {
		return nil, errs.Errorf("record is not legacy ZEBRA_BGP")
	}
	buf := rec.Payload
	const addrLen = 4
	if len(buf) < 2+addrLen+2+addrLen {
		return nil, errs.Errorf("truncated ZEBRA_BGP header")
	}
	var v ZebraBGPView
	off := 0
	v.PeerAs = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2
	v.PeerIp = addr.Ip{Family: addr.FamilyV4}
	copy(v.PeerIp.Bytes[:addrLen], buf[off:off+addrLen])
	off += addrLen
	v.LocalAs = binary.BigEndian.Uint16(buf[off : off+2])
	off += 2
	v.LocalIp = addr.Ip{Family: addr.FamilyV4}
	copy(v.LocalIp.Bytes[:addrLen], buf[off:off+addrLen])
	off += addrLen
	v.Message = buf[off:]
	return &v, nil
}
