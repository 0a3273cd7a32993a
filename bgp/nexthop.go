package bgp

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// MPReach is the decoded MP_REACH_NLRI attribute value: (afi, safi,
// nextHop[], reserved, NLRI bytes).
type MPReach struct {
	Afi     uint16
	Safi    uint8
	NextHop []byte
	Nlri    []byte
}

// ParseMPReach decodes a non-RIBv2 MP_REACH_NLRI value: afi(2) safi(1)
// nhLen(1) nextHop[nhLen] reserved(1) nlri[].
func ParseMPReach(value []byte) (MPReach, error) {
	if len(value) < 4 {
		return MPReach{}, errs.Errorf("truncated MP_REACH_NLRI preamble")
	}
	afi := binary.BigEndian.Uint16(value[0:2])
	safi := value[2]
	nhLen := int(value[3])
	rest := value[4:]
	if len(rest) < nhLen+1 {
		return MPReach{}, errs.Errorf("truncated MP_REACH_NLRI next hop")
	}
	nh := rest[:nhLen]
	rest = rest[nhLen+1:] // +1 skips the reserved SNPA-count byte
	return MPReach{Afi: afi, Safi: safi, NextHop: nh, Nlri: rest}, nil
}

// ParseMPReachRIBv2 decodes the RIBv2-compact MP_REACH_NLRI form that
// may omit the AFI/SAFI preamble entirely: just (nhLen, nextHop).
func ParseMPReachRIBv2(value []byte) ([]byte, error) {
	if len(value) < 1 {
		return nil, errs.Errorf("truncated RIBv2 MP_REACH_NLRI")
	}
	nhLen := int(value[0])
	if len(value) < 1+nhLen {
		return nil, errs.Errorf("truncated RIBv2 MP_REACH_NLRI next hop")
	}
	return value[1 : 1+nhLen], nil
}

// NextHops yields next hops from NEXT_HOP (IPv4) and MP_REACH_NLRI
// (family derived from its AFI/SAFI, except the RIBv2 variant).
func (u *Update) NextHops() ([]addr.Ip, error) {
	var out []addr.Ip
	if nh, ok, err := u.GetAttribute(AttrNextHop); err != nil {
		return nil, err
	} else if ok {
		if len(nh.Value) != 4 {
			return nil, errs.Errorf("NEXT_HOP attribute is not 4 bytes")
		}
		var ip addr.Ip
		ip.Family = addr.FamilyV4
		copy(ip.Bytes[:4], nh.Value)
		out = append(out, ip)
	}
	if mp, ok, err := u.GetAttribute(AttrMPReachNLRI); err != nil {
		return nil, err
	} else if ok {
		reach, err := ParseMPReach(mp.Value)
		if err != nil {
			return nil, err
		}
		for off := 0; off < len(reach.NextHop); {
			var addrLen int
			switch reach.Afi {
			case addr.AfiIPv4:
				addrLen = 4
			case addr.AfiIPv6:
				addrLen = 16
			default:
				return nil, errs.Errorf("unsupported AFI %d in MP_REACH_NLRI", reach.Afi)
			}
			if off+addrLen > len(reach.NextHop) {
				break
			}
			var ip addr.Ip
			if addrLen == 16 {
				ip.Family = addr.FamilyV6
			} else {
				ip.Family = addr.FamilyV4
			}
			copy(ip.Bytes[:addrLen], reach.NextHop[off:off+addrLen])
			out = append(out, ip)
			off += addrLen
		}
	}
	return out, nil
}
