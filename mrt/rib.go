package mrt

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// RIBEntry is one TABLE_DUMPV2 RIB_* route entry: a peer index into the
// record's PeerIndexTable, an originated timestamp, and the raw
// attribute bytes (decoded by package bgp).
type RIBEntry struct {
	PeerIndex uint16
	Timestamp uint32
	Attrs     []byte
}

// RIBView is a decoded TABLE_DUMPV2 RIB_IPv4/RIB_IPv6 (Unicast or
// Multicast) record: the prefix shared by every entry
// plus the entries themselves, grounded on the teacher's
// protocol/rib.ribBuf.parseRIB layout (sequence of entries keyed by
// peer index, timestamp, attribute length, attribute bytes).
type RIBView struct {
	Prefix  addr.RawPrefix
	Entries []RIBEntry
	AddPath bool
}

func ribSubtypeIsV6(sub Subtype) bool {
	switch sub {
	case SubRIBIPv6Unicast, SubRIBIPv6Multicast, SubRIBIPv6UnicastAddPath, SubRIBIPv6MulticastAddPath:
		return true
	}
	return false
}

func ribSubtypeIsAddPath(sub Subtype) bool {
	switch sub {
	case SubRIBIPv4UnicastAddPath, SubRIBIPv4MulticastAddPath, SubRIBIPv6UnicastAddPath, SubRIBIPv6MulticastAddPath, SubRIBGenericAddPath:
		return true
	}
	return false
}

// ParseRIBView decodes a TABLE_DUMPV2 RIB_IPv4*/RIB_IPv6* record (the
// RIB_GENERIC subtype is not AFI/SAFI-specific and is not handled here;
// callers needing it consult the attribute-embedded NLRI directly).
func ParseRIBView(rec *Record) (*RIBView, error) {
	if rec.Header.Type != TypeTableDumpV2 {
		return nil, errs.Errorf("record is not TABLE_DUMPV2")
	}
	sub := rec.Header.Subtype
	switch sub {
	case SubRIBIPv4Unicast, SubRIBIPv4Multicast, SubRIBIPv4UnicastAddPath, SubRIBIPv4MulticastAddPath,
		SubRIBIPv6Unicast, SubRIBIPv6Multicast, SubRIBIPv6UnicastAddPath, SubRIBIPv6MulticastAddPath:
	default:
		return nil, errs.Errorf("unsupported RIB subtype %d", sub)
	}
	isV6 := ribSubtypeIsV6(sub)
	addPath := ribSubtypeIsAddPath(sub)

	buf := rec.Payload
	if len(buf) < 5 {
		return nil, errs.Errorf("truncated RIB sequence/prefix-width header")
	}
	// buf[0:4] is a sequence number, not carried forward (spec.md
	// doesn't surface it at this layer).
	buf = buf[4:]
	width := uint8(buf[0])
	buf = buf[1:]

	fam := addr.FamilyV4
	maxWidth := uint8(32)
	if isV6 {
		fam = addr.FamilyV6
		maxWidth = 128
	}
	if width > maxWidth {
		return nil, errs.Errorf("RIB prefix width %d exceeds family max", width)
	}
	bytelen := int(width+7) / 8
	if len(buf) < bytelen {
		return nil, errs.Errorf("truncated RIB prefix bytes")
	}
	var pfx addr.RawPrefix
	pfx.Family = fam
	pfx.Width = width
	copy(pfx.Bytes[:bytelen], buf[:bytelen])
	if width%8 != 0 {
		mask := byte(0xff00 >> (width % 8))
		pfx.Bytes[bytelen-1] &= mask
	}
	buf = buf[bytelen:]

	if len(buf) < 2 {
		return nil, errs.Errorf("truncated RIB entry count")
	}
	entryCount := int(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]

	entries := make([]RIBEntry, 0, entryCount)
	for i := 0; i < entryCount; i++ {
		e, rest, err := parseRIBEntry(buf, addPath)
		if err != nil {
			return nil, errs.Wrap(err, "parsing RIB entry")
		}
		entries = append(entries, e)
		buf = rest
	}
	return &RIBView{Prefix: pfx, Entries: entries, AddPath: addPath}, nil
}

func parseRIBEntry(buf []byte, addPath bool) (RIBEntry, []byte, error) {
	var e RIBEntry
	if len(buf) < 8 {
		return e, nil, errs.Errorf("truncated RIB entry header")
	}
	e.PeerIndex = binary.BigEndian.Uint16(buf[0:2])
	buf = buf[2:]
	e.Timestamp = binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if addPath {
		if len(buf) < 4 {
			return e, nil, errs.Errorf("truncated RIB entry path id")
		}
		// path id is part of the NLRI this entry describes, not the
		// entry header itself; callers reconstructing the NLRI must
		// pair it with Prefix. Skipped here since RIBEntry does not
		// carry a path id field — RIB_GENERIC/AddPath consumers should
		// read buf directly instead of going through ParseRIBView.
		buf = buf[4:]
	}
	attrLen := int(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	if len(buf) < attrLen {
		return e, nil, errs.Errorf("truncated RIB entry attributes")
	}
	e.Attrs = buf[:attrLen]
	return e, buf[attrLen:], nil
}

// TableDumpEntry is one legacy TABLE_DUMP (MRT v1, RFC 6396 §4.2) RIB
// entry: view/sequence numbers, the prefix, origination time, peer
// address/AS, and raw attribute bytes.
type TableDumpEntry struct {
	ViewNumber uint16
	SeqNumber  uint16
	Prefix     addr.RawPrefix
	OrigTime   uint32
	PeerIp     addr.Ip
	PeerAs     uint32
	Attrs      []byte
}

// ParseTableDumpEntry decodes a legacy (v1) TABLE_DUMP record.
func ParseTableDumpEntry(rec *Record) (*TableDumpEntry, error) {
	if rec.Header.Type != TypeTableDump {
		return nil, errs.Errorf("record is not TABLE_DUMP")
	}
	isV6 := rec.Header.Subtype == SubTableDumpAFIv6
	fam := addr.FamilyV4
	addrLen := 4
	if isV6 {
		fam = addr.FamilyV6
		addrLen = 16
	}
	buf := rec.Payload
	if len(buf) < 4 {
		return nil, errs.Errorf("truncated TABLE_DUMP view/sequence header")
	}
	var e TableDumpEntry
	e.ViewNumber = binary.BigEndian.Uint16(buf[0:2])
	e.SeqNumber = binary.BigEndian.Uint16(buf[2:4])
	buf = buf[4:]

	if len(buf) < addrLen+1 {
		return nil, errs.Errorf("truncated TABLE_DUMP prefix")
	}
	e.Prefix.Family = fam
	copy(e.Prefix.Bytes[:addrLen], buf[:addrLen])
	buf = buf[addrLen:]
	e.Prefix.Width = buf[0]
	buf = buf[1:]
	bytelen := int(e.Prefix.Width+7) / 8
	if bytelen > 0 && e.Prefix.Width%8 != 0 {
		mask := byte(0xff00 >> (e.Prefix.Width % 8))
		e.Prefix.Bytes[bytelen-1] &= mask
	}

	if len(buf) < 1+4+addrLen+2+2 {
		return nil, errs.Errorf("truncated TABLE_DUMP status/time/peer header")
	}
	buf = buf[1:] // status byte, always 1 ("active") per RFC 6396
	e.OrigTime = binary.BigEndian.Uint32(buf[0:4])
	buf = buf[4:]
	e.PeerIp = addr.Ip{Family: fam}
	copy(e.PeerIp.Bytes[:addrLen], buf[:addrLen])
	buf = buf[addrLen:]
	e.PeerAs = uint32(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	attrLen := int(binary.BigEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	if len(buf) < attrLen {
		return nil, errs.Errorf("truncated TABLE_DUMP attributes")
	}
	e.Attrs = buf[:attrLen]
	return &e, nil
}
