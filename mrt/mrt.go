// Package mrt implements the MRT (Multi-Threaded Routing Toolkit) record
// framing and subtype accessors described in spec.md §4.C: fixed 12-byte
// headers (16 with the extended-timestamp ET variant), PEER_INDEX_TABLE
// decoding with a lazily-published peer offset table, TABLE_DUMP /
// TABLE_DUMPV2 RIB iteration, and BGP4MP / legacy-BGP message unwrapping.
//
// Decoding is zero-copy: a Record references the caller's byte slice and
// every accessor slices into it on demand rather than materializing a
// parsed tree.
package mrt

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/CSUNetSec/bgpfilter/errs"
)

// Type is the MRT record type (spec.md §6).
type Type uint16

const (
	TypeOSPFv2      Type = 11
	TypeTableDump   Type = 12
	TypeTableDumpV2 Type = 13
	TypeBGP4MP      Type = 16
	TypeBGP4MPET    Type = 17
	TypeZebraBGP    Type = 5
)

// Subtype is the MRT record subtype, interpreted per Type.
type Subtype uint16

// TABLE_DUMP (v1) subtypes.
const (
	SubTableDumpAFIv4 Subtype = 1
	SubTableDumpAFIv6 Subtype = 2
)

// TABLE_DUMPV2 subtypes.
const (
	SubPeerIndexTable          Subtype = 1
	SubRIBIPv4Unicast          Subtype = 2
	SubRIBIPv4Multicast        Subtype = 3
	SubRIBIPv6Unicast          Subtype = 4
	SubRIBIPv6Multicast        Subtype = 5
	SubRIBGeneric              Subtype = 6
	SubRIBIPv4UnicastAddPath   Subtype = 8
	SubRIBIPv4MulticastAddPath Subtype = 9
	SubRIBIPv6UnicastAddPath   Subtype = 10
	SubRIBIPv6MulticastAddPath Subtype = 11
	SubRIBGenericAddPath       Subtype = 12
)

// BGP4MP subtypes.
const (
	SubBGP4MPStateChange            Subtype = 0
	SubBGP4MPMessage                Subtype = 1
	SubBGP4MPMessageAS4             Subtype = 4
	SubBGP4MPStateChangeAS4         Subtype = 5
	SubBGP4MPMessageLocal           Subtype = 6
	SubBGP4MPMessageAS4Local        Subtype = 7
	SubBGP4MPMessageAddPath         Subtype = 8
	SubBGP4MPMessageAS4AddPath      Subtype = 9
	SubBGP4MPMessageLocalAddPath    Subtype = 10
	SubBGP4MPMessageAS4LocalAddPath Subtype = 11
)

const (
	headerLen   = 12
	headerLenET = 16
)

func isET(t Type) bool { return t == TypeBGP4MPET }

// Header is the fixed 12-byte (or 16 with ET) MRT record header.
type Header struct {
	Timestamp     uint32
	Microseconds  uint32 // only meaningful when the type carries ET
	Type          Type
	Subtype       Subtype
	Length        uint32
}

// Record owns or borrows a buffer containing one MRT record's payload
// (header already consumed) and lazily builds a peer offset table on first
// random-access query against a PEER_INDEX_TABLE payload.
type Record struct {
	Header  Header
	Payload []byte // the Length bytes following the header

	peerTable atomicPeerTablePtr
}

// ErrEndOfStream is returned by ReadMrt when the reader hits EOF exactly
// at a record boundary — distinct from a mid-record read error.
var ErrEndOfStream = errs.Errorf("end of stream")

// ReadMrt reads one framed MRT record from r.
func ReadMrt(r io.Reader) (*Record, error) {
	hdrBuf := make([]byte, headerLen)
	n, err := io.ReadFull(r, hdrBuf)
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, ErrEndOfStream
		}
		return nil, errs.Wrap(err, "reading MRT header")
	}
	var h Header
	h.Timestamp = binary.BigEndian.Uint32(hdrBuf[0:4])
	h.Type = Type(binary.BigEndian.Uint16(hdrBuf[4:6]))
	h.Subtype = Subtype(binary.BigEndian.Uint16(hdrBuf[6:8]))
	h.Length = binary.BigEndian.Uint32(hdrBuf[8:12])

	if isET(h.Type) {
		etBuf := make([]byte, 4)
		if _, err := io.ReadFull(r, etBuf); err != nil {
			return nil, errs.Wrap(err, "reading MRT extended timestamp")
		}
		h.Microseconds = binary.BigEndian.Uint32(etBuf)
		if h.Length < 4 {
			return nil, errs.Errorf("ET record length %d too small for microsecond field", h.Length)
		}
		h.Length -= 4
	}

	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errs.Wrap(err, "reading MRT record payload")
	}
	return &Record{Header: h, Payload: payload}, nil
}

// SplitMrt is a bufio.SplitFunc that frames MRT records out of a byte
// stream without materializing them, mirroring the teacher's
// protocol/mrt.SplitMrt token splitter so callers can plug this into a
// bufio.Scanner for zero-copy sequential scans.
func SplitMrt(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if len(data) < headerLen {
		if atEOF {
			return 0, nil, errs.Errorf("truncated MRT header at end of stream")
		}
		return 0, nil, nil
	}
	mtype := Type(binary.BigEndian.Uint16(data[4:6]))
	hlen := headerLen
	if isET(mtype) {
		hlen = headerLenET
		if len(data) < hlen {
			if atEOF {
				return 0, nil, errs.Errorf("truncated MRT ET header at end of stream")
			}
			return 0, nil, nil
		}
	}
	bodyLen := int(binary.BigEndian.Uint32(data[8:12]))
	total := headerLen + bodyLen
	if len(data) < total {
		if atEOF {
			return 0, nil, errs.Errorf("truncated MRT record at end of stream")
		}
		return 0, nil, nil
	}
	return total, data[:total], nil
}

// NewScanner builds a bufio.Scanner over r split on MRT record
// boundaries, with a buffer large enough for the largest records this
// decoder expects to see (16 MiB, generously above the 64KiB EXMSG BGP
// cap plus RIB fan-out).
func NewScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Split(SplitMrt)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 16<<20)
	return sc
}

// ParseRecord decodes a single complete MRT record (header + payload)
// already framed by SplitMrt/NewScanner.
func ParseRecord(data []byte) (*Record, error) {
	if len(data) < headerLen {
		return nil, errs.Errorf("record shorter than MRT header")
	}
	var h Header
	h.Timestamp = binary.BigEndian.Uint32(data[0:4])
	h.Type = Type(binary.BigEndian.Uint16(data[4:6]))
	h.Subtype = Subtype(binary.BigEndian.Uint16(data[6:8]))
	h.Length = binary.BigEndian.Uint32(data[8:12])
	rest := data[headerLen:]
	if isET(h.Type) {
		if len(rest) < 4 || h.Length < 4 {
			return nil, errs.Errorf("truncated MRT ET microsecond field")
		}
		h.Microseconds = binary.BigEndian.Uint32(rest[0:4])
		rest = rest[4:]
		h.Length -= 4
	}
	if uint32(len(rest)) < h.Length {
		return nil, errs.Errorf("record payload shorter (%d) than declared length (%d)", len(rest), h.Length)
	}
	return &Record{Header: h, Payload: rest[:h.Length]}, nil
}
