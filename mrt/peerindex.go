package mrt

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/CSUNetSec/bgpfilter/addr"
	"github.com/CSUNetSec/bgpfilter/errs"
)

// PeerEntry is one decoded TABLE_DUMPV2 PEER_INDEX_TABLE entry.
type PeerEntry struct {
	TypeFlags uint8
	BgpId     uint32
	PeerAddr  addr.Ip
	PeerAs    uint32
}

const (
	peerFlagIPv6    = 1 << 0
	peerFlagASN32   = 1 << 1
)

func (p PeerEntry) isV6() bool   { return p.TypeFlags&peerFlagIPv6 != 0 }
func (p PeerEntry) isASN32() bool { return p.TypeFlags&peerFlagASN32 != 0 }

// peerTable is the lazily-built auxiliary offset index over a
// PEER_INDEX_TABLE payload: offsets[i] is the byte offset of peer i's
// entry within the payload. Published atomically (spec.md §4.C, §5):
// the writer fills offsets then stores validCount with release
// ordering; readers load validCount with acquire ordering and trust any
// non-zero result without locking. The first builder to finish wins;
// late finishers discard their copy.
type peerTable struct {
	offsets    []int32
	validCount int32 // atomic
}

type atomicPeerTablePtr struct {
	p unsafe.Pointer // *peerTable
}

func (a *atomicPeerTablePtr) load() *peerTable {
	return (*peerTable)(atomic.LoadPointer(&a.p))
}

func (a *atomicPeerTablePtr) casPublish(pt *peerTable) *peerTable {
	if atomic.CompareAndSwapPointer(&a.p, nil, unsafe.Pointer(pt)) {
		return pt
	}
	// someone else published first; use theirs and discard ours.
	return a.load()
}

// PeerIndexTable is the parsed view of a TABLE_DUMPV2 PEER_INDEX_TABLE
// record: collector id, view name, and peer count, plus lazy random
// access to individual peer entries via the Record's peer table.
type PeerIndexTable struct {
	rec         *Record
	CollectorId uint32
	ViewName    string
	PeerCount   int
	entriesOff  int // byte offset of the first peer entry in rec.Payload
}

// ParsePeerIndexTable decodes the fixed PEER_INDEX_TABLE preamble of a
// TABLE_DUMPV2/PEER_INDEX_TABLE record. Individual peer entries are not
// scanned until GetPeerByIndex or Peers is called.
func ParsePeerIndexTable(rec *Record) (*PeerIndexTable, error) {
	if rec.Header.Type != TypeTableDumpV2 || rec.Header.Subtype != SubPeerIndexTable {
		return nil, errs.Errorf("record is not a PEER_INDEX_TABLE")
	}
	buf := rec.Payload
	if len(buf) < 6 {
		return nil, errs.Errorf("PEER_INDEX_TABLE too short for collector id + view length")
	}
	collector := binary.BigEndian.Uint32(buf[0:4])
	viewLen := int(binary.BigEndian.Uint16(buf[4:6]))
	off := 6
	if len(buf) < off+viewLen {
		return nil, errs.Errorf("PEER_INDEX_TABLE too short for view name")
	}
	view := string(buf[off : off+viewLen])
	off += viewLen
	if len(buf) < off+2 {
		return nil, errs.Errorf("PEER_INDEX_TABLE too short for peer count")
	}
	peerCount := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	return &PeerIndexTable{
		rec:         rec,
		CollectorId: collector,
		ViewName:    view,
		PeerCount:   peerCount,
		entriesOff:  off,
	}, nil
}

// peerEntrySize returns the byte size of a peer entry given its flags
// byte (already read at off).
func peerEntrySize(flags uint8) int {
	sz := 1 + 4 // type_flags + bgpId
	if flags&peerFlagIPv6 != 0 {
		sz += 16
	} else {
		sz += 4
	}
	if flags&peerFlagASN32 != 0 {
		sz += 4
	} else {
		sz += 2
	}
	return sz
}

func decodePeerEntryAt(buf []byte, off int) (PeerEntry, int, error) {
	if off >= len(buf) {
		return PeerEntry{}, 0, errs.Errorf("peer entry offset out of range")
	}
	flags := buf[off]
	sz := peerEntrySize(flags)
	if off+sz > len(buf) {
		return PeerEntry{}, 0, errs.Errorf("truncated peer entry")
	}
	var pe PeerEntry
	pe.TypeFlags = flags
	cur := off + 1
	pe.BgpId = binary.BigEndian.Uint32(buf[cur : cur+4])
	cur += 4
	if pe.isV6() {
		pe.PeerAddr = addr.Ip{Family: addr.FamilyV6}
		copy(pe.PeerAddr.Bytes[:16], buf[cur:cur+16])
		cur += 16
	} else {
		pe.PeerAddr = addr.Ip{Family: addr.FamilyV4}
		copy(pe.PeerAddr.Bytes[:4], buf[cur:cur+4])
		cur += 4
	}
	if pe.isASN32() {
		pe.PeerAs = binary.BigEndian.Uint32(buf[cur : cur+4])
		cur += 4
	} else {
		pe.PeerAs = uint32(binary.BigEndian.Uint16(buf[cur : cur+2]))
		cur += 2
	}
	return pe, sz, nil
}

// buildPeerTable performs the linear scan recording every entry's byte
// offset, without publishing it.
func (t *PeerIndexTable) buildPeerTable() (*peerTable, error) {
	buf := t.rec.Payload
	offsets := make([]int32, t.PeerCount)
	off := t.entriesOff
	for i := 0; i < t.PeerCount; i++ {
		offsets[i] = int32(off)
		_, sz, err := decodePeerEntryAt(buf, off)
		if err != nil {
			return nil, errs.Wrap(err, "scanning peer entries")
		}
		off += sz
	}
	return &peerTable{offsets: offsets, validCount: int32(t.PeerCount)}, nil
}

// ensurePeerTable returns the published peer table, building and
// publishing it on first use. Concurrent callers tolerate a stale nil
// read by building and racing to CAS-publish; the loser discards its
// copy and uses the winner's, per spec.md §5.
func (t *PeerIndexTable) ensurePeerTable() (*peerTable, error) {
	if pt := t.rec.peerTable.load(); pt != nil {
		return pt, nil
	}
	pt, err := t.buildPeerTable()
	if err != nil {
		return nil, err
	}
	return t.rec.peerTable.casPublish(pt), nil
}

// GetPeerByIndex returns the i-th peer entry, building the offset table
// on first random access.
func (t *PeerIndexTable) GetPeerByIndex(i int) (PeerEntry, error) {
	if i < 0 || i >= t.PeerCount {
		return PeerEntry{}, errs.Errorf("peer index %d out of range [0,%d)", i, t.PeerCount)
	}
	pt, err := t.ensurePeerTable()
	if err != nil {
		return PeerEntry{}, err
	}
	if int32(i) >= atomic.LoadInt32(&pt.validCount) {
		return PeerEntry{}, errs.Errorf("peer index %d out of range", i)
	}
	pe, _, err := decodePeerEntryAt(t.rec.Payload, int(pt.offsets[i]))
	return pe, err
}

// Peers decodes and returns every peer entry in order.
func (t *PeerIndexTable) Peers() ([]PeerEntry, error) {
	out := make([]PeerEntry, t.PeerCount)
	for i := range out {
		pe, err := t.GetPeerByIndex(i)
		if err != nil {
			return nil, err
		}
		out[i] = pe
	}
	return out, nil
}
