// Package vm implements the filtering bytecode interpreter described in
// spec.md §4.G/§4.L: a stack-based VM over a bidirectional bump-allocated
// heap arena, dispatching a fixed instruction set against a decoded BGP
// message (and its associated prefix tries, AS-path NFA programs, and
// community indexes).
//
// No repo in the retrieval pack implements a bytecode VM; the bump
// arena and dispatch loop are built directly from spec.md's description,
// following the teacher's general style of small plain structs with
// explicit, checked-error methods rather than a generated or reflective
// dispatch table (cmd/gobgpdump/filter.go's switch-over-operator-string
// filter evaluator is the closest texture precedent in the pack for a
// hand-rolled "switch over opcode, mutate small interpreter state"
// loop, generalized here from a filter predicate tree to a flat
// instruction stream).
package vm

import (
	"encoding/binary"

	"github.com/CSUNetSec/bgpfilter/aspath"
	"github.com/CSUNetSec/bgpfilter/bgp"
	"github.com/CSUNetSec/bgpfilter/community"
	"github.com/CSUNetSec/bgpfilter/errs"
	"github.com/CSUNetSec/bgpfilter/patricia"
)

const slotSize = 8

// NetSet selects which address iterator an EXCT/SUBN/SUPN/RELT
// instruction scans, per spec.md §4.G.
type NetSet uint8

const (
	NetNLRI NetSet = iota
	NetMPReach
	NetAllNLRI
	NetWithdrawn
	NetMPUnreach
	NetAllWithdrawn
)

// Inst is one bytecode instruction: an 8-bit opcode and an 8-bit
// operand, per spec.md §6's "(opcode:u8 low, arg:u8 high)" bytecode
// format.
type Inst struct {
	Op  Op
	Arg uint8
}

// Func is a user-callable routine invoked by CALL.
type Func func(v *Vm) error

// Vm is the filtering interpreter. Build one with New, configure its
// constant/function/trie/NFA/community tables, then call Exec once per
// message; reuse across messages via ResetVm.
type Vm struct {
	prog []Inst

	k     []int64
	funcs []Func

	nfaPrograms  []*aspath.Program
	comIndexes   []*community.Index
	tries4       []*patricia.Trie
	tries6       []*patricia.Trie

	msg *bgp.BgpMessage

	heap      []byte
	permMark  int // frozen after setup; boundary between permanent data and the stack region
	hLowMark  int
	hHighMark int
	pc        int
	si        int
	nblk      int

	curMatch *MatchRecord
	matches  *MatchRecord

	setupFailed bool
	errPlane    errs.Plane
}

// New allocates a Vm with a heap of heapSize bytes (rounded up to a
// multiple of 8, minimum 8KiB per spec.md §9's bidirectional-arena
// alignment requirement).
func New(heapSize int) *Vm {
	if heapSize < 8192 {
		heapSize = 8192
	}
	heapSize = alignUp(heapSize)
	return &Vm{
		heap:      make([]byte, heapSize),
		hHighMark: heapSize,
	}
}

func alignUp(n int) int {
	return (n + 7) &^ 7
}

// SetProgram installs the bytecode program. Must be called before any
// Exec; calling it after Exec has run requires ResetVm first.
func (v *Vm) SetProgram(prog []Inst) { v.prog = prog }

// AddConst appends one LOADK constant slot, returning its index.
func (v *Vm) AddConst(val int64) int { v.k = append(v.k, val); return len(v.k) - 1 }

// AddFunc appends one CALL target, returning its index.
func (v *Vm) AddFunc(f Func) int { v.funcs = append(v.funcs, f); return len(v.funcs) - 1 }

// AddNfaProgram registers a compiled AS-path regex program for ASMTCH,
// returning the index a LOADK constant should carry to reference it.
func (v *Vm) AddNfaProgram(p *aspath.Program) int {
	v.nfaPrograms = append(v.nfaPrograms, p)
	return len(v.nfaPrograms) - 1
}

// AddCommunityIndex registers a compiled community.Index for
// COMTCH/ACOMTC.
func (v *Vm) AddCommunityIndex(idx *community.Index) int {
	v.comIndexes = append(v.comIndexes, idx)
	return len(v.comIndexes) - 1
}

// AddTrie4/AddTrie6 register a prefix trie for EXCT/SUBN/SUPN/RELT. The
// instruction's two trie operands are stack values holding the indices
// returned here (pushed via LOADK), since a patricia.Trie is not itself
// an 8-byte scalar.
func (v *Vm) AddTrie4(t *patricia.Trie) int { v.tries4 = append(v.tries4, t); return len(v.tries4) - 1 }
func (v *Vm) AddTrie6(t *patricia.Trie) int { v.tries6 = append(v.tries6, t); return len(v.tries6) - 1 }

// FreezeSetup records the arena's current low-water mark as the
// permanent boundary; ResetVm rewinds the stack to it. The tables filled
// by AddConst/AddFunc/etc. are Go slices outside the arena, so
// FreezeSetup neither covers nor locks them. Must be called
// once, after all setup and before the first Exec.
func (v *Vm) FreezeSetup() { v.permMark = v.hLowMark }

// ResetVm clears per-execution state (stack, blocks, match list,
// program counter) but keeps the permanent tables installed by
// AddConst/AddFunc/AddNfaProgram/etc. — the spec.md §5 "VM permanent
// allocations are released only by ClearVm" lifecycle split.
func (v *Vm) ResetVm() {
	v.pc = 0
	v.si = 0
	v.nblk = 0
	v.hLowMark = v.permMark
	v.hHighMark = len(v.heap)
	v.curMatch = nil
	v.matches = nil
	v.setupFailed = false
}

// ClearVm fully resets the Vm, including the permanent tables; after
// ClearVm a fresh SetProgram/Add*/FreezeSetup sequence is required.
func (v *Vm) ClearVm() {
	v.prog = nil
	v.k = nil
	v.funcs = nil
	v.nfaPrograms = nil
	v.comIndexes = nil
	v.tries4 = nil
	v.tries6 = nil
	v.permMark = 0
	v.ResetVm()
}

// push writes val into the stack region, growing hLowMark by one slot.
func (v *Vm) push(val int64) error {
	if v.hHighMark-v.hLowMark < slotSize {
		return v.fail(errs.ErrStackOverflow, "push")
	}
	binary.BigEndian.PutUint64(v.heap[v.hLowMark:v.hLowMark+slotSize], uint64(val))
	v.hLowMark += slotSize
	v.si++
	return nil
}

func (v *Vm) pop() (int64, error) {
	if v.si == 0 {
		return 0, v.fail(errs.ErrStackUnderflow, "pop")
	}
	v.hLowMark -= slotSize
	v.si--
	return int64(binary.BigEndian.Uint64(v.heap[v.hLowMark : v.hLowMark+slotSize])), nil
}

func (v *Vm) peek() (int64, error) {
	if v.si == 0 {
		return 0, v.fail(errs.ErrStackUnderflow, "peek")
	}
	return int64(binary.BigEndian.Uint64(v.heap[v.hLowMark-slotSize : v.hLowMark])), nil
}

// tempAlloc bump-allocates n (8-aligned) bytes from the descending
// temp region, returning the offset, or an error if the heap is
// exhausted (hHighMark would cross hLowMark).
func (v *Vm) tempAlloc(n int) (int, error) {
	n = alignUp(n)
	if v.hHighMark-n < v.hLowMark {
		return 0, v.fail(errs.ErrHeapExhausted, "tempAlloc")
	}
	v.hHighMark -= n
	return v.hHighMark, nil
}

func (v *Vm) fail(code errs.Code, op string) error {
	err := errs.Errorf("vm: %s", code)
	return v.errPlane.Set(code, errs.Loc{Op: op}, err)
}

// Exec runs the installed program against msg from pc=0, returning
// PASS (true) or FAIL (false). Per spec.md §4.G's termination rule,
// the result is TRUE unless curMatch.isPassing was left false or an
// error was raised.
func (v *Vm) Exec(msg *bgp.BgpMessage) (bool, error) {
	if len(v.prog) == 0 {
		return false, v.fail(errs.ErrEmptyProgram, "Exec")
	}
	v.ResetVm()
	v.msg = msg
	v.curMatch = &MatchRecord{IsPassing: true}

	for {
		if v.pc >= len(v.prog) {
			break
		}
		in := v.prog[v.pc]
		halt, passing, err := v.step(in)
		if err != nil {
			return false, err
		}
		if halt {
			return passing, nil
		}
	}
	return v.curMatch.IsPassing, nil
}
