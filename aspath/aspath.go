// Package aspath implements the AS-path regular-expression matcher
// described in spec.md §4.H: a small IR over AS-path tokens, a
// shunting-yard compiler to a postfix form, Thompson NFA construction,
// and a two-list (clist/nlist) simulator yielding leftmost-longest
// submatch captures.
//
// No example repo in the retrieval pack implements a Thompson NFA, so
// this package is built directly from spec.md's description and the
// classic construction (Thompson 1968; Pike's clist/nlist simulation
// technique), in the teacher's plain-struct, no-framework style.
package aspath

import (
	"github.com/CSUNetSec/bgpfilter/errs"
)

// TokKind is the AS-path regex IR alphabet (spec.md §4.H).
type TokKind uint8

const (
	TokAs32    TokKind = iota // literal ASN
	TokNegAs32                // negated ASN ("not this ASN")
	TokAny                    // "." — any single ASN
	TokStart                  // "^" — path start anchor
	TokEnd                    // "$" — path end anchor
	TokStar                   // "*" — zero or more (postfix)
	TokQuest                  // "?" — zero or one (postfix)
	TokPlus                   // "+" — one or more (postfix)
	TokAlt                    // "|" — alternation (infix)
	TokCat                    // implicit concatenation (infix)
	TokLPar                   // "("
	TokRPar                   // ")"
)

// Token is one lexical unit of an AS-path pattern.
type Token struct {
	Kind TokKind
	Asn  uint32 // meaningful for TokAs32/TokNegAs32
}

const maxGroups = 32

// precedence table: higher binds tighter. BOTTOM < ALT < CAT <
// STAR/QUEST/PLUS < LPAR, matching spec.md §4.H.
func precedence(k TokKind) int {
	switch k {
	case TokAlt:
		return 1
	case TokCat:
		return 2
	case TokStar, TokQuest, TokPlus:
		return 3
	case TokLPar:
		return 4
	}
	return 0
}

// opStackEntry is an operator awaiting application in the shunting-yard
// compiler, tagged with the group index it opens (for LPAR) or -1.
type opStackEntry struct {
	kind      TokKind
	groupIdx  int
}

// Program is a compiled Thompson NFA: a flat instruction list plus the
// number of capturing groups it declares (including group 0, the
// whole-pattern match).
type Program struct {
	insts     []inst
	numGroups int
}

type instOp uint8

const (
	opChar instOp = iota // match literal ASN (arg = asn)
	opNegChar             // match any ASN != arg
	opAny                 // match any ASN
	opBol                 // assert path start, consumes nothing
	opEol                 // assert path end, consumes nothing
	opSplit               // two outs: x, y
	opJmp                 // one out: x
	opSave                // save current position into slot arg, consumes nothing
	opMatch               // accept
)

type inst struct {
	op    instOp
	asn   uint32
	x, y  int // successor program-counters; -1 where unused
	slot  int // for opSave
}

// progSizeMultiplier bounds compiled program size to spec.md §9's 6n
// instructions-per-token budget, catching pathological patterns before
// they blow the NFA simulation's memory.
const progSizeMultiplier = 6

// Compile shunting-yard-compiles and Thompson-constructs toks
// into a Program. Group nesting depth is capped at maxGroups per
// spec.md §4.H.
func Compile(toks []Token) (*Program, error) {
	postfix, err := toPostfix(toks)
	if err != nil {
		return nil, err
	}
	maxSize := len(toks)*progSizeMultiplier + 8
	b := &builder{maxSize: maxSize}

	// Wrap the compiled expression with an implicit group 0 (the
	// whole-pattern span): opSave 0 must land at pc 0 since Run always
	// seeds its entry thread there.
	startPc := b.emit(inst{op: opSave, slot: 0, x: -1})
	frag, err := b.build(postfix)
	if err != nil {
		return nil, err
	}
	b.insts[startPc].x = frag.start

	endPc := b.emit(inst{op: opSave, slot: 1, x: -1})
	b.patch(frag.out, endPc)
	matchPc := b.emit(inst{op: opMatch})
	b.insts[endPc].x = matchPc

	return &Program{insts: b.insts, numGroups: b.groupCount + 1}, nil
}

// toPostfix runs the shunting-yard algorithm, inserting implicit CAT
// tokens between adjacent literal/group operands.
func toPostfix(toks []Token) ([]Token, error) {
	toks = insertConcat(toks)
	var out []Token
	var ops []opStackEntry
	groupIdx := 0
	depth := 0

	pushOp := func(k TokKind) error {
		for len(ops) > 0 {
			top := ops[len(ops)-1]
			if top.kind == TokLPar {
				break
			}
			if precedence(top.kind) < precedence(k) {
				break
			}
			out = append(out, Token{Kind: top.kind})
			ops = ops[:len(ops)-1]
		}
		ops = append(ops, opStackEntry{kind: k, groupIdx: -1})
		return nil
	}

	for _, t := range toks {
		switch t.Kind {
		case TokAs32, TokNegAs32, TokAny, TokStart, TokEnd:
			out = append(out, t)
		case TokLPar:
			depth++
			if depth > maxGroups {
				return nil, errs.Errorf("AS-path regex group nesting exceeds %d (BGPEVMGRPL)", maxGroups)
			}
			groupIdx++
			ops = append(ops, opStackEntry{kind: TokLPar, groupIdx: groupIdx})
			out = append(out, Token{Kind: TokLPar, Asn: uint32(groupIdx)})
		case TokRPar:
			depth--
			for len(ops) > 0 && ops[len(ops)-1].kind != TokLPar {
				out = append(out, Token{Kind: ops[len(ops)-1].kind})
				ops = ops[:len(ops)-1]
			}
			if len(ops) == 0 {
				return nil, errs.Errorf("unbalanced AS-path regex parentheses")
			}
			g := ops[len(ops)-1].groupIdx
			ops = ops[:len(ops)-1]
			out = append(out, Token{Kind: TokRPar, Asn: uint32(g)})
		case TokStar, TokQuest, TokPlus, TokAlt, TokCat:
			if err := pushOp(t.Kind); err != nil {
				return nil, err
			}
		}
	}
	for len(ops) > 0 {
		top := ops[len(ops)-1]
		if top.kind == TokLPar {
			return nil, errs.Errorf("unbalanced AS-path regex parentheses")
		}
		out = append(out, Token{Kind: top.kind})
		ops = ops[:len(ops)-1]
	}
	return out, nil
}

// insertConcat threads an implicit TokCat between any two tokens that
// would otherwise be juxtaposed operands (literal/group boundaries).
func insertConcat(toks []Token) []Token {
	isOperandEnd := func(k TokKind) bool {
		switch k {
		case TokAs32, TokNegAs32, TokAny, TokStart, TokEnd, TokRPar, TokStar, TokQuest, TokPlus:
			return true
		}
		return false
	}
	isOperandStart := func(k TokKind) bool {
		switch k {
		case TokAs32, TokNegAs32, TokAny, TokStart, TokEnd, TokLPar:
			return true
		}
		return false
	}
	var out []Token
	for i, t := range toks {
		if i > 0 && isOperandEnd(toks[i-1].Kind) && isOperandStart(t.Kind) {
			out = append(out, Token{Kind: TokCat})
		}
		out = append(out, t)
	}
	return out
}

// fragment is a partially-built NFA: its entry pc, and the list of
// dangling "out" pointers still needing a successor patched in.
type fragment struct {
	start int
	out   []patchPoint
}

// patchPoint names a dangling successor slot (x or y) of an
// instruction, for deferred patching.
type patchPoint struct {
	pc   int
	slot int // 0 = x, 1 = y
}

type builder struct {
	insts      []inst
	groupCount int
	maxSize    int
}

func (b *builder) emit(in inst) int {
	b.insts = append(b.insts, in)
	return len(b.insts) - 1
}

func (b *builder) patch(points []patchPoint, pc int) {
	for _, p := range points {
		if p.slot == 0 {
			b.insts[p.pc].x = pc
		} else {
			b.insts[p.pc].y = pc
		}
	}
}

func (b *builder) build(postfix []Token) (fragment, error) {
	var stack []fragment
	push := func(f fragment) { stack = append(stack, f) }
	pop := func() fragment {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return f
	}

	for _, t := range postfix {
		if len(b.insts) > b.maxSize {
			return fragment{}, errs.Errorf("AS-path regex program too large (BGPEVMNFAC)")
		}
		switch t.Kind {
		case TokAs32:
			pc := b.emit(inst{op: opChar, asn: t.Asn, x: -1})
			push(fragment{start: pc, out: []patchPoint{{pc, 0}}})
		case TokNegAs32:
			pc := b.emit(inst{op: opNegChar, asn: t.Asn, x: -1})
			push(fragment{start: pc, out: []patchPoint{{pc, 0}}})
		case TokAny:
			pc := b.emit(inst{op: opAny, x: -1})
			push(fragment{start: pc, out: []patchPoint{{pc, 0}}})
		case TokStart:
			pc := b.emit(inst{op: opBol, x: -1})
			push(fragment{start: pc, out: []patchPoint{{pc, 0}}})
		case TokEnd:
			pc := b.emit(inst{op: opEol, x: -1})
			push(fragment{start: pc, out: []patchPoint{{pc, 0}}})
		case TokLPar:
			g := int(t.Asn)
			if g > b.groupCount {
				b.groupCount = g
			}
			pc := b.emit(inst{op: opSave, slot: g * 2, x: -1})
			push(fragment{start: pc, out: []patchPoint{{pc, 0}}})
		case TokRPar:
			g := int(t.Asn)
			pc := b.emit(inst{op: opSave, slot: g*2 + 1, x: -1})
			if len(stack) < 2 {
				return fragment{}, errs.Errorf("malformed AS-path regex expression")
			}
			f := pop()
			open := pop()
			b.patch(open.out, f.start)
			b.patch(f.out, pc)
			push(fragment{start: open.start, out: []patchPoint{{pc, 0}}})
		case TokCat:
			f2 := pop()
			f1 := pop()
			b.patch(f1.out, f2.start)
			push(fragment{start: f1.start, out: f2.out})
		case TokAlt:
			f2 := pop()
			f1 := pop()
			pc := b.emit(inst{op: opSplit, x: f1.start, y: f2.start})
			push(fragment{start: pc, out: append(f1.out, f2.out...)})
		case TokStar:
			f1 := pop()
			pc := b.emit(inst{op: opSplit, x: f1.start, y: -1})
			b.patch(f1.out, pc)
			push(fragment{start: pc, out: []patchPoint{{pc, 1}}})
		case TokPlus:
			f1 := pop()
			pc := b.emit(inst{op: opSplit, x: f1.start, y: -1})
			b.patch(f1.out, pc)
			push(fragment{start: f1.start, out: []patchPoint{{pc, 1}}})
		case TokQuest:
			f1 := pop()
			pc := b.emit(inst{op: opSplit, x: f1.start, y: -1})
			push(fragment{start: pc, out: append(f1.out, patchPoint{pc, 1})})
		default:
			return fragment{}, errs.Errorf("unexpected token in postfix stream")
		}
	}
	if len(stack) != 1 {
		return fragment{}, errs.Errorf("malformed AS-path regex expression")
	}
	return pop(), nil
}
