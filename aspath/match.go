package aspath

// thread is one live NFA execution point, carrying its own submatch
// capture slots (Pike's clist/nlist simulation technique avoids
// backtracking by running every live thread one input symbol at a
// time, in priority order so the first-added thread's captures win
// ties — giving leftmost-longest semantics for free).
type thread struct {
	pc   int
	caps []int
}

type threadList struct {
	threads []thread
	onList  []bool // indexed by pc; dense membership check
}

func newThreadList(n int) *threadList {
	return &threadList{onList: make([]bool, n)}
}

func (l *threadList) reset() {
	l.threads = l.threads[:0]
	for i := range l.onList {
		l.onList[i] = false
	}
}

// addThread follows epsilon transitions (split/jmp/save/bol/eol) from
// pc, pushing every reachable consuming or matching instruction onto
// the list exactly once.
func (l *threadList) addThread(prog *Program, pc int, caps []int, pos int, pathLen int) {
	if l.onList[pc] {
		return
	}
	l.onList[pc] = true
	in := prog.insts[pc]
	switch in.op {
	case opSplit:
		l.addThread(prog, in.x, caps, pos, pathLen)
		l.addThread(prog, in.y, caps, pos, pathLen)
	case opJmp:
		l.addThread(prog, in.x, caps, pos, pathLen)
	case opSave:
		next := make([]int, len(caps))
		copy(next, caps)
		if in.slot < len(next) {
			next[in.slot] = pos
		}
		l.addThread(prog, in.x, next, pos, pathLen)
	case opBol:
		if pos == 0 {
			l.addThread(prog, in.x, caps, pos, pathLen)
		}
	case opEol:
		if pos == pathLen {
			l.addThread(prog, in.x, caps, pos, pathLen)
		}
	default:
		l.threads = append(l.threads, thread{pc: pc, caps: caps})
	}
}

// MatchResult holds leftmost-longest submatch captures: Groups[0] is
// the whole-pattern span, Groups[i] the i-th parenthesized group.
// A group that did not participate has Start == -1.
type MatchResult struct {
	Matched bool
	Groups  []Span
}

// Span is a half-open [Start, End) range of AS-path indices.
type Span struct {
	Start, End int
}

// Run simulates prog against path, returning the leftmost-longest
// overall match (per spec.md §4.H's submatch semantics: among threads
// that reach opMatch, the one added earliest — i.e. the
// highest-priority/leftmost alternative — at the position with the
// largest end offset wins).
func Run(prog *Program, path []uint32) MatchResult {
	n := len(prog.insts)
	clist := newThreadList(n)
	nlist := newThreadList(n)

	initCaps := make([]int, prog.numGroups*2)
	for i := range initCaps {
		initCaps[i] = -1
	}

	var best []int
	matched := false

	clist.addThread(prog, 0, initCaps, 0, len(path))

	for pos := 0; ; pos++ {
		if len(clist.threads) == 0 {
			break
		}
		nlist.reset()
		var asn uint32
		haveAsn := pos < len(path)
		if haveAsn {
			asn = path[pos]
		}
		matchedThisPos := false
		for _, th := range clist.threads {
			in := prog.insts[th.pc]
			switch in.op {
			case opChar:
				if haveAsn && asn == in.asn {
					nlist.addThread(prog, in.x, th.caps, pos+1, len(path))
				}
			case opNegChar:
				if haveAsn && asn != in.asn {
					nlist.addThread(prog, in.x, th.caps, pos+1, len(path))
				}
			case opAny:
				if haveAsn {
					nlist.addThread(prog, in.x, th.caps, pos+1, len(path))
				}
			case opMatch:
				// Threads are added in priority order, so the first
				// MATCH reached at a given position is the highest-
				// priority (leftmost) alternative; later positions
				// still overwrite earlier ones, giving the longest
				// overall match among leftmost alternatives. Group 0's
				// span is captured by the opSave 0/1 pair Compile
				// wraps every program in, so th.caps is already
				// complete by the time opMatch is reached.
				if matchedThisPos {
					continue
				}
				matchedThisPos = true
				best = th.caps
				matched = true
			}
		}
		clist, nlist = nlist, clist
		if !haveAsn {
			break
		}
	}

	res := MatchResult{Matched: matched}
	if matched {
		res.Groups = make([]Span, prog.numGroups)
		for g := 0; g < prog.numGroups; g++ {
			res.Groups[g] = Span{Start: best[g*2], End: best[g*2+1]}
		}
	}
	return res
}

// MatchAsPath compiles pattern tokens and runs them against an
// already-decoded AS-path ASN sequence in one call.
func MatchAsPath(toks []Token, path []uint32) (MatchResult, error) {
	prog, err := Compile(toks)
	if err != nil {
		return MatchResult{}, err
	}
	return Run(prog, path), nil
}
