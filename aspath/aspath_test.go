package aspath

import "testing"

// TestScenario6StartEndLiteralsWithWildcardStar follows spec.md
// scenario 6: pattern "^ 65001 .* 65010 $" against AS-path
// [65001, 65002, 65010] must match, with group 0 spanning the whole
// path.
func TestScenario6StartEndLiteralsWithWildcardStar(t *testing.T) {
	pat := []Token{
		Start(),
		Literal(65001),
		Any(), Star(),
		Literal(65010),
		End(),
	}
	res, err := MatchAsPath(pat, []uint32{65001, 65002, 65010})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched {
		t.Fatal("expected match")
	}
	if res.Groups[0] != (Span{Start: 0, End: 3}) {
		t.Fatalf("expected group 0 = [0,3), got %+v", res.Groups[0])
	}
}

func TestNoMatchWithoutRequiredTail(t *testing.T) {
	pat := []Token{
		Start(),
		Literal(65001),
		Any(), Star(),
		Literal(65010),
		End(),
	}
	res, err := MatchAsPath(pat, []uint32{65001, 65002, 65003})
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched {
		t.Fatal("expected no match")
	}
}

func TestAlternation(t *testing.T) {
	pat := []Token{LParen(), Literal(100), Alt(), Literal(200), RParen()}
	r1, err := MatchAsPath(pat, []uint32{200})
	if err != nil {
		t.Fatal(err)
	}
	if !r1.Matched {
		t.Fatal("expected 200 to match (100|200)")
	}
	r2, err := MatchAsPath(pat, []uint32{300})
	if err != nil {
		t.Fatal(err)
	}
	if r2.Matched {
		t.Fatal("expected 300 not to match (100|200)")
	}
}

func TestCapturingGroup(t *testing.T) {
	pat := []Token{
		Literal(1),
		LParen(), Literal(2), Plus(), RParen(),
		Literal(3),
	}
	res, err := MatchAsPath(pat, []uint32{1, 2, 2, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Matched {
		t.Fatal("expected match")
	}
	if len(res.Groups) != 2 {
		t.Fatalf("expected 2 groups (whole + capture), got %d", len(res.Groups))
	}
	if res.Groups[1] != (Span{Start: 1, End: 4}) {
		t.Fatalf("expected capture group [1,4), got %+v", res.Groups[1])
	}
}

func TestNegatedAsn(t *testing.T) {
	pat := []Token{Not(65001)}
	r1, err := MatchAsPath(pat, []uint32{65002})
	if err != nil {
		t.Fatal(err)
	}
	if !r1.Matched {
		t.Fatal("expected 65002 to match != 65001")
	}
	r2, err := MatchAsPath(pat, []uint32{65001})
	if err != nil {
		t.Fatal(err)
	}
	if r2.Matched {
		t.Fatal("expected 65001 not to match != 65001")
	}
}

func TestGroupNestingLimitEnforced(t *testing.T) {
	var toks []Token
	for i := 0; i < maxGroups+1; i++ {
		toks = append(toks, LParen())
	}
	toks = append(toks, Literal(1))
	for i := 0; i < maxGroups+1; i++ {
		toks = append(toks, RParen())
	}
	if _, err := Compile(toks); err == nil {
		t.Fatal("expected group nesting limit error")
	}
}
