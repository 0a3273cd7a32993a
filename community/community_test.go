package community

import "testing"

// TestScenario7Acomtc follows spec.md scenario 7: rules {1:2, 3:*} vs.
// message communities {1:2, 3:9, 4:5} must evaluate ACOMTC true (rule
// 1:2 matched by 1:2; rule 3:* matched by 3:9).
func TestScenario7Acomtc(t *testing.T) {
	rules := []Rule{
		{Hi: 1, Lo: 2},
		{Hi: 3, MaskLo: true},
	}
	idx := NewIndex(rules, true)
	msg := []Value{0x00010002, 0x00030009, 0x00040005}
	if !idx.Acomtc(msg) {
		t.Fatal("expected ACOMTC true")
	}
}

func TestAcomtcFalseWhenOneRuleUnmatched(t *testing.T) {
	rules := []Rule{
		{Hi: 1, Lo: 2},
		{Hi: 3, MaskLo: true},
	}
	idx := NewIndex(rules, true)
	msg := []Value{0x00010002}
	if idx.Acomtc(msg) {
		t.Fatal("expected ACOMTC false: rule 3:* unmatched")
	}
}

func TestComtchAnyMatch(t *testing.T) {
	rules := []Rule{
		{Hi: 10, MaskLo: true}, // hi-only
		{Hi: 0, Lo: 20, MaskHi: true}, // lo-only
	}
	idx := NewIndex(rules, false)
	if !idx.Comtch([]Value{0x000A0001}) {
		t.Fatal("expected hi-only rule 10:* to match 10:1")
	}
	if !idx.Comtch([]Value{0x00050014}) {
		t.Fatal("expected lo-only rule *:20 to match 5:20")
	}
	if idx.Comtch([]Value{0x00050015}) {
		t.Fatal("expected no match for 5:21")
	}
}

func TestComtchOptimizationDropsSubsumedFullRule(t *testing.T) {
	rules := []Rule{
		{Hi: 1, MaskLo: true}, // hiOnly 1:*
		{Hi: 1, Lo: 2},        // full 1:2, subsumed by hiOnly 1:*
	}
	idx := NewIndex(rules, false)
	if len(idx.full) != 0 {
		t.Fatalf("expected full rule subsumed by hiOnly to be dropped, got %v", idx.full)
	}
}

func TestMutualExclusionPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for rule with both maskHi and maskLo set")
		}
	}()
	NewIndex([]Rule{{MaskHi: true, MaskLo: true}}, false)
}

func TestWellKnownNames(t *testing.T) {
	if WellKnown[0xFFFFFF01] != "NO_EXPORT" {
		t.Fatalf("expected NO_EXPORT, got %q", WellKnown[0xFFFFFF01])
	}
}
