package patricia

import (
	"testing"

	"github.com/CSUNetSec/bgpfilter/addr"
)

func raw(t *testing.T, s string) addr.RawPrefix {
	t.Helper()
	p, err := addr.StringToPrefix(s)
	if err != nil {
		t.Fatal(err)
	}
	return addr.RawPrefix{Family: p.Family(), Width: p.Width, Bytes: p.Bytes}
}

func TestInsertExactRemove(t *testing.T) {
	tr := New(addr.FamilyV4)
	prefixes := []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24", "192.168.0.0/16"}
	for _, s := range prefixes {
		tr.Insert(raw(t, s))
	}
	if tr.Len() != len(prefixes) {
		t.Fatalf("expected %d entries, got %d", len(prefixes), tr.Len())
	}
	for _, s := range prefixes {
		p := raw(t, s)
		got, ok := tr.ExactMatch(p)
		if !ok {
			t.Fatalf("ExactMatch(%s) missing", s)
		}
		if got.Width != p.Width {
			t.Fatalf("ExactMatch(%s) width mismatch", s)
		}
	}
	for _, s := range prefixes {
		if !tr.Remove(raw(t, s)) {
			t.Fatalf("Remove(%s) failed", s)
		}
		if _, ok := tr.ExactMatch(raw(t, s)); ok {
			t.Fatalf("ExactMatch(%s) found after remove", s)
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("expected empty trie, got %d entries", tr.Len())
	}
}

func TestSubnetSupernetRelated(t *testing.T) {
	tr := New(addr.FamilyV4)
	tr.Insert(raw(t, "10.0.0.0/8"))

	if !tr.IsSubnetOf(raw(t, "10.1.0.0/16")) {
		t.Error("expected 10.1.0.0/16 to be a subnet of stored 10.0.0.0/8")
	}
	if tr.IsSupernetOf(raw(t, "10.1.0.0/16")) {
		t.Error("did not expect 10.1.0.0/16 to be a supernet of anything stored")
	}
	if !tr.IsRelatedOf(raw(t, "10.1.0.0/16")) {
		t.Error("expected related (subnet) to be true")
	}
	if tr.IsSubnetOf(raw(t, "11.0.0.0/8")) {
		t.Error("did not expect unrelated prefix to be a subnet")
	}
}

func TestSupernetOfNarrowerStored(t *testing.T) {
	tr := New(addr.FamilyV4)
	tr.Insert(raw(t, "10.1.1.0/24"))
	if !tr.IsSupernetOf(raw(t, "10.0.0.0/8")) {
		t.Error("expected 10.0.0.0/8 to be a supernet of stored 10.1.1.0/24")
	}
	if tr.IsSubnetOf(raw(t, "10.0.0.0/8")) {
		t.Error("10.0.0.0/8 should not be considered a subnet of a narrower stored entry")
	}
}

func TestMultipleSiblings(t *testing.T) {
	tr := New(addr.FamilyV4)
	for _, s := range []string{"1.0.0.0/8", "2.0.0.0/8", "3.0.0.0/8", "1.2.3.0/24"} {
		tr.Insert(raw(t, s))
	}
	for _, s := range []string{"1.0.0.0/8", "2.0.0.0/8", "3.0.0.0/8", "1.2.3.0/24"} {
		if _, ok := tr.ExactMatch(raw(t, s)); !ok {
			t.Fatalf("missing %s", s)
		}
	}
	if !tr.IsSubnetOf(raw(t, "1.2.3.4/32")) {
		t.Error("expected 1.2.3.4/32 to be subnet of 1.2.3.0/24")
	}
}

func TestCoalesceTopLevel(t *testing.T) {
	ps := []string{"10.0.0.0/8", "10.1.0.0/16", "10.1.1.0/24", "192.168.0.0/16"}
	var prefixes []addr.Prefix
	for _, s := range ps {
		p, err := addr.StringToPrefix(s)
		if err != nil {
			t.Fatal(err)
		}
		prefixes = append(prefixes, p)
	}
	out := CoalesceTopLevel(prefixes)
	if len(out) != 2 {
		t.Fatalf("expected 2 top-level prefixes, got %d: %v", len(out), out)
	}
	seen := map[string]bool{}
	for _, p := range out {
		seen[addr.PrefixToString(p)] = true
	}
	if !seen["10.0.0.0/8"] || !seen["192.168.0.0/16"] {
		t.Errorf("unexpected top-level set: %v", out)
	}
}
