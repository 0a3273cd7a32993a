package addr

import "testing"

func TestStringToPrefixRoundTrip(t *testing.T) {
	cases := []string{
		"10.0.0.0/8",
		"192.168.1.1/32",
		"0.0.0.0/0",
		"2001:db8::/32",
		"::1/128",
		"::/0",
	}
	for _, s := range cases {
		p, err := StringToPrefix(s)
		if err != nil {
			t.Fatalf("StringToPrefix(%q): %v", s, err)
		}
		got := PrefixToString(p)
		if got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestStringToPrefixImplicitWidth(t *testing.T) {
	p, err := StringToPrefix("10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Width != 32 {
		t.Errorf("expected implicit width 32, got %d", p.Width)
	}
}

func TestStringToPrefixBadWidth(t *testing.T) {
	if _, err := StringToPrefix("10.0.0.0/33"); err == nil {
		t.Error("expected error for width > 32 on IPv4")
	}
	if _, err := StringToPrefix("::/129"); err == nil {
		t.Error("expected error for width > 128 on IPv6")
	}
}

func TestIpRoundTrip(t *testing.T) {
	for _, s := range []string{"1.2.3.4", "::ffff:ffff", "fe80::1"} {
		ip, err := StringToIp(s)
		if err != nil {
			t.Fatalf("StringToIp(%q): %v", s, err)
		}
		back, err := StringToIp(IpToString(ip))
		if err != nil {
			t.Fatal(err)
		}
		if !Equal(ip, back) {
			t.Errorf("Ip round trip mismatch for %q", s)
		}
	}
}

func TestContainsAndOverlaps(t *testing.T) {
	super, _ := StringToPrefix("10.0.0.0/8")
	sub, _ := StringToPrefix("10.1.0.0/16")
	if !Contains(super, sub) {
		t.Error("expected 10.0.0.0/8 to contain 10.1.0.0/16")
	}
	if Contains(sub, super) {
		t.Error("did not expect 10.1.0.0/16 to contain 10.0.0.0/8")
	}
	if !Overlaps(super, sub) || !Overlaps(sub, super) {
		t.Error("expected overlap both directions")
	}
	unrelated, _ := StringToPrefix("11.0.0.0/8")
	if Overlaps(super, unrelated) {
		t.Error("did not expect overlap between disjoint prefixes")
	}
}
