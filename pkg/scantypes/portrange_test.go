package scantypes

import "testing"

func TestParsePortRangeScenarioB(t *testing.T) {
	pr, err := ParsePortRange("80-82,443,8080-8082")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pr.Count(); got != 7 {
		t.Fatalf("Count() = %d, want 7", got)
	}
	want := []int{80, 81, 82, 443, 8080, 8081, 8082}
	got := pr.All()
	if len(got) != len(want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("All()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestParsePortRangeErrors(t *testing.T) {
	cases := []string{"0", "70000", "100-50", ""}
	for _, c := range cases {
		if _, err := ParsePortRange(c); err == nil {
			t.Errorf("ParsePortRange(%q) expected error, got nil", c)
		}
	}
}

func TestPortRangeIterNeverYieldsZero(t *testing.T) {
	ranges := []PortRange{
		Single(80),
		Range(1, 65535),
		List(Single(1), Range(2, 10), Single(65535)),
	}
	for _, r := range ranges {
		if r.Count() != len(r.All()) {
			t.Errorf("Count() disagrees with len(All())")
		}
		r.Iter(func(port int) {
			if port == 0 {
				t.Errorf("iteration yielded port 0")
			}
		})
	}
}

func TestPortFilter(t *testing.T) {
	wl := NewWhitelist(80, 443)
	if !wl.Allows(80) || wl.Allows(22) {
		t.Fatalf("whitelist membership wrong")
	}
	bl := NewBlacklist(22)
	if bl.Allows(22) || !bl.Allows(80) {
		t.Fatalf("blacklist membership wrong")
	}
	var empty PortFilter
	if !empty.Allows(1) || !empty.Allows(65535) {
		t.Fatalf("empty filter must accept all")
	}
}
