package shuffle

import "testing"

func TestBijectionScenarioC(t *testing.T) {
	br := New(256, 0x123456, 2)
	seen := make(map[uint64]bool, 256)
	for i := uint64(0); i < 256; i++ {
		v := br.Shuffle(i)
		if v >= 256 {
			t.Fatalf("shuffle(%d) = %d out of range", i, v)
		}
		if seen[v] {
			t.Fatalf("shuffle(%d) = %d is a duplicate", i, v)
		}
		seen[v] = true
	}
	if len(seen) != 256 {
		t.Fatalf("got %d distinct outputs, want 256", len(seen))
	}
}

func TestUnshuffleInvertsShuffle(t *testing.T) {
	for _, n := range []uint64{1, 2, 3, 5, 7, 8, 100, 1000, 65536} {
		br := New(n, 42, 3)
		for i := uint64(0); i < n; i += step(n) {
			s := br.Shuffle(i)
			if u := br.Unshuffle(s); u != i {
				t.Fatalf("n=%d: Unshuffle(Shuffle(%d)=%d) = %d, want %d", n, i, s, u, i)
			}
		}
	}
}

func step(n uint64) uint64 {
	if n < 1000 {
		return 1
	}
	return n / 997
}

func TestDeterminism(t *testing.T) {
	a := New(10000, 777, 2)
	b := New(10000, 777, 2)
	for i := uint64(0); i < 10000; i += 37 {
		if a.Shuffle(i) != b.Shuffle(i) {
			t.Fatalf("non-deterministic shuffle at i=%d", i)
		}
	}
}

func TestDifferentSeedsDiffer(t *testing.T) {
	a := New(1000, 1, 2)
	b := New(1000, 2, 2)
	diff := 0
	for i := uint64(0); i < 1000; i++ {
		if a.Shuffle(i) != b.Shuffle(i) {
			diff++
		}
	}
	if diff < 500 {
		t.Fatalf("expected most outputs to differ between seeds, got %d/1000", diff)
	}
}

func TestSmallDomains(t *testing.T) {
	for n := uint64(1); n <= 8; n++ {
		br := New(n, 5, 2)
		seen := make(map[uint64]bool)
		for i := uint64(0); i < n; i++ {
			v := br.Shuffle(i)
			if v >= n || seen[v] {
				t.Fatalf("n=%d: bad shuffle output %d at i=%d", n, v, i)
			}
			seen[v] = true
		}
	}
}

func TestSipHash24ConformanceScenarioD(t *testing.T) {
	k0 := uint64(0x0706050403020100)
	k1 := uint64(0x0F0E0D0C0B0A0908)

	if got := SipHash24(k0, k1, nil); got != 0x726fdb47dd0e0e31 {
		t.Fatalf("SipHash24(empty) = %#x, want 0x726fdb47dd0e0e31", got)
	}

	msg := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	if got := SipHash24(k0, k1, msg); got != 0x93f5f5799a932462 {
		t.Fatalf("SipHash24(0x00..07) = %#x, want 0x93f5f5799a932462", got)
	}
}

func TestBijectionWithSipHashRoundFunc(t *testing.T) {
	br := NewWithRoundFunc(256, 99, 3, SipHashRoundFunc)
	seen := make(map[uint64]bool, 256)
	for i := uint64(0); i < 256; i++ {
		v := br.Shuffle(i)
		if seen[v] || v >= 256 {
			t.Fatalf("SipHash round func shuffle not bijective at i=%d", i)
		}
		seen[v] = true
	}
}
