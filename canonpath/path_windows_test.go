//go:build windows

package canonpath

import "testing"

// Vectors from Ninja's canonical_path_test.cc SlashTracking cases: value
// tracks the resolved path, slash_bits tracks which surviving separator
// in the FINAL output was originally a back-slash (bit i <-> the i-th '/'
// in Value(), left to right).
func TestCanonicalize_SlashBits(t *testing.T) {
	cases := []struct {
		in       string
		want     string
		wantBits uint64
	}{
		{"a\\b\\c\\foo.h", "a/b/c/foo.h", 0x7},
		{"a\\../efh\\foo.h", "efh/foo.h", 0x1},
		{"a\\b\\c\\..\\..\\..\\g\\foo.h", "g/foo.h", 0x1},
		{"a\\\\\\foo.h", "a/foo.h", 0x1},
	}
	for _, c := range cases {
		p := New(c.in)
		if p.Value() != c.want {
			t.Errorf("New(%q).Value() = %q, want %q", c.in, p.Value(), c.want)
		}
		if p.SlashBits() != c.wantBits {
			t.Errorf("New(%q).SlashBits() = %#x, want %#x", c.in, p.SlashBits(), c.wantBits)
		}
	}
}

func TestDecanonicalized_RestoresBackslashes(t *testing.T) {
	p := New("a\\b\\c\\foo.h")
	if got := p.Decanonicalized(); got != "a\\b\\c\\foo.h" {
		t.Errorf("Decanonicalized() = %q, want %q", got, "a\\b\\c\\foo.h")
	}
}

func TestCanonicalize_NetworkPathPreserved(t *testing.T) {
	p := New("\\\\foo\\bar.h")
	if p.Value() != "//foo/bar.h" {
		t.Errorf("New(network path).Value() = %q, want %q", p.Value(), "//foo/bar.h")
	}
}
