package canonpath

import "testing"

// Vectors below are taken from Ninja's own canonical_path_test.cc, not
// from looser prose restatements, since that file is the authoritative
// behavior this package reproduces.
func TestCanonicalize_Vectors(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "."},
		{".", "."},
		{"foo.h", "foo.h"},
		{"./foo.h", "foo.h"},
		{"foo/./bar.h", "foo/bar.h"},
		{"foo/../bar.h", "bar.h"},
		{"foo/..", "."},
		{"foo/bar/..", "foo"},
		{"foo/../../bar.h", "../bar.h"},
		{"../foo.h", "../foo.h"},
		{"../..", "../.."},
		{"./x/foo/../../bar.h", "bar.h"},
		{"./x/../foo/../../bar.h", "../bar.h"},
		{"/foo", "/foo"},
		{"/foo/../", "/"},
		{"/foo/..", "/"},
		{"/../", "/.."},
		{"/../..", "/../.."},
		{"//foo", "/foo"},
		{"a/b/c/../../../g/foo.h", "g/foo.h"},
	}
	for _, c := range cases {
		got := New(c.in).Value()
		if got != c.want {
			t.Errorf("New(%q).Value() = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{"./x/foo/../../bar.h", "a/b/../c", "/../foo", "plain/path.h"}
	for _, in := range inputs {
		once := New(in).Value()
		twice := New(once).Value()
		if once != twice {
			t.Errorf("canonicalization not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestEqual_RespectsCanonicalForm(t *testing.T) {
	a := New("foo/./bar.h")
	b := New("foo/bar.h")
	if !a.Equal(b) {
		t.Errorf("expected %q and %q to compare equal", a.Value(), b.Value())
	}
	c := New("foo/baz.h")
	if a.Equal(c) {
		t.Errorf("expected %q and %q to differ", a.Value(), c.Value())
	}
}

func TestHash_StableAcrossEquivalentForms(t *testing.T) {
	a := New("foo/./bar.h")
	b := New("foo/bar.h")
	if a.Hash() != b.Hash() {
		t.Errorf("expected equivalent canonical paths to hash identically")
	}
}

func TestMakeRaw_RoundTripsValue(t *testing.T) {
	p := MakeRaw("bar/baz.h", 0)
	if p.Value() != "bar/baz.h" {
		t.Errorf("MakeRaw value mismatch: %q", p.Value())
	}
}
