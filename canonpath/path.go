// Package canonpath implements CanonicalPath, the normalized path value
// Ninja-compatible build executors use to identify targets in the build
// graph: forward-slash separators, no interior "." or ".." fragments, no
// duplicate separators, and (on Windows) a side-channel bit mask that
// allows lossless recovery of which separators were originally
// back-slashes.
package canonpath

import (
	"strings"

	"github.com/zeebo/blake3"
)

// CanonicalPath is an immutable, canonicalized path value. The zero value
// holds the empty string, not "."; New("") yields the canonical form of
// the empty path. Equality and hashing are
// defined over the canonical string only; SlashBits is metadata used
// solely for lossy recovery of the original separator style.
type CanonicalPath struct {
	value_     string
	slashBits_ uint64
}

// New canonicalizes path and returns the resulting value.
func New(path string) CanonicalPath {
	value, bits := canonicalize(path)
	return CanonicalPath{value_: value, slashBits_: bits}
}

// MakeRaw reconstructs a CanonicalPath from an already-canonical string and
// an explicit slash-bits mask, without re-running canonicalization. Callers
// must only pass strings that are already in canonical form.
func MakeRaw(value string, slashBits uint64) CanonicalPath {
	return CanonicalPath{value_: value, slashBits_: slashBits}
}

// Value returns the canonical path as a UTF-8 string, always using forward
// slashes.
func (p CanonicalPath) Value() string { return p.value_ }

// SlashBits returns the bit mask recording which separators of the
// canonical value were back-slashes in the original input: bit i belongs
// to the i-th '/' of Value(), counting from the left, and the 64th
// separator and every later one share bit 63. Always 0 on platforms where
// back-slash is not a path separator.
func (p CanonicalPath) SlashBits() uint64 { return p.slashBits_ }

// Decanonicalized returns the non-canonical form of this path: on
// platforms where back-slash is a separator, each forward slash at bit
// position i is replaced with a back-slash when bit i of SlashBits is set;
// elsewhere it is identical to Value().
func (p CanonicalPath) Decanonicalized() string {
	return decanonicalize(p.value_, p.slashBits_)
}

// Equal reports whether p and other have the same canonical value.
func (p CanonicalPath) Equal(other CanonicalPath) bool { return p.value_ == other.value_ }

// Less orders canonical paths lexicographically by their canonical value.
func (p CanonicalPath) Less(other CanonicalPath) bool { return p.value_ < other.value_ }

// Hash returns a stable BLAKE3-based digest of the canonical value, usable
// as a hash-table key independent of process-local map-hash seeding.
func (p CanonicalPath) Hash() [32]byte {
	return blake3.Sum256([]byte(p.value_))
}

// String implements fmt.Stringer.
func (p CanonicalPath) String() string { return p.value_ }

// component is one surviving path segment plus the separator that
// immediately followed its original occurrence in the input, before any
// "."/".." resolution happened. hasSep is false only for the very last
// occurrence in the raw (post-prefix) input.
type component struct {
	name           string
	hasSep         bool
	sepIsBackslash bool
}

// canonicalizeCore implements the shared resolution algorithm: split on
// separators, drop "." fragments, cancel ".." fragments against a
// preceding real fragment (without crossing the root, per spec), and
// rejoin. isSep and rootPrefix encode the only platform-specific policy
// (whether back-slash is a separator at all, and how leading separators
// collapse into a root prefix).
func canonicalizeCore(input string, isSep func(byte) bool,
	rootPrefix func(string, func(byte) bool) (prefix string, prefixBackslash []bool, consumed int)) (string, uint64) {

	prefix, prefixBackslash, consumed := rootPrefix(input, isSep)
	rest := input[consumed:]

	var stack []component
	i, n := 0, len(rest)
	for i < n {
		j := i
		for j < n && !isSep(rest[j]) {
			j++
		}
		name := rest[i:j]
		hasSep := false
		sepIsBackslash := false
		if j < n {
			hasSep = true
			sepIsBackslash = rest[j] == '\\'
			j++
		}
		i = j

		switch {
		case name == "":
			// Consecutive separators collapse: nothing to push.
		case name == ".":
			// Eliminated entirely, including its own trailing separator.
		case name == "..":
			if len(stack) > 0 && stack[len(stack)-1].name != ".." {
				stack = stack[:len(stack)-1]
			} else {
				// Nothing to cancel (start of input, or already blocked by
				// an earlier unresolved ".."): keep it literally.
				stack = append(stack, component{name: "..", hasSep: hasSep, sepIsBackslash: sepIsBackslash})
			}
		default:
			stack = append(stack, component{name: name, hasSep: hasSep, sepIsBackslash: sepIsBackslash})
		}
	}

	if len(stack) == 0 {
		if prefix != "" {
			return prefix, packBits(prefixBackslash, nil)
		}
		return ".", 0
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	var interior []bool
	for idx, c := range stack {
		sb.WriteString(c.name)
		if idx != len(stack)-1 {
			sb.WriteByte('/')
			interior = append(interior, c.sepIsBackslash)
		}
	}
	return sb.String(), packBits(prefixBackslash, interior)
}

// packBits lays prefix separator flags followed by interior separator
// flags into a single bit mask, in the same left-to-right order the
// separators appear in the final canonical string. Bit 63 is sticky: the
// 64th separator of that string and every later one fold into it, so
// recovery past that point is lossy.
func packBits(prefixBits, interiorBits []bool) uint64 {
	var mask uint64
	idx := 0
	set := func(b bool) {
		if !b {
			idx++
			return
		}
		if idx < 63 {
			mask |= 1 << uint(idx)
		} else {
			mask |= 1 << 63
		}
		idx++
	}
	for _, b := range prefixBits {
		set(b)
	}
	for _, b := range interiorBits {
		set(b)
	}
	return mask
}
