//go:build windows

package canonpath

import "strings"

// isPathSeparator: on Windows both forward and back slash delimit path
// components.
func isPathSeparator(c byte) bool { return c == '/' || c == '\\' }

// rootPrefix recognizes a UNC/network-path marker (exactly two leading
// separators) and preserves it as "//"; a single leading separator becomes
// "/". Any further leading separators are absorbed by the main loop.
func rootPrefix(input string, isSep func(byte) bool) (string, []bool, int) {
	if len(input) > 1 && isSep(input[0]) && isSep(input[1]) {
		return "//", []bool{input[0] == '\\', input[1] == '\\'}, 2
	}
	if len(input) > 0 && isSep(input[0]) {
		return "/", []bool{input[0] == '\\'}, 1
	}
	return "", nil, 0
}

func canonicalize(path string) (string, uint64) {
	return canonicalizeCore(path, isPathSeparator, rootPrefix)
}

// decanonicalize walks the canonical value's forward slashes in order and
// swaps back in a back-slash wherever the corresponding bit is set, per
// the original Ninja CanonicalPath::Decanonicalized behavior. Separators
// beyond the 64th all share bit 63.
func decanonicalize(value string, slashBits uint64) string {
	if slashBits == 0 {
		return value
	}
	var sb strings.Builder
	sb.Grow(len(value))
	bit := 0
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '/' {
			idx := bit
			if idx > 63 {
				idx = 63
			}
			if slashBits&(1<<uint(idx)) != 0 {
				c = '\\'
			}
			bit++
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
