//go:build !windows

package canonpath

// isPathSeparator: on POSIX back-slash is an ordinary filename character,
// never a separator.
func isPathSeparator(c byte) bool { return c == '/' }

// rootPrefix collapses any run of leading slashes into a single "/"; the
// remainder of the run is absorbed by the main loop's empty-component
// skipping.
func rootPrefix(input string, isSep func(byte) bool) (string, []bool, int) {
	if len(input) > 0 && isSep(input[0]) {
		return "/", []bool{false}, 1
	}
	return "", nil, 0
}

func canonicalize(path string) (string, uint64) {
	return canonicalizeCore(path, isPathSeparator, rootPrefix)
}

// decanonicalize is the identity on POSIX: back-slash was never a
// separator, so there is nothing to recover.
func decanonicalize(value string, _ uint64) string { return value }
