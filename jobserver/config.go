package jobserver

import (
	"strconv"
	"strings"
)

// Mode identifies which jobserver transport a Config describes.
type Mode int

const (
	// ModeNone means no jobserver is configured. NewClient rejects it with
	// ErrUnsupportedMode, so a caller in this mode runs without a Client.
	ModeNone Mode = iota
	// ModeFileDescriptors means the pool is reached through a pair of
	// already-open, inherited file descriptors.
	ModeFileDescriptors
	// ModeFifo means the pool is reached through a named FIFO path.
	ModeFifo
	// ModeWin32Semaphore means the pool is reached through a named Win32
	// semaphore. Only usable through the native wrapper on Windows.
	ModeWin32Semaphore
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeFileDescriptors:
		return "file-descriptors"
	case ModeFifo:
		return "fifo"
	case ModeWin32Semaphore:
		return "win32-semaphore"
	default:
		return "unknown"
	}
}

// Config is the parsed form of the jobserver authorization carried by a
// tool-invocation environment variable (GNU Make's MAKEFLAGS, or an
// equivalent). It is produced by ParseMakeFlagsValue and consumed by
// NewClient and, for the descriptor-pair case, round-tripped from a
// Pool's GetEnvString output.
type Config struct {
	Mode Mode

	// ReadFD, WriteFD are valid only when Mode == ModeFileDescriptors.
	ReadFD, WriteFD int

	// Path holds the FIFO path (Mode == ModeFifo) or the Win32 semaphore
	// name (Mode == ModeWin32Semaphore).
	Path string
}

// getPrefixedValue returns (rest, true) if word starts with prefix.
func getPrefixedValue(word, prefix string) (string, bool) {
	if !strings.HasPrefix(word, prefix) {
		return "", false
	}
	return word[len(prefix):], true
}

// scanLeadingInt consumes an optional sign followed by one or more ASCII
// digits from the front of s, mirroring sscanf's "%d": it stops at the
// first non-digit rather than requiring the whole string to be numeric, so
// trailing garbage after a valid number is silently ignored rather than
// rejected.
func scanLeadingInt(s string) (value int, rest string, ok bool) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, s, false
	}
	return n, s[i:], true
}

// getFileDescriptorPair parses "R,W" into cfg.ReadFD/WriteFD and sets
// cfg.Mode to ModeFileDescriptors, or ModeNone if either is negative
// (explicit disable, per the POSIX jobserver spec). Returns false if value
// does not have the "int,int" shape at all.
//
// Matches sscanf(value, "%d,%d", &r, &w) rather than requiring each field
// to be nothing but digits: "3,4garbage" and "3,4,5" both parse as (3, 4),
// with anything past the second number discarded.
func getFileDescriptorPair(value string, cfg *Config) bool {
	r, rest, ok := scanLeadingInt(value)
	if !ok || !strings.HasPrefix(rest, ",") {
		return false
	}
	w, _, ok := scanLeadingInt(rest[1:])
	if !ok {
		return false
	}
	cfg.ReadFD, cfg.WriteFD = r, w
	if r < 0 || w < 0 {
		cfg.Mode = ModeNone
	} else {
		cfg.Mode = ModeFileDescriptors
	}
	return true
}

// splitFlagsWords tokenizes on ASCII space/tab, discarding empty words --
// the same decomposition jobserver.cc performs on MAKEFLAGS before
// recognizing individual --jobserver-* options.
func splitFlagsWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
}

// ParseMakeFlagsValue parses the tool-invocation flags environment string
// (e.g. MAKEFLAGS) into a Config. An empty or absent string, or one
// recognized as a dry-run request, succeeds with Mode == ModeNone.
//
// Recognized words, later ones override earlier ones ("last wins"):
//
//	--jobserver-auth=R,W        -> ModeFileDescriptors (or ModeNone if R/W<0)
//	--jobserver-auth=fifo:PATH  -> ModeFifo
//	--jobserver-auth=NAME       -> ModeWin32Semaphore
//	--jobserver-fds=R,W         -> ModeFileDescriptors (legacy alias)
//
// --jobserver-fds with a malformed pair fails with ErrConfigParse;
// everything else is best-effort and ignores unrecognized words.
func ParseMakeFlagsValue(flagsEnv string) (Config, error) {
	var cfg Config

	if strings.TrimSpace(flagsEnv) == "" {
		return cfg, nil
	}

	words := splitFlagsWords(flagsEnv)
	if len(words) == 0 {
		return cfg, nil
	}

	// GNU Make sets the first word to its short option letters; if it
	// doesn't start with '-' and contains 'n', this is a dry run ('-n') and
	// the whole value is ignored.
	if !strings.HasPrefix(words[0], "-") && strings.ContainsRune(words[0], 'n') {
		return cfg, nil
	}

	for _, word := range words {
		if value, ok := getPrefixedValue(word, "--jobserver-auth="); ok {
			if getFileDescriptorPair(value, &cfg) {
				continue
			}
			if fifoPath, ok := getPrefixedValue(value, "fifo:"); ok {
				cfg.Mode = ModeFifo
				cfg.Path = fifoPath
			} else {
				cfg.Mode = ModeWin32Semaphore
				cfg.Path = value
			}
			continue
		}

		if value, ok := getPrefixedValue(word, "--jobserver-fds="); ok {
			if !getFileDescriptorPair(value, &cfg) {
				return Config{}, ErrConfigParse
			}
			cfg.Mode = ModeFileDescriptors
			continue
		}

		// Unrecognized words (including the option letters themselves, and
		// anything make passes that isn't jobserver-related) are ignored.
	}

	return cfg, nil
}

// ParseNativeMakeFlagsValue parses flagsEnv like ParseMakeFlagsValue, then
// rejects modes the current platform cannot serve: Fifo and
// FileDescriptors on Windows, Win32Semaphore everywhere else.
func ParseNativeMakeFlagsValue(flagsEnv string) (Config, error) {
	cfg, err := ParseMakeFlagsValue(flagsEnv)
	if err != nil {
		return Config{}, err
	}
	if !modeSupportedNatively(cfg.Mode) {
		return Config{}, ErrUnsupportedMode
	}
	return cfg, nil
}
