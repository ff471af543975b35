//go:build !windows

package jobserver

// modeSupportedNatively rejects Win32Semaphore on every platform but Windows.
func modeSupportedNatively(mode Mode) bool {
	return mode != ModeWin32Semaphore
}
