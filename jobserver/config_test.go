package jobserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMakeFlagsValue_LegacyValid(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("-j3 --jobserver-fds=3,4")
	require.NoError(t, err)
	assert.Equal(t, ModeFileDescriptors, cfg.Mode)
	assert.Equal(t, 3, cfg.ReadFD)
	assert.Equal(t, 4, cfg.WriteFD)
}

func TestParseMakeFlagsValue_LegacyTrailingGarbageIgnored(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("--jobserver-fds=3,4garbage")
	require.NoError(t, err)
	assert.Equal(t, ModeFileDescriptors, cfg.Mode)
	assert.Equal(t, 3, cfg.ReadFD)
	assert.Equal(t, 4, cfg.WriteFD)
}

func TestParseMakeFlagsValue_LegacyExtraFieldIgnored(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("--jobserver-fds=3,4,5")
	require.NoError(t, err)
	assert.Equal(t, ModeFileDescriptors, cfg.Mode)
	assert.Equal(t, 3, cfg.ReadFD)
	assert.Equal(t, 4, cfg.WriteFD)
}

func TestParseMakeFlagsValue_NegativeDescriptorDisables(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("--jobserver-auth=-1,5")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, cfg.Mode)
}

func TestParseMakeFlagsValue_DryRunGate(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("kns --jobserver-auth=fifo:/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, cfg.Mode)
}

func TestParseMakeFlagsValue_LastWins(t *testing.T) {
	cfg, err := ParseMakeFlagsValue(
		"--jobserver-auth=10,42 --jobserver-fds=12,44 --jobserver-auth=fifo:/tmp/fifo")
	require.NoError(t, err)
	assert.Equal(t, ModeFifo, cfg.Mode)
	assert.Equal(t, "/tmp/fifo", cfg.Path)
}

func TestParseMakeFlagsValue_EmptyAndWhitespace(t *testing.T) {
	for _, in := range []string{"", "   ", "\t \t"} {
		cfg, err := ParseMakeFlagsValue(in)
		require.NoError(t, err)
		assert.Equal(t, ModeNone, cfg.Mode)
	}
}

func TestParseMakeFlagsValue_LegacyMalformedFails(t *testing.T) {
	_, err := ParseMakeFlagsValue("--jobserver-fds=notanumber")
	require.ErrorIs(t, err, ErrConfigParse)
}

func TestParseMakeFlagsValue_Win32Semaphore(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("--jobserver-auth=MyNinjaSemaphore")
	require.NoError(t, err)
	assert.Equal(t, ModeWin32Semaphore, cfg.Mode)
	assert.Equal(t, "MyNinjaSemaphore", cfg.Path)
}

func TestParseMakeFlagsValue_UnknownWordsIgnored(t *testing.T) {
	cfg, err := ParseMakeFlagsValue("--some-other-flag=1 --jobserver-fds=3,4 --another")
	require.NoError(t, err)
	assert.Equal(t, ModeFileDescriptors, cfg.Mode)
}
