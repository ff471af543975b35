//go:build !windows

package subprocess

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForFinished(t *testing.T, set Set, timeout time.Duration) Subprocess {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sp := set.NextFinished(); sp != nil {
			return sp
		}
		if _, err := set.DoWork(); err != nil {
			t.Fatalf("DoWork: %v", err)
		}
	}
	t.Fatal("timed out waiting for a finished subprocess")
	return nil
}

func TestSet_CapturesCombinedOutput(t *testing.T) {
	set := New()
	_, err := set.Add("echo hello world", false)
	require.NoError(t, err)

	sp := waitForFinished(t, set, 5*time.Second)
	require.Equal(t, ExitSuccess, sp.Finish())
	require.True(t, strings.Contains(sp.Output(), "hello world"))
}

func TestSet_SeparatesStdoutAndStderr(t *testing.T) {
	set := New()
	_, err := set.Add("echo out-line; echo err-line 1>&2", false)
	require.NoError(t, err)

	sp := waitForFinished(t, set, 5*time.Second)
	require.Equal(t, ExitSuccess, sp.Finish())
	require.True(t, strings.Contains(sp.Stdout(), "out-line"))
	require.False(t, strings.Contains(sp.Stdout(), "err-line"))
	require.True(t, strings.Contains(sp.Stderr(), "err-line"))
	require.False(t, strings.Contains(sp.Stderr(), "out-line"))
	require.Equal(t, len(sp.Stdout())+len(sp.Stderr()), len(sp.Output()))
}

func TestSet_ReportsNonZeroExit(t *testing.T) {
	set := New()
	_, err := set.Add("exit 3", false)
	require.NoError(t, err)

	sp := waitForFinished(t, set, 5*time.Second)
	require.Equal(t, ExitFailure, sp.Finish())
}

func TestSet_TracksRunningCount(t *testing.T) {
	set := New()
	_, err := set.Add("sleep 0.2", false)
	require.NoError(t, err)
	require.Equal(t, 1, set.Running())

	waitForFinished(t, set, 5*time.Second)
	require.Equal(t, 0, set.Running())
}

func TestSet_ClearSignalsRunningCommands(t *testing.T) {
	set := New()
	_, err := set.Add("sleep 30", false)
	require.NoError(t, err)

	set.Clear()
	sp := waitForFinished(t, set, 5*time.Second)
	require.Equal(t, ExitInterrupted, sp.Finish())
}
