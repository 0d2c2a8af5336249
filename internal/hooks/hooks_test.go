package hooks

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/externalcmd"
	"github.com/bluenviron/rtmpcast/internal/test"
)

func TestEnvironment(t *testing.T) {
	require.Equal(t, externalcmd.Environment{
		"RTMP_PORT":   "1935",
		"RTC_STREAM":  "mystream",
		"RTC_CONN_ID": "abc",
	}, environment(":1935", "mystream", "abc"))
}

func TestOnPublishEmpty(t *testing.T) {
	l := &test.RecordingLogger{}

	pool := &externalcmd.Pool{}
	pool.Initialize()
	defer pool.Close()

	stop := OnPublish(OnPublishParams{
		Logger:          l,
		ExternalCmdPool: pool,
		RTMPAddress:     ":1935",
		Stream:          "mystream",
	})
	stop()

	require.Empty(t, l.Entries())
}

func TestOnPublish(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	dir, err := os.MkdirTemp("", "rtmpcast-hooks")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "out")

	l := &test.RecordingLogger{}

	pool := &externalcmd.Pool{}
	pool.Initialize()

	stop := OnPublish(OnPublishParams{
		Logger:          l,
		ExternalCmdPool: pool,
		RunOnPublish:    "sh -c 'echo $RTC_STREAM $RTMP_PORT > " + out + "'",
		RTMPAddress:     ":1935",
		Stream:          "mystream",
		ConnID:          "abc",
	})

	require.Eventually(t, func() bool {
		byts, err := os.ReadFile(out)
		return err == nil && string(byts) == "mystream 1935\n"
	}, 5*time.Second, 50*time.Millisecond)

	stop()
	pool.Close()

	require.Contains(t, l.Entries(), "runOnPublish command started")
	require.Contains(t, l.Entries(), "runOnPublish command stopped")
}

func TestOnRead(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell required")
	}

	l := &test.RecordingLogger{}

	pool := &externalcmd.Pool{}
	pool.Initialize()

	stop := OnRead(OnReadParams{
		Logger:          l,
		ExternalCmdPool: pool,
		RunOnRead:       "sh -c 'exit 3'",
		RTMPAddress:     ":1935",
		Stream:          "mystream",
	})

	require.Eventually(t, func() bool {
		for _, line := range l.Entries() {
			if line == "runOnRead command exited: command exited with code 3" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	stop()
	pool.Close()
}
