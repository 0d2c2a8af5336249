package confwatcher

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/rtmpcast/internal/test"
)

func TestNoFile(t *testing.T) {
	w := &ConfWatcher{FilePath: "/nonexistent"}
	err := w.Initialize()
	require.Error(t, err)
}

func TestWrite(t *testing.T) {
	fpath, err := test.CreateTempFile([]byte("rtmpAddress: :1935\n"))
	require.NoError(t, err)
	defer os.Remove(fpath)

	w := &ConfWatcher{FilePath: fpath}
	err = w.Initialize()
	require.NoError(t, err)
	defer w.Close()

	err = os.WriteFile(fpath, []byte("rtmpAddress: :1936\n"), 0o644)
	require.NoError(t, err)

	select {
	case <-w.Watch():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestOtherFileIgnored(t *testing.T) {
	fpath, err := test.CreateTempFile([]byte("rtmpAddress: :1935\n"))
	require.NoError(t, err)
	defer os.Remove(fpath)

	w := &ConfWatcher{FilePath: fpath}
	err = w.Initialize()
	require.NoError(t, err)
	defer w.Close()

	other, err := test.CreateTempFile([]byte("other"))
	require.NoError(t, err)
	defer os.Remove(other)

	select {
	case <-w.Watch():
		t.Fatal("unexpected signal")
	case <-time.After(200 * time.Millisecond):
	}
}
