//go:build unix

package viewer

import (
	"context"
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hupe1980/panmk/internal/platform"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name    string
		want    syscall.Signal
		wantErr bool
	}{
		{name: "HUP", want: syscall.SIGHUP},
		{name: "SIGHUP", want: syscall.SIGHUP},
		{name: "usr1", want: syscall.SIGUSR1},
		{name: " TERM ", want: syscall.SIGTERM},
		{name: "BOGUS", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignal(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignalReloader_InvalidName(t *testing.T) {
	_, err := SignalReloader("NOPE")
	require.Error(t, err)
}

func TestSignalReloader_NotOwned(t *testing.T) {
	reload, err := SignalReloader("HUP")
	require.NoError(t, err)

	h := NewDetachedHandle("doc.pdf")
	got, err := reload(context.Background(), h)

	require.ErrorIs(t, err, ErrNotOwned)
	assert.Same(t, h, got)
}

func TestSignalReloader_DeliversSignal(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep(1) not available")
	}

	h, err := Spawn([]string{sleep, "30"}, "doc.pdf", true)
	require.NoError(t, err)

	reload, err := SignalReloader("TERM")
	require.NoError(t, err)

	got, err := reload(context.Background(), h)
	require.NoError(t, err)
	assert.Same(t, h, got)

	h.Wait()
	assert.True(t, h.Exited())

	_, err = reload(context.Background(), h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has exited")
}

func TestSpawn_OwnProcessGroup(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep(1) not available")
	}

	h, err := NewLauncher(platform.POSIX, "sleep 5")(context.Background(), "30")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = h.Signal(syscall.SIGKILL)
		h.Wait()
	})

	pgid, err := unix.Getpgid(h.Pid())
	require.NoError(t, err)

	assert.Equal(t, h.Pid(), pgid, "viewer leads its own group")
	assert.NotEqual(t, unix.Getpgrp(), pgid, "viewer must not share panmk's group")
}
