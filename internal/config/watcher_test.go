package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestWatcherReloadsValidChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := writeFile(t, t.TempDir(), "pricing:\n  waste_factor: 1.2\n")
	changes := make(chan *Config, 4)

	w, err := NewWatcher(p, zap.NewNop(), func(c *Config) { changes <- c })
	require.NoError(t, err)
	w.debounce = 50 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))

	// an invalid edit is ignored
	require.NoError(t, os.WriteFile(p, []byte("pricing:\n  waste_factor: -3\n"), 0o644))
	select {
	case c := <-changes:
		t.Fatalf("invalid config was applied: waste factor %v", c.Pricing.WasteFactor)
	case <-time.After(400 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(p, []byte("pricing:\n  waste_factor: 1.3\n"), 0o644))
	select {
	case c := <-changes:
		require.Equal(t, 1.3, c.Pricing.WasteFactor)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after a valid edit")
	}

	w.Stop()
}

func TestWatcherStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := NewWatcher(writeFile(t, t.TempDir(), ""), nil, nil)
	require.NoError(t, err)
	w.Stop()
}
