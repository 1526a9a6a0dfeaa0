package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: "+testSecret+"\nserver:\n  port: 8081\n")

	reloaded := make(chan *GatewayConfig, 1)
	w, err := NewWatcher(path, func(cfg *GatewayConfig) {
		select {
		case reloaded <- cfg:
		default:
		}
	}, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("auth:\n  secret: "+testSecret+"\nserver:\n  port: 8082\n"), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 8082, cfg.Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("configuration was not reloaded")
	}
}

func TestWatcher_InvalidConfigIgnored(t *testing.T) {
	path := writeConfig(t, "auth:\n  secret: "+testSecret+"\n")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(*GatewayConfig) { called <- struct{}{} }, WithDebounceDelay(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	select {
	case <-called:
		t.Fatal("invalid configuration must not be delivered")
	case <-time.After(300 * time.Millisecond):
	}
}
