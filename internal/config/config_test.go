package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Liergab/peercall/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "default", cfg.Room)
	assert.Equal(t, "joiner", cfg.Role)
	assert.Equal(t, "guest", cfg.Username)
	assert.Equal(t, "webrtc", cfg.Transport)
	assert.Equal(t, "ws://localhost:9000/ws", cfg.BrokerURL)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.STUNServers)
	assert.Empty(t, cfg.TURNServer)
	assert.Equal(t, "mesh", cfg.Topology)
	assert.False(t, cfg.Capture)

	assert.Equal(t, 5, cfg.JoinAttempts)
	assert.Equal(t, 3*time.Second, cfg.JoinRetryInterval)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, time.Second, cfg.RecallDelay)
	assert.Equal(t, 2, cfg.RelayFailThreshold)

	assert.Equal(t, 3, cfg.ScreenRequestAttempts)
	assert.Equal(t, 2*time.Second, cfg.ScreenRequestCooldown)
	assert.Equal(t, 150*time.Millisecond, cfg.StaggerInterval)
	assert.Equal(t, 4*time.Second, cfg.InactivityGrace)
	assert.Equal(t, 500*time.Millisecond, cfg.TransitionDelay)

	assert.Equal(t, time.Second, cfg.RecordInterval)
	assert.Equal(t, 1280, cfg.RecordWidth)
	assert.Equal(t, 720, cfg.RecordHeight)
}

func TestDefaultReturnsFreshCopies(t *testing.T) {
	a := config.Default()
	b := config.Default()

	a.Room = "mutated"
	a.STUNServers[0] = "stun:elsewhere:3478"

	assert.Equal(t, "default", b.Room)
	assert.Equal(t, "stun:stun.l.google.com:19302", b.STUNServers[0])
}
