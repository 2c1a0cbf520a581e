package config

import (
	"github.com/fansqz/remote-debugger/constants"
	e "github.com/fansqz/remote-debugger/error"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, string(constants.TransportTCP), cfg.Agent.Transport)
	assert.Equal(t, 10*time.Second, cfg.Agent.DialTimeout)
	assert.Equal(t, time.Duration(0), cfg.Agent.IdleTimeout)
	assert.Equal(t, 256, cfg.Session.QueueSize)
	assert.Equal(t, DefaultLogPath, cfg.Log.Path)
	assert.Equal(t, 8889, cfg.Server.Port)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "remote-debugger.yaml")
	content := `
agent:
  transport: websocket
  address: ws://127.0.0.1:9000/agent
  idle_timeout: 30s
session:
  suppress_module_load_stop: true
server:
  port: 7000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("RDBG_SERVER_PORT", "7100")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "websocket", cfg.Agent.Transport)
	assert.Equal(t, 30*time.Second, cfg.Agent.IdleTimeout)
	assert.True(t, cfg.Session.SuppressModuleLoadStop)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	option := cfg.SessionOption()
	assert.Equal(t, constants.TransportWebsocket, option.Dial.Transport)
	assert.Equal(t, 30*time.Second, option.Debugger.IdleTimeout)
	assert.True(t, option.Synchronizer.SuppressModuleLoadStop)
}

func TestLoadInvalidTransport(t *testing.T) {
	t.Setenv("RDBG_AGENT_TRANSPORT", "udp")
	_, err := Load("", nil)
	assert.ErrorIs(t, err, e.ErrTransportNotSupported)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
