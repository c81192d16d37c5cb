package cmd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobboard/server/internal/config"
)

func testServeConfig() config.Config {
	cfg := config.Defaults()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Notify.Port = 0
	cfg.Notify.Interval = 50 * time.Millisecond
	cfg.Database.URL = "memory://"
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func TestServeCommandFlags(t *testing.T) {
	cmd := newServeCommand(&rootOptions{})
	for _, flag := range []string{"host", "port"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}

	require.NoError(t, cmd.ParseFlags([]string{"--host", "127.0.0.1", "--port", "9090"}))
	assert.Error(t, cmd.ParseFlags([]string{"--port", "invalid"}))
}

func TestServeCommandHelp(t *testing.T) {
	out, err := executeCommand(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Start the JSON API and the websocket notification listener")
	assert.Contains(t, out, "--host")
	assert.Contains(t, out, "--port")
}

func TestRootHelpListsServeSummary(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, newServeCommand(&rootOptions{}).Short)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, testServeConfig(), buildInfo(), zerolog.Nop()) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testServeConfig()
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	err = runServer(context.Background(), cfg, buildInfo(), zerolog.Nop())
	assert.ErrorContains(t, err, "listen api")
}

func TestRunServerBadStore(t *testing.T) {
	cfg := testServeConfig()
	cfg.Database.URL = "mysql://localhost/jobs"

	err := runServer(context.Background(), cfg, buildInfo(), zerolog.Nop())
	assert.ErrorContains(t, err, "open store")
}

func TestRunServerTasksNeedPostgres(t *testing.T) {
	cfg := testServeConfig()
	cfg.Tasks.Enabled = true

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.NoError(t, runServer(ctx, cfg, buildInfo(), zerolog.Nop()))
}
