package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfect-stream/backend/internal/config"
	"github.com/perfect-stream/backend/internal/server"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateLimit.RPS = 0
	ts := httptest.NewServer(server.NewServer(cfg, server.Deps{}).Handler())
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--server", ts.URL))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestStreamCommand(t *testing.T) {
	assert.Equal(t, "2\t6\n3\t28\n5\t496\n", execute(t, "stream", "--limit", "3"))
	assert.Equal(t, "2\t6\n3\t28\n", execute(t, "stream", "--limit", "2", "--ws"))
}

func TestCheckCommand(t *testing.T) {
	assert.Equal(t, "496 is perfect (p=5)\n", execute(t, "check", "496"))
	assert.Equal(t, "497 is not perfect\n", execute(t, "check", "497"))
}
