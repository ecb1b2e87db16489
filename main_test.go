package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"himawari-desktop/internal/common"
	"himawari-desktop/internal/config"
	"himawari-desktop/internal/metrics"
	"himawari-desktop/internal/pipeline"
	"himawari-desktop/internal/ratelimit"

	"github.com/rs/zerolog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	run := func(args ...string) (string, error) {
		cmd := newRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--config", path}, args...))
		err := cmd.Execute()
		return out.String(), err
	}

	out, err := run("config", "init")
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))
	assert.FileExists(t, path)

	_, err = run("config", "init")
	require.Error(t, err, "an existing file is not overwritten")

	_, err = run("config", "init", "--force")
	require.NoError(t, err)
}

func TestRenderSettingsRedactsSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Publish.SecretKey = "s3-secret"
	cfg.Telemetry.PostHogKey = "phc_secret"

	app := &App{cfg: cfg}
	out, err := app.RenderSettings()
	require.NoError(t, err)

	assert.NotContains(t, out, "s3-secret")
	assert.NotContains(t, out, "phc_secret")
	assert.Contains(t, out, redacted)
	assert.Equal(t, "s3-secret", cfg.Publish.SecretKey, "the live config is untouched")
}

func TestRootCommandTree(t *testing.T) {
	cmd := newRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"once", "daemon", "sweep", "serve", "wallpaper", "status", "config"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestWatchRateLimitsCountsTransitions(t *testing.T) {
	app := &App{
		metrics:    metrics.New(),
		rateLimits: ratelimit.NewHandler(zerolog.Nop()),
	}
	app.watchRateLimits()

	app.rateLimits.CheckStatus(common.ProviderHimawari, http.StatusTooManyRequests)
	app.rateLimits.CheckStatus(common.ProviderHimawari, http.StatusTooManyRequests)
	app.rateLimits.CheckStatus(common.ProviderHimawari, http.StatusOK)

	rec := httptest.NewRecorder()
	app.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `himawari_rate_limit_events_total{event="limited"} 1`)
	assert.Contains(t, body, `himawari_rate_limit_events_total{event="cleared"} 1`)
}

func TestChainHooks(t *testing.T) {
	assert.Nil(t, chainHooks(nil))

	var order []string
	hook := chainHooks([]func(context.Context, pipeline.Result){
		func(context.Context, pipeline.Result) { order = append(order, "apply") },
		func(context.Context, pipeline.Result) { order = append(order, "invalidate") },
	})
	hook(context.Background(), pipeline.Result{})
	assert.Equal(t, []string{"apply", "invalidate"}, order)
}
