package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantfold/tip/errs"
)

func TestDefaultConfigEnvironmentPrecedence(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "")
	t.Setenv("TIP_ENV", "staging")
	cfg := DefaultConfig()
	require.Equal(t, "staging", cfg.Environment)

	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "prod")
	cfg = DefaultConfig()
	require.Equal(t, "prod", cfg.Environment)

	t.Setenv("OTEL_RESOURCE_ENVIRONMENT", "")
	t.Setenv("TIP_ENV", "")
	cfg = DefaultConfig()
	require.Equal(t, "dev", cfg.Environment)
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "dev"})
	require.NoError(t, err)
	require.Nil(t, provider.Registry())
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderPrometheusAlwaysActive(t *testing.T) {
	cfg := Config{
		Enabled:        true,
		Environment:    "dev",
		ServiceName:    "tip-test",
		ServiceVersion: "0.0.1",
	}
	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, provider.Registry())
	defer func() { require.NoError(t, provider.Shutdown(context.Background())) }()

	meter := provider.Meter("tip.test")
	counter, err := meter.Int64Counter("tip_test_events_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := provider.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, family := range families {
		if strings.Contains(family.GetName(), "tip_test_events") {
			found = true
		}
	}
	require.True(t, found, "expected counter family in registry gather")
}

func TestNewProviderWithOTLPEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := Config{
		Enabled:        true,
		OTLPEndpoint:   srv.URL,
		MetricInterval: time.Second,
		Environment:    "staging",
	}
	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, provider.Registry())
	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestStripScheme(t *testing.T) {
	require.Equal(t, "collector:4318", stripScheme("http://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("https://collector:4318"))
	require.Equal(t, "collector:4318", stripScheme("collector:4318"))
}

func TestEnvironmentLowercasesConfiguredName(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{Enabled: false, Environment: "PROD"})
	require.NoError(t, err)
	require.Equal(t, "prod", Environment())

	_, err = NewProvider(context.Background(), Config{Enabled: false, Environment: ""})
	require.NoError(t, err)
	require.Equal(t, "dev", Environment())
}

func TestServeMetricsRequiresRegistry(t *testing.T) {
	err := ServeMetrics(context.Background(), "127.0.0.1:0", nil, nil)
	require.Error(t, err)
	require.Equal(t, errs.CodeConfig, errs.CodeOf(err))
}

func TestMetricsServerEndpoints(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: true, Environment: "dev"})
	require.NoError(t, err)
	defer func() { require.NoError(t, provider.Shutdown(context.Background())) }()

	server := NewMetricsServer("127.0.0.1:0", provider.Registry())
	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
