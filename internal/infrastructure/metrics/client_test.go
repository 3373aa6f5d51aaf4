package metrics

import (
	"errors"
	"testing"

	"github.com/thornfield/gatehouse/internal/infrastructure/config"
)

// testConfig returns a metrics configuration for testing.
func testConfig() config.MetricsConfig {
	return config.MetricsConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "gatehouse-dev-token",
		Org:           "gatehouse",
		Bucket:        "auth",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() should fail for an unreachable server")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestClose_Uninitialised(t *testing.T) {
	client := &Client{}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestWrites_DisconnectedAreNoOps(t *testing.T) {
	client := &Client{}

	// All writes are guarded by the connection state; none may panic on
	// a client that never connected.
	client.RecordLogin("local", "success")
	client.RecordRevocation("logout_all")
	client.WritePoint("custom", map[string]string{"k": "v"}, map[string]interface{}{"count": 1})
	client.Flush()
}
