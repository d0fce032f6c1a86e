package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvely/push-relay-agent/internal/model"
)

var testDevice = model.LinkedDevice{
	AccountID: "9c0c2b4e-3cf7-4a4c-9e3b-0d8f5ce1a001",
	DeviceID:  2,
	Password:  "s3cret",
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL + "/"
}

func TestProbeReachability(t *testing.T) {
	c := NewClient(time.Second, testLogger())

	okURL := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	assert.True(t, c.ProbeReachability(context.Background(), okURL))

	failURL := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	assert.False(t, c.ProbeReachability(context.Background(), failURL))

	// Network failure must return false, never panic or error.
	assert.False(t, c.ProbeReachability(context.Background(), "http://127.0.0.1:1/"))
	assert.False(t, c.ProbeReachability(context.Background(), ""))
}

func TestRegisterOutcomeMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    model.RegistrationOutcome
	}{
		{"accepted", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}, model.OutcomeOK},
		{"forbidden uuid in body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"forbidden","reason":"uuid"}`))
		}, model.OutcomeForbiddenUUID},
		{"forbidden endpoint in body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"forbidden","reason":"endpoint"}`))
		}, model.OutcomeForbiddenEndpoint},
		{"forbidden uuid via status code", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"status":"forbidden","reason":"uuid"}`))
		}, model.OutcomeForbiddenUUID},
		{"forbidden endpoint via status code", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"forbidden","reason":"endpoint"}`))
		}, model.OutcomeForbiddenEndpoint},
		{"missing registration route", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, model.OutcomeServerNotFound},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, model.OutcomeInternalError},
		{"garbled body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}, model.OutcomeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(time.Second, testLogger())
			url := newTestServer(t, tt.handler)
			got, err := c.Register(context.Background(), url, testDevice, "ep-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegisterSubmitsDeviceAndEndpoint(t *testing.T) {
	var gotPath, gotBody string
	url := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	c := NewClient(time.Second, testLogger())
	got, err := c.Register(context.Background(), url, testDevice, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeOK, got)
	assert.Equal(t, "/register", gotPath)
	assert.JSONEq(t, `{
		"uuid": "9c0c2b4e-3cf7-4a4c-9e3b-0d8f5ce1a001",
		"device_id": 2,
		"password": "s3cret",
		"endpoint": "ep-1"
	}`, gotBody)
}

func TestRegisterTransportFailureIsRetryable(t *testing.T) {
	c := NewClient(200*time.Millisecond, testLogger())
	got, err := c.Register(context.Background(), "http://127.0.0.1:1/", testDevice, "ep-1")
	require.Error(t, err)
	assert.Equal(t, model.OutcomeInternalError, got)
}

func TestRegisterDegenerateInputs(t *testing.T) {
	c := NewClient(time.Second, testLogger())

	got, err := c.Register(context.Background(), "", testDevice, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeServerNotFound, got)

	got, err = c.Register(context.Background(), "https://relay.example/", testDevice, "")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoEndpoint, got)
}
