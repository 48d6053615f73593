package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConflicts_PostsCandidate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/appointments/conflicts", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"has_conflict":false,"conflicting":[]}`))
	}))
	defer srv.Close()

	out, err := run(t, "--addr", srv.URL, "conflicts", "--doctor", "Dr. Smith", "--at", "2025-12-15T10:30", "--exclude", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Smith", got["doctor"])
	assert.Equal(t, "2025-12-15T10:30", got["date"])
	assert.Equal(t, "a1", got["exclude_id"])
	assert.Contains(t, out, "\"has_conflict\": false")
}

func TestAvailability_AddrFromEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/doctors/availability", r.URL.Path)
		assert.Equal(t, "Dr. Smith", r.URL.Query().Get("doctor"))
		assert.Equal(t, "2025-12-20", r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(`{"available":false,"booked":12}`))
	}))
	defer srv.Close()
	t.Setenv("SCHEDCTL_ADDR", srv.URL)

	out, err := run(t, "availability", "--doctor", "Dr. Smith", "--date", "2025-12-20")
	require.NoError(t, err)
	assert.Contains(t, out, "\"booked\": 12")
}

func TestDay_SurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MAR", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid date (want YYYY-MM-DD)"}`))
	}))
	defer srv.Close()

	_, err := run(t, "--addr", srv.URL, "day", "--date", "15/01/2025", "--q", "MAR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400 invalid date")
}

func TestConflicts_RequiresFlags(t *testing.T) {
	_, err := run(t, "conflicts", "--doctor", "Dr. Smith")
	require.Error(t, err)
}

func TestPrintEvent(t *testing.T) {
	var out bytes.Buffer
	msg := kafka.Message{
		Key:     []byte("a1"),
		Value:   []byte("{\n  \"appointment_id\": \"a1\"\n}"),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte("clinic.appointment.booked.v1")}},
	}
	require.NoError(t, printEvent(&out, msg))
	assert.Equal(t, "clinic.appointment.booked.v1 a1 {\"appointment_id\":\"a1\"}\n", out.String())
}

func TestWatch_RejectsEmptyGroup(t *testing.T) {
	_, err := run(t, "watch", "--group", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group id is required")
}
