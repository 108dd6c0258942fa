package calendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   string
}

func newTestClient(t *testing.T, status int, record *recordedRequest) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		record.method = r.Method
		record.path = r.URL.Path
		record.auth = r.Header.Get("Authorization")
		record.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL+"/calendars/dinners/", "peacho", "secret",
		[]string{"alice@example.com", "bob@example.com"}, "https://meet.example.com/dinner")
	c.http = srv.Client()
	return c
}

func TestCreatePutsICSEvent(t *testing.T) {
	var record recordedRequest
	c := newTestClient(t, http.StatusCreated, &record)

	start := time.Date(2026, time.March, 6, 18, 0, 0, 0, time.UTC)
	ref, err := c.Create(context.Background(), start)
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Equal(t, http.MethodPut, record.method)
	assert.True(t, strings.HasPrefix(record.path, "/calendars/dinners/"))
	assert.True(t, strings.HasSuffix(record.path, ".ics"))
	assert.NotEmpty(t, record.auth, "basic auth must be sent")

	assert.Contains(t, record.body, "BEGIN:VEVENT")
	assert.Contains(t, record.body, "SUMMARY:Mystery dinner")
	assert.Contains(t, record.body, "DTSTART:20260306T180000Z")
	assert.Contains(t, record.body, "alice@example.com")
	assert.Contains(t, record.body, ref.ID)

	assert.Equal(t, "https://meet.example.com/dinner", ref.JoinURI)
}

func TestCreateDistinctIDs(t *testing.T) {
	var record recordedRequest
	c := newTestClient(t, http.StatusCreated, &record)

	first, err := c.Create(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	second, err := c.Create(context.Background(), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCreateServerError(t *testing.T) {
	var record recordedRequest
	c := newTestClient(t, http.StatusForbidden, &record)

	_, err := c.Create(context.Background(), time.Now().Add(time.Hour))
	assert.ErrorContains(t, err, "status 403")
}

func TestDelete(t *testing.T) {
	var record recordedRequest
	c := newTestClient(t, http.StatusNoContent, &record)

	require.NoError(t, c.Delete(context.Background(), "event-1"))
	assert.Equal(t, http.MethodDelete, record.method)
	assert.Equal(t, "/calendars/dinners/event-1.ics", record.path)
}

func TestDeleteMissingEventIsNotAnError(t *testing.T) {
	var record recordedRequest
	c := newTestClient(t, http.StatusNotFound, &record)

	assert.NoError(t, c.Delete(context.Background(), "event-1"))
}
