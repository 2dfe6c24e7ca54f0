package directions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

var (
	origin      = models.Coordinate{Lat: -7.2575, Lng: 112.7521}
	destination = models.Coordinate{Lat: -7.9666, Lng: 112.6326}
	fixedNow    = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.URL, "test-key", time.Second, zap.NewNop())
	c.SetClock(func() time.Time { return fixedNow })
	return c
}

func TestFetchETA(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "-7.257500,112.752100", q.Get("origin"))
		assert.Equal(t, "-7.966600,112.632600", q.Get("destination"))
		assert.Equal(t, "driving", q.Get("mode"))
		assert.Equal(t, "test-key", q.Get("key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"routes": [{"legs": [{
				"distance": {"text": "94.2 km", "value": 94200},
				"duration": {"text": "1 hour 50 mins", "value": 6630}
			}]}]
		}`))
	})

	eta, err := c.FetchETA(context.Background(), origin, destination)
	require.NoError(t, err)
	assert.InDelta(t, 94.2, eta.RemainingDistance, 1e-9)
	assert.Equal(t, 111, eta.RemainingTime) // 110.5 分钟四舍五入
	assert.Equal(t, "2024-05-01T09:50:30Z", eta.EstimatedArrival)
	assert.Equal(t, models.ETASourceRemote, eta.Source)
}

func TestFetchETAFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"http error", http.StatusInternalServerError, `oops`, "status=500"},
		{"bad json", http.StatusOK, `{"status":`, "decode response"},
		{"api status", http.StatusOK, `{"status":"REQUEST_DENIED","error_message":"invalid key"}`, "REQUEST_DENIED"},
		{"zero results", http.StatusOK, `{"status":"OK","routes":[]}`, "no route found"},
		{"no legs", http.StatusOK, `{"status":"OK","routes":[{"legs":[]}]}`, "no route found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			eta, err := c.FetchETA(context.Background(), origin, destination)
			assert.Nil(t, eta)
			require.ErrorIs(t, err, ErrETAService)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFetchETATimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchETA(ctx, origin, destination)
	assert.ErrorIs(t, err, ErrETAService)
}
