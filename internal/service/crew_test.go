package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/api/backend"
	"github.com/langchou/buskru/internal/live"
	"github.com/langchou/buskru/internal/live/livetest"
	"github.com/langchou/buskru/internal/models"
	"github.com/langchou/buskru/internal/tracking"
)

const testPolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func tripBody(id int64, polyline string) string {
	trip := map[string]interface{}{
		"id": id, "kru_id": 3, "armada_id": 5, "rute_id": 9,
		"waktu_mulai": "2024-05-01 08:00:00", "total_penumpang": 0,
		"durasi_menit": 0, "status": "berlangsung", "kondisi_terakhir": "macet",
		"armada": map[string]interface{}{"id": 5, "nama_bus": "Suroboyo 01", "plat_nomor": "L 1234 AB", "kelas": "ekonomi", "kapasitas": 2},
		"rute":   map[string]interface{}{"id": 9, "nama_rute": "Surabaya - Malang", "polyline": polyline, "estimasi_waktu": 120},
	}
	data, _ := json.Marshal(map[string]interface{}{"success": true, "message": "", "data": trip})
	return string(data)
}

type fakeBackend struct {
	mu       sync.Mutex
	requests map[string][]map[string]interface{}
	polyline string
	active   bool
	failSync bool
}

func (f *fakeBackend) record(path string, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[path] = append(f.requests[path], body)
}

func (f *fakeBackend) calls(path string) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) get() (polyline string, active, failSync bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polyline, f.active, f.failSync
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
	mux.HandleFunc("/api/kru/login", func(w http.ResponseWriter, r *http.Request) {
		f.record("login", r)
		write(w, http.StatusOK, `{"success":true,"data":{"token":"tok","kru":{"id":3,"driver":"Budi","username":"budi","status":"aktif"}}}`)
	})
	mux.HandleFunc("/api/kru/logout", func(w http.ResponseWriter, r *http.Request) {
		f.record("logout", r)
		write(w, http.StatusOK, `{"success":true,"data":null}`)
	})
	mux.HandleFunc("/api/kru/armada", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `{"success":true,"data":[{"id":5,"nama_bus":"Suroboyo 01","plat_nomor":"L 1234 AB","kelas":"ekonomi","kapasitas":2,"status":"aktif"}]}`)
	})
	mux.HandleFunc("/api/kru/rute", func(w http.ResponseWriter, r *http.Request) {
		write(w, http.StatusOK, `{"success":true,"data":[{"id":9,"nama_rute":"Surabaya - Malang","polyline":"`+testPolyline+`"}]}`)
	})
	mux.HandleFunc("/api/kru/perjalanan/mulai", func(w http.ResponseWriter, r *http.Request) {
		f.record("mulai", r)
		polyline, _, _ := f.get()
		write(w, http.StatusCreated, tripBody(77, polyline))
	})
	mux.HandleFunc("/api/kru/perjalanan/aktif", func(w http.ResponseWriter, r *http.Request) {
		polyline, active, _ := f.get()
		if !active {
			write(w, http.StatusOK, `{"success":true,"data":null}`)
			return
		}
		write(w, http.StatusOK, tripBody(78, polyline))
	})
	mux.HandleFunc("/api/kru/perjalanan/penumpang", func(w http.ResponseWriter, r *http.Request) {
		f.record("penumpang", r)
		polyline, _, failSync := f.get()
		if failSync {
			write(w, http.StatusInternalServerError, `{"success":false,"message":"server error"}`)
			return
		}
		write(w, http.StatusOK, tripBody(77, polyline))
	})
	mux.HandleFunc("/api/kru/perjalanan/kondisi", func(w http.ResponseWriter, r *http.Request) {
		f.record("kondisi", r)
		polyline, _, _ := f.get()
		write(w, http.StatusOK, tripBody(77, polyline))
	})
	mux.HandleFunc("/api/kru/perjalanan/selesai", func(w http.ResponseWriter, r *http.Request) {
		f.record("selesai", r)
		write(w, http.StatusOK, `{"success":true,"message":"Perjalanan selesai","data":{"id":77}}`)
	})
	return mux
}

func newTestService(t *testing.T) (*CrewService, *fakeBackend, *livetest.Recorder) {
	t.Helper()
	fb := &fakeBackend{requests: map[string][]map[string]interface{}{}, polyline: testPolyline}
	server := httptest.NewServer(fb.handler())
	t.Cleanup(server.Close)

	rec := &livetest.Recorder{}
	manager := tracking.NewManager(rec, nil, tracking.DefaultOptions(), zap.NewNop(), nil)
	svc := NewCrewService(zap.NewNop(), backend.NewClient(server.URL, zap.NewNop()), manager)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })
	return svc, fb, rec
}

func TestRequiresLogin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Fleet(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = svc.StartTrip(ctx, 5, 9)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, svc.Logout(ctx), ErrNotLoggedIn)
}

func TestTripLifecycle(t *testing.T) {
	svc, fb, rec := newTestService(t)
	ctx := context.Background()

	crew, err := svc.Login(ctx, "budi", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, "Budi", crew.Crew.Driver)

	vehicles, err := svc.Fleet(ctx)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	routes, err := svc.Routes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	session, err := svc.StartTrip(ctx, 5, 9)
	require.NoError(t, err)
	trip := session.Trip()
	assert.Equal(t, int64(77), trip.TripID)
	assert.Equal(t, "Budi", trip.CrewName)
	assert.InDelta(t, 43.252, trip.Destination.Lat, 1e-5)
	assert.InDelta(t, -126.453, trip.Destination.Lng, 1e-5)

	assert.ErrorIs(t, svc.Logout(ctx), ErrTripInProgress)

	n, err := svc.UpdatePassengers(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = svc.UpdatePassengers(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = svc.UpdatePassengers(ctx, 1)
	assert.ErrorIs(t, err, tracking.ErrCapacityExceeded)

	penumpang := fb.calls("penumpang")
	require.Len(t, penumpang, 2)
	assert.Equal(t, float64(2), penumpang[1]["total_penumpang"])

	require.NoError(t, svc.UpdateCondition(ctx, models.ConditionCongested))
	assert.ErrorIs(t, svc.UpdateCondition(ctx, models.Condition("flooded")), tracking.ErrInvalidCondition)
	kondisi := fb.calls("kondisi")
	require.Len(t, kondisi, 1)
	assert.Equal(t, "macet", kondisi[0]["kondisi"])

	summary, err := svc.FinishTrip(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(77), summary.TripID)
	assert.Equal(t, 2, summary.FinalPassengerCount)
	assert.Equal(t, models.ConditionCongested, summary.FinalCondition)

	selesai := fb.calls("selesai")
	require.Len(t, selesai, 1)
	assert.Equal(t, float64(77), selesai[0]["perjalanan_id"])
	assert.Equal(t, DefaultFinishNote, selesai[0]["catatan"])

	assert.Equal(t, live.OpClear, rec.Ops()[len(rec.Ops())-1])

	_, err = svc.FinishTrip(ctx, "")
	assert.ErrorIs(t, err, tracking.ErrNotActive)

	require.NoError(t, svc.Logout(ctx))
	_, ok := svc.Crew()
	assert.False(t, ok)
	assert.Len(t, fb.calls("logout"), 1)
}

func TestBackendSyncFailureIsNotFatal(t *testing.T) {
	svc, fb, _ := newTestService(t)
	fb.set(func(f *fakeBackend) { f.failSync = true })
	ctx := context.Background()

	_, err := svc.Login(ctx, "budi", "rahasia")
	require.NoError(t, err)
	_, err = svc.StartTrip(ctx, 5, 9)
	require.NoError(t, err)

	n, err := svc.UpdatePassengers(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStartTripWithInvalidGeometry(t *testing.T) {
	svc, fb, rec := newTestService(t)
	fb.set(func(f *fakeBackend) { f.polyline = "" })
	ctx := context.Background()

	_, err := svc.Login(ctx, "budi", "rahasia")
	require.NoError(t, err)

	_, err = svc.StartTrip(ctx, 5, 9)
	require.ErrorIs(t, err, tracking.ErrInvalidTripGeometry)
	assert.Len(t, fb.calls("mulai"), 1)
	assert.Empty(t, rec.Calls())

	_, err = svc.UpdatePassengers(ctx, 1)
	assert.ErrorIs(t, err, tracking.ErrNotActive)
}

func TestResume(t *testing.T) {
	svc, fb, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "budi", "rahasia")
	require.NoError(t, err)

	session, err := svc.Resume(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)

	fb.set(func(f *fakeBackend) { f.active = true })
	session, err = svc.Resume(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, int64(78), session.Trip().TripID)
	assert.Equal(t, 0.0, session.Snapshot().TotalDistanceKm)
	assert.Equal(t, 0, session.Snapshot().Passengers)
	assert.Equal(t, models.ConditionCongested, session.Snapshot().Condition)

	again, err := svc.Resume(ctx)
	require.NoError(t, err)
	assert.Same(t, session, again)
}

func TestLoginFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"message":"Username atau password salah"}`))
	}))
	defer server.Close()

	manager := tracking.NewManager(&livetest.Recorder{}, nil, tracking.DefaultOptions(), zap.NewNop(), nil)
	svc := NewCrewService(zap.NewNop(), backend.NewClient(server.URL, zap.NewNop()), manager)

	_, err := svc.Login(context.Background(), "budi", "salah")
	var apiErr *backend.APIError
	require.True(t, errors.As(err, &apiErr))
	_, ok := svc.Crew()
	assert.False(t, ok)
}
