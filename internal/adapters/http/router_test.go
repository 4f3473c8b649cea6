package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Stage/internal/adapters/directory"
	"github.com/dkeye/Stage/internal/app"
	"github.com/dkeye/Stage/internal/app/orch"
	"github.com/dkeye/Stage/internal/client"
	"github.com/dkeye/Stage/internal/config"
	"github.com/dkeye/Stage/internal/core"
	"github.com/dkeye/Stage/internal/domain"
	"github.com/dkeye/Stage/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 3 * time.Second

func newStage(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rooms := core.NewRegistry(core.RegistryConfig{
		Directory: directory.NewMemory(map[string]string{"sunday-service": "room-sunday"}),
	})
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    rooms,
		Relay:    core.NewRelay(rooms),
		Policy:   app.SimplePolicy{},
	}
	cfg := &config.Config{
		Mode:   "test",
		Secret: "test-secret",
		Rooms:  config.RoomsConfig{JoinLimit: 100, JoinWindow: time.Minute},
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(func() {
		cancel()
		o.Shutdown()
		srv.Close()
	})
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *client.Manager {
	t.Helper()
	m := client.NewManager(client.Options{
		URL:               "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws",
		ReconnectAttempts: 2,
		ReconnectDelay:    10 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
	})
	t.Cleanup(m.Disconnect)
	m.Connect()
	require.Eventually(t, func() bool { return m.Status() == domain.StatusConnected }, wait, 5*time.Millisecond)
	return m
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv, _ := newStage(t)
	var body struct {
		Status string `json:"status"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body.Status)
}

func TestPresentationSyncEndToEnd(t *testing.T) {
	srv, _ := newStage(t)

	joined := make(chan protocol.OperatorJoined, 4)
	var viewers atomic.Int64
	evicted := make(chan struct{}, 1)
	alice := client.NewOperator(dial(t, srv), "alice", client.OperatorHandlers{
		Joined:      func(m protocol.OperatorJoined) { joined <- m },
		ViewerCount: func(n int) { viewers.Store(int64(n)) },
		Evicted:     func() { evicted <- struct{}{} },
	})
	require.NoError(t, alice.Join("room-1"))

	var ack protocol.OperatorJoined
	select {
	case ack = <-joined:
	case <-time.After(wait):
		t.Fatal("operator was never acknowledged")
	}
	require.Len(t, string(ack.PIN), core.DefaultPINLength)
	assert.Equal(t, domain.RoleOperator, alice.Role())

	require.NoError(t, alice.UpdateSlide(domain.Slide{SongID: "hymn-12", SlideIndex: 3, DisplayMode: "lyrics"}))

	viewerManager := dial(t, srv)
	viewer := client.NewViewer(viewerManager, client.ViewerHandlers{})
	require.NoError(t, viewer.Join(domain.ByPIN(ack.PIN)))
	require.Eventually(t, func() bool {
		state, seq := viewer.State()
		return seq == 1 && state.Slide != nil && state.Slide.SlideIndex == 3
	}, wait, 5*time.Millisecond)
	assert.Equal(t, client.PhaseLive, viewer.Phase())
	require.Eventually(t, func() bool { return viewers.Load() == 1 }, wait, 5*time.Millisecond)

	require.NoError(t, alice.UpdateBackground("cross.jpg"))
	require.Eventually(t, func() bool {
		state, seq := viewer.State()
		return seq == 2 && state.BackgroundImage == "cross.jpg" && state.Slide != nil && state.Slide.SlideIndex == 3
	}, wait, 5*time.Millisecond)

	var count struct {
		Count int `json:"count"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms/room-1/viewers", &count))
	assert.Equal(t, 1, count.Count)

	var missing struct {
		Code string `json:"code"`
	}
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/rooms/nope/viewers", &missing))
	assert.Equal(t, domain.CodeRoomNotFound, missing.Code)

	bobJoined := make(chan protocol.OperatorJoined, 1)
	bob := client.NewOperator(dial(t, srv), "bob", client.OperatorHandlers{
		Joined: func(m protocol.OperatorJoined) { bobJoined <- m },
	})
	require.NoError(t, bob.Join("room-1"))
	select {
	case m := <-bobJoined:
		assert.Equal(t, uint64(2), m.Snapshot.Sequence)
		assert.Equal(t, ack.PIN, m.PIN)
		assert.Equal(t, 1, m.ViewerCount)
	case <-time.After(wait):
		t.Fatal("second operator was never acknowledged")
	}
	select {
	case <-evicted:
	case <-time.After(wait):
		t.Fatal("first operator was never evicted")
	}
	assert.ErrorIs(t, alice.UpdateSlide(domain.Slide{SlideIndex: 9}), domain.ErrNotOperator)

	require.NoError(t, bob.CloseRoom())
	require.Eventually(t, func() bool { return viewer.Phase() == client.PhaseClosed }, wait, 5*time.Millisecond)

	var list struct {
		Rooms []domain.RoomSummary `json:"rooms"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms", &list))
	assert.Empty(t, list.Rooms)
}

func TestViewerJoinsBySlugBeforeOperator(t *testing.T) {
	srv, _ := newStage(t)

	viewer := client.NewViewer(dial(t, srv), client.ViewerHandlers{})
	require.NoError(t, viewer.Join(domain.BySlug("Sunday-Service")))
	require.Eventually(t, func() bool { return viewer.Phase() == client.PhaseLive }, wait, 5*time.Millisecond)
	assert.Equal(t, domain.RoomID("room-sunday"), viewer.Room())

	op := client.NewOperator(dial(t, srv), "", client.OperatorHandlers{})
	require.NoError(t, op.Join("room-sunday"))
	require.Eventually(t, func() bool { return op.Role() == domain.RoleOperator }, wait, 5*time.Millisecond)
	require.NoError(t, op.UpdateQuickSlideText("Welcome"))

	require.Eventually(t, func() bool {
		state, seq := viewer.State()
		return seq == 1 && state.QuickSlideText == "Welcome"
	}, wait, 5*time.Millisecond)
}

func TestViewerUnknownPIN(t *testing.T) {
	srv, _ := newStage(t)

	errs := make(chan error, 1)
	viewer := client.NewViewer(dial(t, srv), client.ViewerHandlers{Error: func(err error) { errs <- err }})
	require.NoError(t, viewer.Join(domain.ByPIN("000000")))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	case <-time.After(wait):
		t.Fatal("no error for unknown PIN")
	}
	assert.Equal(t, client.PhaseIdle, viewer.Phase())
}
