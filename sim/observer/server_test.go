package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dronesim/dronesim/sim"
)

type fakeSim struct {
	mu       sync.Mutex
	snap     *sim.Snapshot
	commands []sim.Command
}

func (f *fakeSim) Snapshot() *sim.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSim) Submit(cmd sim.Command) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

func (f *fakeSim) submitted() []sim.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sim.Command(nil), f.commands...)
}

func newFake() *fakeSim {
	return &fakeSim{snap: &sim.Snapshot{Tick: 42, Mode: "running", GridSize: 5}}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestSnapshotHandler_ServesLatestSnapshot(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFake()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var snap sim.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(42), snap.Tick)
	assert.Equal(t, 5, snap.GridSize)
}

func TestSnapshotHandler_RejectsPost(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFake()).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/snapshot", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandlers_RejectRemoteClients(t *testing.T) {
	s := NewServer(newFake())
	for _, path := range []string{"/snapshot", "/ws"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestSnapshotHandler_AllowRemote(t *testing.T) {
	s := NewServer(newFake())
	s.AllowRemote = true
	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWS_SubscribeThenCommand(t *testing.T) {
	// GIVEN a connected subscriber
	fake := newFake()
	srv := httptest.NewServer(NewServer(fake).Handler())
	defer srv.Close()
	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","stride":3}`)))

	// THEN the current snapshot arrives immediately
	first := readJSON(t, conn)
	assert.Equal(t, "snapshot", first["type"])
	assert.EqualValues(t, 42, first["snapshot"].(map[string]any)["tick"])

	// WHEN a valid command is sent
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"command","command":"place_hospital","pos":{"x":1,"y":2}}`)))

	// THEN it is acknowledged and submitted to the simulation
	ack := readJSON(t, conn)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, "place_hospital", ack["command"])
	assert.Equal(t, []sim.Command{{Kind: sim.CmdPlaceHospital, Pos: sim.Position{X: 1, Y: 2}}}, fake.submitted())
}

func TestWS_InvalidCommandsAreRejected(t *testing.T) {
	fake := newFake()
	srv := httptest.NewServer(NewServer(fake).Handler())
	defer srv.Close()
	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe"}`)))
	readJSON(t, conn) // initial snapshot

	bad := []string{
		`{"type":"command","command":"explode"}`,
		`{"type":"command","command":"place_building"}`,
		`{"type":"command","command":"set_deploy_count","count":"many"}`,
		`not json`,
	}
	for _, msg := range bad {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		reply := readJSON(t, conn)
		assert.Equal(t, "error", reply["type"], msg)
	}
	assert.Empty(t, fake.submitted())
}

func TestWS_HandshakeRequiresSubscribe(t *testing.T) {
	srv := httptest.NewServer(NewServer(newFake()).Handler())
	defer srv.Close()
	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"command","command":"start"}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestPublish_HonorsStride(t *testing.T) {
	// GIVEN a subscriber with stride 5
	s := NewServer(newFake())
	c := s.join(5)

	// WHEN ticks 1..10 are published, tick 5 twice
	for _, tick := range []int64{1, 2, 3, 4, 5, 5, 6, 7, 8, 9, 10} {
		s.Publish(&sim.Snapshot{Tick: tick})
	}
	s.leave(c)

	// THEN only ticks 5 and 10 were queued
	var ticks []int64
	for b := range c.out {
		var m snapshotMessage
		require.NoError(t, json.Unmarshal(b, &m))
		ticks = append(ticks, m.Snapshot.Tick)
	}
	assert.Equal(t, []int64{5, 10}, ticks)
	assert.Equal(t, 0, s.Subscribers())
}

func TestPublish_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	s := NewServer(newFake())
	c := s.join(1)
	defer s.leave(c)

	for tick := int64(1); tick <= clientBuffer*3; tick++ {
		s.Publish(&sim.Snapshot{Tick: tick})
	}
	assert.Len(t, c.out, clientBuffer)
}

func TestValidateClientMessage(t *testing.T) {
	tests := []struct {
		msg   string
		valid bool
	}{
		{`{"type":"subscribe"}`, true},
		{`{"type":"subscribe","stride":60}`, true},
		{`{"type":"subscribe","stride":0}`, false},
		{`{"type":"command","command":"start"}`, true},
		{`{"type":"command","command":"manual_deploy"}`, true},
		{`{"type":"command","command":"set_auto_deploy","enabled":true}`, true},
		{`{"type":"command","command":"set_auto_deploy"}`, false},
		{`{"type":"command","command":"set_deploy_count","count":3}`, true},
		{`{"type":"command","command":"place_hospital","pos":{"x":0,"y":4}}`, true},
		{`{"type":"command","command":"place_hospital","pos":{"x":-1,"y":4}}`, false},
		{`{"type":"command","command":"place_hospital","pos":{"x":1.5,"y":4}}`, false},
		{`{"type":"command","command":"start","extra":1}`, false},
		{`{"type":"hello"}`, false},
	}
	for _, tt := range tests {
		err := validateClientMessage([]byte(tt.msg))
		if tt.valid {
			assert.NoError(t, err, tt.msg)
		} else {
			assert.Error(t, err, tt.msg)
		}
	}
}
