package admin_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shuntia/lunaris/internal/admin"
	"github.com/shuntia/lunaris/internal/event"
	"github.com/shuntia/lunaris/pkg/mailbox"
	"github.com/shuntia/lunaris/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrchestrator struct {
	threads [3]int
}

func (f *fakeOrchestrator) SubmitJob(pool.Priority, func()) error { return nil }
func (f *fakeOrchestrator) JoinForeground()                       {}
func (f *fakeOrchestrator) SetThreads(d, fr, b int)               { f.threads = [3]int{d, fr, b} }
func (f *fakeOrchestrator) Profile() pool.Profile {
	return pool.Profile{Immediate: 1, Normal: 2, Deferred: 3, Frame: 4, RunningTasks: 5}
}

func newTestServer(t *testing.T) (*admin.Server, *mailbox.Mailbox, *admin.Hub) {
	t.Helper()
	box := mailbox.New()
	hub := admin.NewHub()
	go hub.Start()
	t.Cleanup(hub.Close)
	// give the hub's dispatch loop a moment to install its channels
	time.Sleep(10 * time.Millisecond)
	return admin.NewServer(&fakeOrchestrator{}, box, hub), box, hub
}

func TestHandleProfile_ReturnsPoolSnapshot(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v0/pool/profile", nil)
	rec := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got pool.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(4), got.Frame)
	assert.Equal(t, uint64(5), got.RunningTasks)
}

func TestHandleSetThreads_AppliesRequestedCounts(t *testing.T) {
	_, box, hub := newTestServer(t)
	orch := &fakeOrchestrator{}
	srv := admin.NewServer(orch, box, hub)

	body := strings.NewReader(`{"default":3,"frame":2,"background":1}`)
	req := httptest.NewRequest(http.MethodPost, "/v0/pool/threads", body)
	rec := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [3]int{3, 2, 1}, orch.threads)
}

func TestHandleResolve_UnknownNameReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v0/mailbox/resolve/missing", nil)
	rec := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleResolve_KnownNameReturnsSlot(t *testing.T) {
	srv, box, _ := newTestServer(t)
	slot := box.Register(mailbox.NewFuncEndpoint(func(mailbox.Envelope) error { return nil }), "renderer")

	req := httptest.NewRequest(http.MethodGet, "/v0/mailbox/resolve/renderer", nil)
	rec := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]uint32
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, slot, got["slot"])
}

func TestHandleSend_ReservedOpcodeToNonKernelSlotRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"source":0,"destination":7,"opcode":2,"require_ack":false}`)
	req := httptest.NewRequest(http.MethodPost, "/v0/mailbox/send", body)
	rec := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSend_UnknownDestinationReturnsBadGateway(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"source":0,"destination":99,"opcode":5000,"require_ack":false}`)
	req := httptest.NewRequest(http.MethodPost, "/v0/mailbox/send", body)
	rec := httptest.NewRecorder()
	srv.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeWS_BroadcastsDispatchedEvents(t *testing.T) {
	_, _, hub := newTestServer(t)

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(10 * time.Millisecond)
	hub.Broadcast(admin.StreamMessage{Event: event.MailboxRegistered, Payload: event.MailboxSlotPayload{SlotID: 1, Name: "x"}})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg admin.StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, event.MailboxRegistered, msg.Event)
}
