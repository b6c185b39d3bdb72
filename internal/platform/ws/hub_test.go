package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/messaging"
	"github.com/carebridge/carebridge/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Test fixtures
// ---------------------------------------------------------------------------

// memMessageRepo mirrors the Postgres ordering contract: history sorts by
// created_at with the seq counter breaking ties.
type memMessageRepo struct {
	mu     sync.Mutex
	byConv map[string][]*messaging.Message
	byID   map[uuid.UUID]*messaging.Message
	seq    int64
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{
		byConv: make(map[string][]*messaging.Message),
		byID:   make(map[uuid.UUID]*messaging.Message),
	}
}

func (m *memMessageRepo) Append(_ context.Context, msg *messaging.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.New()
	m.seq++
	msg.Seq = m.seq
	msg.CreatedAt = time.Unix(0, int64(m.seq))
	stored := *msg
	m.byConv[msg.ConversationID] = append(m.byConv[msg.ConversationID], &stored)
	m.byID[msg.ID] = &stored
	return nil
}

func (m *memMessageRepo) History(_ context.Context, conversationID string) ([]*messaging.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*messaging.Message(nil), m.byConv[conversationID]...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (m *memMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*messaging.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byID[id]
	if !ok {
		return nil, messaging.ErrMessageNotFound
	}
	return msg, nil
}

func (m *memMessageRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.byID[id]; ok {
		msg.Read = true
	}
	return nil
}

type pairOracle struct {
	mu    sync.Mutex
	pairs map[[2]uuid.UUID]bool
}

func newPairOracle() *pairOracle {
	return &pairOracle{pairs: make(map[[2]uuid.UUID]bool)}
}

func (o *pairOracle) link(a, b uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pairs[[2]uuid.UUID{a, b}] = true
	o.pairs[[2]uuid.UUID{b, a}] = true
}

func (o *pairOracle) ExistsBetween(_ context.Context, a, b uuid.UUID) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pairs[[2]uuid.UUID{a, b}], nil
}

type nameProvider struct {
	names map[uuid.UUID]string
}

func (p *nameProvider) ResolveUserInfo(_ context.Context, id uuid.UUID) (*messaging.UserInfo, error) {
	name, ok := p.names[id]
	if !ok {
		return nil, messaging.ErrUserNotFound
	}
	return &messaging.UserInfo{ID: id, Name: name}, nil
}

type fixture struct {
	hub    *Hub
	svc    *messaging.Service
	oracle *pairOracle
}

func newFixture(users map[uuid.UUID]string) *fixture {
	oracle := newPairOracle()
	gate := messaging.NewGate(oracle, zerolog.Nop())
	svc := messaging.NewService(newMemMessageRepo(), gate, &nameProvider{names: users})
	hub := NewHub(svc, zerolog.Nop())
	svc.SetBroadcaster(hub)
	return &fixture{hub: hub, svc: svc, oracle: oracle}
}

type nopConn struct{}

func (nopConn) ReadMessage() (int, []byte, error) { select {} }
func (nopConn) WriteMessage(int, []byte) error    { return nil }
func (nopConn) Close() error                      { return nil }

func newTestClient(userID uuid.UUID) *Client {
	return NewClient(userID, "patient", "tester", nopConn{})
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event: %s", raw)
	default:
	}
}

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_JoinAuthorizedPair(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob"})
	f.oracle.link(a, b)

	client := newTestClient(a)
	f.hub.Register(client)
	f.hub.Join(context.Background(), client, b)

	conv := messaging.ConversationID(a, b)
	if f.hub.RoomCount(conv) != 1 {
		t.Fatalf("expected 1 member in room, got %d", f.hub.RoomCount(conv))
	}
}

func TestHub_JoinDeniedSilently(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob"})

	probe := newTestClient(a)
	f.hub.Register(probe)
	f.hub.Join(context.Background(), probe, b)

	conv := messaging.ConversationID(a, b)
	if f.hub.RoomCount(conv) != 0 {
		t.Fatal("denied join must not add the client to the room")
	}
	assertSilent(t, probe)
}

func TestHub_DeniedJoinerGetsNoTraffic(t *testing.T) {
	patient, doctor, stranger := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{patient: "P", doctor: "D", stranger: "S"})
	f.oracle.link(patient, doctor)
	f.oracle.link(stranger, doctor) // stranger-doctor related, but not stranger-patient

	member := newTestClient(doctor)
	eavesdropper := newTestClient(stranger)
	f.hub.Register(member)
	f.hub.Register(eavesdropper)
	f.hub.Join(context.Background(), member, patient)
	f.hub.Join(context.Background(), eavesdropper, patient)

	if _, err := f.svc.Send(context.Background(), patient, doctor, "private", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ev := recvEvent(t, member)
	if ev.Event != "message:new" {
		t.Fatalf("expected message:new, got %s", ev.Event)
	}
	assertSilent(t, eavesdropper)
}

func TestHub_MultiDeviceFanOut(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob"})
	f.oracle.link(a, b)

	phone := newTestClient(a)
	laptop := newTestClient(a)
	other := newTestClient(b)
	for _, c := range []*Client{phone, laptop, other} {
		f.hub.Register(c)
	}
	f.hub.Join(context.Background(), phone, b)
	f.hub.Join(context.Background(), laptop, b)
	f.hub.Join(context.Background(), other, a)

	if _, err := f.svc.Send(context.Background(), a, b, "hello all", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for _, c := range []*Client{phone, laptop, other} {
		ev := recvEvent(t, c)
		if ev.Event != "message:new" {
			t.Fatalf("expected message:new, got %s", ev.Event)
		}
		var m messaging.Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if m.Text != "hello all" {
			t.Fatalf("unexpected text %q", m.Text)
		}
	}
}

func TestHub_JoinReplacesPreviousRoom(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob", c: "Cara"})
	f.oracle.link(a, b)
	f.oracle.link(a, c)

	client := newTestClient(a)
	f.hub.Register(client)
	f.hub.Join(context.Background(), client, b)
	f.hub.Join(context.Background(), client, c)

	if f.hub.RoomCount(messaging.ConversationID(a, b)) != 0 {
		t.Fatal("joining a new conversation must leave the previous room")
	}
	if f.hub.RoomCount(messaging.ConversationID(a, c)) != 1 {
		t.Fatal("client should be in the new room")
	}

	// A denied join keeps the current room.
	f.hub.Join(context.Background(), client, uuid.New())
	if f.hub.RoomCount(messaging.ConversationID(a, c)) != 1 {
		t.Fatal("denied join must not disturb the current room")
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob"})
	f.oracle.link(a, b)

	client := newTestClient(a)
	f.hub.Register(client)
	f.hub.Join(context.Background(), client, b)
	f.hub.Leave(client, b)

	if _, err := f.svc.Send(context.Background(), b, a, "gone already", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	assertSilent(t, client)
}

func TestHub_UnregisterClosesChannelAndCleansRooms(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob"})
	f.oracle.link(a, b)

	client := newTestClient(a)
	f.hub.Register(client)
	f.hub.Join(context.Background(), client, b)
	f.hub.Unregister(client)

	if f.hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", f.hub.ClientCount())
	}
	if f.hub.RoomCount(messaging.ConversationID(a, b)) != 0 {
		t.Fatal("room should be empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed after unregister")
	}
}

func TestHub_NotifyUserReachesAllDevices(t *testing.T) {
	a := uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice"})

	phone := newTestClient(a)
	laptop := newTestClient(a)
	f.hub.Register(phone)
	f.hub.Register(laptop)

	f.hub.NotifyUser(a, "reminder:due", map[string]string{"title": "Meds"})

	for _, c := range []*Client{phone, laptop} {
		ev := recvEvent(t, c)
		if ev.Event != "reminder:due" {
			t.Fatalf("expected reminder:due, got %s", ev.Event)
		}
	}
}

func TestHub_ConcurrentSendsStayOrdered(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice", b: "Bob"})
	f.oracle.link(a, b)

	listener := newTestClient(b)
	listener.Send = make(chan []byte, 1024)
	f.hub.Register(listener)
	f.hub.Join(context.Background(), listener, a)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Send(context.Background(), a, b, "tick", ""); err != nil {
				t.Errorf("Send failed: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := f.svc.History(context.Background(), b, a)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	var delivered []uuid.UUID
	for i := 0; i < n; i++ {
		ev := recvEvent(t, listener)
		var m messaging.Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		delivered = append(delivered, m.ID)
	}
	for i := range history {
		if history[i].ID != delivered[i] {
			t.Fatalf("position %d: delivery order diverges from store order", i)
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end handler tests
// ---------------------------------------------------------------------------

func startServer(t *testing.T, f *fixture, issuer *auth.TokenIssuer, users messaging.UserProvider) *httptest.Server {
	t.Helper()
	e := echo.New()
	h := NewHandler(f.hub, f.svc, issuer, users, zerolog.Nop())
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *gorillawebsocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *gorillawebsocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame, err := json.Marshal(clientEvent{Event: event, Data: raw})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.WriteMessage(gorillawebsocket.TextMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *gorillawebsocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return ev
}

func TestHandler_RejectsBadCredential(t *testing.T) {
	a := uuid.New()
	f := newFixture(map[uuid.UUID]string{a: "Alice"})
	issuer := auth.NewTokenIssuer([]byte("test-signing-key-0123456789abcdef"), "carebridge", time.Hour)
	srv := startServer(t, f, issuer, &nameProvider{names: map[uuid.UUID]string{a: "Alice"}})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("expected handshake to fail without a credential")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-token")
	if _, _, err := gorillawebsocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake to fail with a bad credential")
	}
}

func TestHandler_QuotedCredentialAccepted(t *testing.T) {
	a := uuid.New()
	users := map[uuid.UUID]string{a: "Alice"}
	f := newFixture(users)
	issuer := auth.NewTokenIssuer([]byte("test-signing-key-0123456789abcdef"), "carebridge", time.Hour)
	srv := startServer(t, f, issuer, &nameProvider{names: users})

	token, err := issuer.Issue(a, "patient")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// A client that stored the token JSON-encoded sends it wrapped in
	// literal quotes; the handshake must still succeed.
	conn := dial(t, srv, `"`+token+`"`)
	if conn == nil {
		t.Fatal("expected connection")
	}
}

func TestHandler_EndToEndConversation(t *testing.T) {
	patient, doctor := uuid.New(), uuid.New()
	users := map[uuid.UUID]string{patient: "Pat", doctor: "Doc"}
	f := newFixture(users)
	f.oracle.link(patient, doctor)
	issuer := auth.NewTokenIssuer([]byte("test-signing-key-0123456789abcdef"), "carebridge", time.Hour)
	srv := startServer(t, f, issuer, &nameProvider{names: users})

	patientToken, _ := issuer.Issue(patient, "patient")
	doctorToken, _ := issuer.Issue(doctor, "doctor")

	patientConn := dial(t, srv, patientToken)
	doctorConn := dial(t, srv, doctorToken)

	sendFrame(t, patientConn, "joinConversation", joinPayload{OtherUserID: doctor})
	sendFrame(t, doctorConn, "joinConversation", joinPayload{OtherUserID: patient})

	// Joins are processed asynchronously; wait for both members.
	conv := messaging.ConversationID(patient, doctor)
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.RoomCount(conv) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("room never filled")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sendFrame(t, patientConn, "sendMessage", sendPayload{
		ReceiverID:    doctor,
		Text:          "how are the results?",
		CorrelationID: "corr-42",
	})

	for _, conn := range []*gorillawebsocket.Conn{patientConn, doctorConn} {
		ev := readFrame(t, conn)
		if ev.Event != "message:new" {
			t.Fatalf("expected message:new, got %s", ev.Event)
		}
		var m messaging.Message
		if err := json.Unmarshal(ev.Data, &m); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if m.Text != "how are the results?" {
			t.Fatalf("unexpected text %q", m.Text)
		}
	}

	// Message is durable regardless of live delivery.
	history, err := f.svc.History(context.Background(), doctor, patient)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(history))
	}
}

func TestHandler_UnauthorizedSendStaysSilent(t *testing.T) {
	patient, stranger := uuid.New(), uuid.New()
	users := map[uuid.UUID]string{patient: "Pat", stranger: "Sam"}
	f := newFixture(users)
	issuer := auth.NewTokenIssuer([]byte("test-signing-key-0123456789abcdef"), "carebridge", time.Hour)
	srv := startServer(t, f, issuer, &nameProvider{names: users})

	token, _ := issuer.Issue(stranger, "patient")
	conn := dial(t, srv, token)
	reader := newFrameReader(conn)

	// No appointment links the pair: the send is denied and the stranger
	// hears nothing back, so the denial confirms no relationship either way.
	sendFrame(t, conn, "sendMessage", sendPayload{
		ReceiverID:    patient,
		Text:          "let me in",
		CorrelationID: "corr-x",
	})
	assertNoFrame(t, reader)

	// The connection survives the denial. A validation failure on the same
	// connection still gets a message:error frame with the correlation id.
	f.oracle.link(patient, stranger)
	if len(waitForHistory(t, f, stranger, patient, 0)) != 0 {
		t.Fatal("denied send must not persist anything")
	}
	sendFrame(t, conn, "sendMessage", sendPayload{ReceiverID: patient, Text: "   ", CorrelationID: "corr-v"})
	ev := reader.read(t)
	if ev.Event != "message:error" {
		t.Fatalf("expected message:error, got %s", ev.Event)
	}
	var p errorPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if p.CorrelationID != "corr-v" {
		t.Fatalf("expected correlation id echoed, got %q", p.CorrelationID)
	}

	// And a legitimate send afterwards goes through.
	sendFrame(t, conn, "sendMessage", sendPayload{ReceiverID: patient, Text: "sorry, retry", CorrelationID: "corr-y"})
	history := waitForHistory(t, f, stranger, patient, 1)
	if history[0].Text != "sorry, retry" {
		t.Fatalf("unexpected text %q", history[0].Text)
	}
}

// frameReader drains a connection on a dedicated goroutine. A gorilla
// conn treats any read error — including a deadline timeout — as
// permanent, so asserting silence with SetReadDeadline+ReadMessage
// would poison the connection for every later read. Reading through a
// channel lets silence checks time out without touching the conn.
type frameReader struct {
	frames chan []byte
}

func newFrameReader(conn *gorillawebsocket.Conn) *frameReader {
	r := &frameReader{frames: make(chan []byte, 16)}
	go func() {
		defer close(r.frames)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			r.frames <- raw
		}
	}()
	return r
}

func (r *frameReader) read(t *testing.T) Event {
	t.Helper()
	select {
	case raw, ok := <-r.frames:
		if !ok {
			t.Fatal("read frame: connection closed")
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("read frame: timeout")
		return Event{}
	}
}

// assertNoFrame fails if the connection delivers anything within a short
// grace period.
func assertNoFrame(t *testing.T, r *frameReader) {
	t.Helper()
	select {
	case raw, ok := <-r.frames:
		if ok {
			t.Fatalf("expected silence, got frame: %s", raw)
		}
	case <-time.After(300 * time.Millisecond):
	}
}

func waitForHistory(t *testing.T, f *fixture, a, b uuid.UUID, want int) []*messaging.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		history, err := f.svc.History(context.Background(), a, b)
		if err == nil && len(history) >= want {
			return history
		}
		if time.Now().After(deadline) {
			t.Fatalf("history never reached %d messages", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
