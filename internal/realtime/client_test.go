package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/duetlog/duet/backend/internal/errors"
)

// writtenFrame is the decoded shape of an outbound invoke.
type writtenFrame struct {
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// fakeConn is a scripted push service connection.
type fakeConn struct {
	mu        sync.Mutex
	frames    []writtenFrame
	inbound   chan []byte
	broken    chan struct{}
	breakOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		broken:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case message := <-c.inbound:
		return message, nil
	case <-c.broken:
		return nil, errors.New("connection reset")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case <-c.broken:
		return errors.New("connection reset")
	default:
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame writtenFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.frames = append(c.frames, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.breakOnce.Do(func() { close(c.broken) })
	return nil
}

// breakConn simulates an unexpected drop.
func (c *fakeConn) breakConn() {
	c.breakOnce.Do(func() { close(c.broken) })
}

func (c *fakeConn) writtenFrames() []writtenFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]writtenFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) joinCount() int {
	count := 0
	for _, frame := range c.writtenFrames() {
		if frame.Method == methodJoinUserGroup {
			count++
		}
	}
	return count
}

// fakeDialer fails a scripted number of dials before handing out fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func newTestClient(t *testing.T, dialer *fakeDialer, backoff BackoffSchedule) *Client {
	t.Helper()
	client := NewClient(ClientConfig{
		URL:     "ws://localhost/push",
		Dialer:  dialer,
		Backoff: backoff,
	})
	t.Cleanup(client.Close)
	return client
}

// waitFor polls until the condition holds or the test deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// statusRecorder collects connectivity transitions.
type statusRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *statusRecorder) record(connected bool) {
	r.mu.Lock()
	r.events = append(r.events, connected)
	r.mu.Unlock()
}

func (r *statusRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.events))
	copy(out, r.events)
	return out
}

func TestBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt int
		delay   time.Duration
		ok      bool
	}{
		{0, 0, true},
		{1, 2 * time.Second, true},
		{2, 5 * time.Second, true},
		{3, 10 * time.Second, true},
		{4, 30 * time.Second, true},
		{5, 0, false},
		{-1, 0, false},
	}

	for _, tt := range tests {
		delay, ok := DefaultBackoffSchedule.Delay(tt.attempt)
		assert.Equal(t, tt.ok, ok, "attempt %d", tt.attempt)
		assert.Equal(t, tt.delay, delay, "attempt %d", tt.attempt)
	}
	assert.Equal(t, 5, DefaultBackoffSchedule.Attempts())
}

func TestConnectJoinsUserGroup(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)

	recorder := &statusRecorder{}
	client.OnConnectionStatusChanged(recorder.record)

	err := client.Connect(context.Background(), "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, StateConnected, client.State())

	frames := dialer.conn(0).writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, methodJoinUserGroup, frames[0].Method)
	require.Len(t, frames[0].Args, 1)
	assert.Equal(t, "user-1", frames[0].Args[0])

	assert.Equal(t, []bool{true}, recorder.snapshot())
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	dialer := &fakeDialer{failures: 100}
	client := newTestClient(t, dialer, nil)

	recorder := &statusRecorder{}
	client.OnConnectionStatusChanged(recorder.record)

	err := client.Connect(context.Background(), "user-1", "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConnectFailed))
	assert.Equal(t, StateDisconnected, client.State())
	assert.Equal(t, []bool{false}, recorder.snapshot())
}

func TestDisconnectIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)

	recorder := &statusRecorder{}
	client.OnConnectionStatusChanged(recorder.record)

	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	client.Disconnect()
	client.Disconnect()

	assert.Equal(t, StateDisconnected, client.State())
	assert.Equal(t, []bool{true, false}, recorder.snapshot())
}

func TestBroadcastWhileDisconnectedIsNoOp(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)

	require.NoError(t, client.BroadcastToPartner(json.RawMessage(`{"hi":1}`)))
	require.NoError(t, client.BroadcastToFollowers(json.RawMessage(`{"hi":2}`)))
	require.NoError(t, client.NotifyUser("user-2", json.RawMessage(`{"hi":3}`)))
	assert.Equal(t, 0, dialer.dialCount())
}

func TestBroadcastCarriesBoundUser(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)
	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	require.NoError(t, client.BroadcastToPartner(json.RawMessage(`{"mood":"happy"}`)))

	frames := dialer.conn(0).writtenFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, methodBroadcastToPartner, frames[1].Method)
	require.Len(t, frames[1].Args, 2)
	assert.Equal(t, "user-1", frames[1].Args[0])
}

func TestReconnectAfterDropRejoinsGroup(t *testing.T) {
	dialer := &fakeDialer{}
	backoff := BackoffSchedule{0, 0, 0, 0}
	client := newTestClient(t, dialer, backoff)

	recorder := &statusRecorder{}
	client.OnConnectionStatusChanged(recorder.record)

	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	// Next two dials fail, the third succeeds.
	dialer.mu.Lock()
	dialer.failures = 2
	dialer.mu.Unlock()

	dialer.conn(0).breakConn()

	waitFor(t, "reconnect", func() bool { return len(recorder.snapshot()) == 5 })
	assert.Equal(t, StateConnected, client.State())

	// 1 initial + 2 failed + 1 successful.
	assert.Equal(t, 4, dialer.dialCount())

	second := dialer.conn(1)
	require.NotNil(t, second)
	assert.Equal(t, 1, second.joinCount())

	// Connected, dropped, one false per failed attempt, reconnected.
	assert.Equal(t, []bool{true, false, false, false, true}, recorder.snapshot())
}

func TestReconnectExhaustionGivesUp(t *testing.T) {
	dialer := &fakeDialer{}
	backoff := BackoffSchedule{0, 0}
	client := newTestClient(t, dialer, backoff)

	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	dialer.mu.Lock()
	dialer.failures = 100
	dialer.mu.Unlock()

	dialer.conn(0).breakConn()

	waitFor(t, "give up", func() bool { return client.State() == StateDisconnected })

	// 1 initial + 2 exhausted attempts, no further dialing.
	assert.Equal(t, 3, dialer.dialCount())
}

func TestInboundEventsRoutedByType(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)
	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	push := func(eventType, payload string) {
		raw, err := json.Marshal(Envelope{
			Type:      eventType,
			Data:      json.RawMessage(payload),
			Timestamp: time.Now().Unix(),
		})
		require.NoError(t, err)
		dialer.conn(0).inbound <- raw
	}

	push(EventPost, `{"id":"post-1"}`)
	push(EventJournalEntry, `{"id":"entry-1"}`)
	push(EventMoodEntry, `{"id":"mood-1"}`)
	push(EventNotification, `{"id":"note-1"}`)
	push("UnknownEvent", `{}`)

	receive := func(ch <-chan json.RawMessage) string {
		select {
		case payload := <-ch:
			return string(payload)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.JSONEq(t, `{"id":"post-1"}`, receive(client.ReceivePost()))
	assert.JSONEq(t, `{"id":"entry-1"}`, receive(client.ReceiveJournalEntry()))
	assert.JSONEq(t, `{"id":"mood-1"}`, receive(client.ReceiveMoodEntry()))
	assert.JSONEq(t, `{"id":"note-1"}`, receive(client.ReceiveNotification()))
}

func TestSlowSubscriberDoesNotStallOthers(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)
	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	conn := dialer.conn(0)

	// Nobody reads posts; overflow its subscriber buffer.
	for i := 0; i < subscriberBuffer*2; i++ {
		raw, err := json.Marshal(Envelope{
			Type: EventPost,
			Data: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		})
		require.NoError(t, err)
		conn.inbound <- raw
	}

	raw, err := json.Marshal(Envelope{Type: EventNotification, Data: json.RawMessage(`{"id":"note-1"}`)})
	require.NoError(t, err)
	conn.inbound <- raw

	select {
	case payload := <-client.ReceiveNotification():
		assert.JSONEq(t, `{"id":"note-1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("notification stalled behind slow post subscriber")
	}
}

func TestDisconnectDuringHandshakeStaysDisconnected(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)

	recorder := &statusRecorder{}
	client.OnConnectionStatusChanged(recorder.record)

	// A Disconnect that lands after the handshake's staleness check but
	// before the new connection is published must win: the stale conn is
	// refused and closed, not resurrected to Connected.
	client.mu.Lock()
	client.state = StateConnecting
	staleGen := client.gen
	client.mu.Unlock()

	client.Disconnect()

	conn := newFakeConn()
	require.False(t, client.install(conn, staleGen))
	assert.Equal(t, StateDisconnected, client.State())
	select {
	case <-conn.broken:
	default:
		t.Error("refused connection was not closed")
	}
	assert.Empty(t, recorder.snapshot())
}

func TestConnectReplacesExistingConnection(t *testing.T) {
	dialer := &fakeDialer{}
	client := newTestClient(t, dialer, nil)

	require.NoError(t, client.Connect(context.Background(), "user-1", ""))
	require.NoError(t, client.Connect(context.Background(), "user-1", ""))

	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, StateConnected, client.State())

	// The first connection was torn down.
	select {
	case <-dialer.conn(0).broken:
	default:
		t.Error("first connection was not closed")
	}
}
