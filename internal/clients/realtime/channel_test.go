package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
	"github.com/yungbote/neurobridge-sync/internal/platform/apierr"
)

type fakeStream struct {
	frames chan domain.Envelope
	fail   chan error
	closed atomic.Bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan domain.Envelope, 16), fail: make(chan error, 1)}
}

func (s *fakeStream) Next(ctx context.Context) (domain.Envelope, error) {
	select {
	case env := <-s.frames:
		return env, nil
	case err := <-s.fail:
		return domain.Envelope{}, err
	case <-ctx.Done():
		return domain.Envelope{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// fakeTransport hands out scripted results in order, then healthy streams.
type fakeTransport struct {
	mu      sync.Mutex
	script  []error
	calls   int
	streams chan *fakeStream
}

func newFakeTransport(script ...error) *fakeTransport {
	return &fakeTransport{script: script, streams: make(chan *fakeStream, 8)}
}

func (t *fakeTransport) Connect(ctx context.Context, userID uuid.UUID) (Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if len(t.script) > 0 {
		err := t.script[0]
		t.script = t.script[1:]
		if err != nil {
			return nil, err
		}
	}
	s := newFakeStream()
	t.streams <- s
	return s, nil
}

func (t *fakeTransport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func progressEnvelope(t *testing.T, id string, userID uuid.UUID, mastery float64) domain.Envelope {
	t.Helper()
	raw, err := json.Marshal(domain.ProgressPayload{Topic: "loops", Mastery: mastery})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return domain.Envelope{ID: id, Type: domain.EventProgress, UserID: userID, OccurredAt: time.Now(), Payload: raw}
}

func newTestChannel(t *testing.T, tr Transport, sender Sender, opts Options) *Channel {
	t.Helper()
	opts.Transport = tr
	opts.Sender = sender
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 5 * time.Millisecond
	}
	ch, err := NewChannel(opts)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	t.Cleanup(ch.Close)
	return ch
}

func noopSender() Sender {
	return SenderFunc(func(context.Context, Mutation) error { return nil })
}

func TestDuplicateEventsDeliveredOnce(t *testing.T) {
	tr := newFakeTransport()
	ch := newTestChannel(t, tr, noopSender(), Options{})
	uid := uuid.New()

	var mu sync.Mutex
	var got []string
	unsub, err := ch.Subscribe(uid, func(ev domain.Event) {
		mu.Lock()
		got = append(got, ev.EventID())
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	s := <-tr.streams
	s.frames <- progressEnvelope(t, "e1", uid, 0.4)
	s.frames <- progressEnvelope(t, "e1", uid, 0.4)
	s.frames <- progressEnvelope(t, "e2", uid, 0.5)
	s.frames <- progressEnvelope(t, "other", uuid.New(), 0.9)

	waitUntil(t, "two deliveries", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "e1" || got[1] != "e2" {
		t.Fatalf("deliveries: want=[e1 e2] got=%v", got)
	}
}

func TestReplayAfterReconnectIsDeduplicated(t *testing.T) {
	tr := newFakeTransport()
	var states []State
	var smu sync.Mutex
	ch := newTestChannel(t, tr, noopSender(), Options{OnStateChange: func(prev, next State) {
		smu.Lock()
		states = append(states, next)
		smu.Unlock()
	}})
	uid := uuid.New()

	var delivered atomic.Int32
	if _, err := ch.Subscribe(uid, func(domain.Event) { delivered.Add(1) }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	first := <-tr.streams
	first.frames <- progressEnvelope(t, "e1", uid, 0.4)
	waitUntil(t, "first delivery", func() bool { return delivered.Load() == 1 })

	first.fail <- apierr.Transient(errors.New("connection reset"))
	second := <-tr.streams
	second.frames <- progressEnvelope(t, "e1", uid, 0.4)
	second.frames <- progressEnvelope(t, "e2", uid, 0.6)
	waitUntil(t, "second delivery", func() bool { return delivered.Load() == 2 })

	if !first.closed.Load() {
		t.Fatalf("dropped stream not closed")
	}
	smu.Lock()
	defer smu.Unlock()
	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnected}
	if fmt.Sprint(states) != fmt.Sprint(want) {
		t.Fatalf("states: want=%v got=%v", want, states)
	}
}

func TestTerminalConnectErrorDoesNotRetry(t *testing.T) {
	denied := apierr.FromStatus(http.StatusUnauthorized, "unauthorized", nil)
	tr := newFakeTransport(denied, nil)
	ch := newTestChannel(t, tr, noopSender(), Options{})

	if _, err := ch.Subscribe(uuid.New(), func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "disconnected", func() bool {
		st := ch.Status()
		return st.State == StateDisconnected && st.LastError != nil
	})
	time.Sleep(20 * time.Millisecond)
	if n := tr.Calls(); n != 1 {
		t.Fatalf("connect calls: want=1 got=%d", n)
	}
	if !apierr.IsTerminal(ch.Status().LastError) {
		t.Fatalf("LastError: want authorization got=%v", ch.Status().LastError)
	}

	if !ch.Reconnect() {
		t.Fatalf("Reconnect: want=true")
	}
	waitUntil(t, "connected after reconnect", func() bool { return ch.Status().State == StateConnected })
}

func TestRetryBudgetExhausted(t *testing.T) {
	boom := apierr.Transient(errors.New("refused"))
	tr := newFakeTransport(boom, boom, boom, boom, boom)
	ch := newTestChannel(t, tr, noopSender(), Options{MaxAttempts: 3})

	if _, err := ch.Subscribe(uuid.New(), func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "gave up", func() bool {
		st := ch.Status()
		return st.State == StateDisconnected && st.Attempts == 3
	})
	if n := tr.Calls(); n != 3 {
		t.Fatalf("connect calls: want=3 got=%d", n)
	}
}

func TestSubscribeRejectsSecondUser(t *testing.T) {
	ch := newTestChannel(t, newFakeTransport(), noopSender(), Options{})
	if _, err := ch.Subscribe(uuid.New(), func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if _, err := ch.Subscribe(uuid.New(), func(domain.Event) {}); !errors.Is(err, ErrOtherUserAttached) {
		t.Fatalf("second user: want=%v got=%v", ErrOtherUserAttached, err)
	}
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []uuid.UUID
	failAt int
	err    error
}

func (r *recordingSender) Send(_ context.Context, m Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil && len(r.sent) == r.failAt {
		return r.err
	}
	r.sent = append(r.sent, m.ID)
	return nil
}

func (r *recordingSender) Sent() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.sent...)
}

func TestOfflineQueueReplaysInOrderForAllLengths(t *testing.T) {
	for n := 0; n <= 25; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			sender := &recordingSender{}
			ch := newTestChannel(t, newFakeTransport(), sender, Options{})
			uid := uuid.New()

			want := make([]uuid.UUID, 0, n)
			for i := 0; i < n; i++ {
				m, err := NewMutation(uid, MutationRecordActivity, map[string]int{"i": i})
				if err != nil {
					t.Fatalf("NewMutation: %v", err)
				}
				queued, err := ch.Send(context.Background(), m)
				if err != nil || !queued {
					t.Fatalf("Send while disconnected: queued=%v err=%v", queued, err)
				}
				want = append(want, m.ID)
			}

			if _, err := ch.Subscribe(uid, func(domain.Event) {}); err != nil {
				t.Fatalf("Subscribe: %v", err)
			}
			waitUntil(t, "queue drained", func() bool { return ch.Status().QueueLength == 0 && len(sender.Sent()) == n })

			got := sender.Sent()
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("position %d: want=%s got=%s", i, want[i], got[i])
				}
			}
		})
	}
}

func TestFlushRetriesTransientFailureInOrder(t *testing.T) {
	sender := &recordingSender{failAt: 2, err: apierr.Transient(errors.New("503"))}
	ch := newTestChannel(t, newFakeTransport(), sender, Options{})
	uid := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		m, _ := NewMutation(uid, MutationUpdatePreferences, map[string]int{"i": i})
		m, err := ch.EnqueueOffline(context.Background(), m)
		if err != nil {
			t.Fatalf("EnqueueOffline: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if _, err := ch.FlushOfflineQueue(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("flush while disconnected: want=%v got=%v", ErrNotConnected, err)
	}

	if _, err := ch.Subscribe(uid, func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "partial flush", func() bool { return len(sender.Sent()) == 2 })
	waitUntil(t, "retried head", func() bool {
		pending, err := ch.PendingMutations(context.Background())
		return err == nil && len(pending) == 3 && pending[0].ID == ids[2] && pending[0].Attempts >= 2
	})

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	waitUntil(t, "queue drained by retry", func() bool { return ch.Status().QueueLength == 0 })
	got := sender.Sent()
	if len(got) != len(ids) {
		t.Fatalf("sent: want=%d got=%d", len(ids), len(got))
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("order at %d: want=%s got=%s", i, ids[i], got[i])
		}
	}
}

func TestTransientDirectSendIsRetried(t *testing.T) {
	sender := &recordingSender{failAt: 0, err: apierr.Transient(errors.New("timeout"))}
	ch := newTestChannel(t, newFakeTransport(), sender, Options{})
	uid := uuid.New()
	if _, err := ch.Subscribe(uid, func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "connected", func() bool { return ch.Status().State == StateConnected })

	m, _ := NewMutation(uid, MutationRecordActivity, map[string]int{"i": 1})
	queued, err := ch.Send(context.Background(), m)
	if err != nil || !queued {
		t.Fatalf("Send: want queued got queued=%v err=%v", queued, err)
	}
	time.Sleep(10 * time.Millisecond)
	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()

	waitUntil(t, "queued write retried", func() bool { return ch.Status().QueueLength == 0 })
	if got := sender.Sent(); len(got) != 1 || got[0] != m.ID {
		t.Fatalf("sent: want=[%s] got=%v", m.ID, got)
	}
}

// gatedSender fails its first call transiently once release is closed.
type gatedSender struct {
	mu      sync.Mutex
	calls   int
	sent    []uuid.UUID
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSender) Send(_ context.Context, m Mutation) error {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
		return apierr.Transient(errors.New("503"))
	}
	g.mu.Lock()
	g.sent = append(g.sent, m.ID)
	g.mu.Unlock()
	return nil
}

func (g *gatedSender) Sent() []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]uuid.UUID(nil), g.sent...)
}

func TestConcurrentSendDoesNotOvertakeFailedWrite(t *testing.T) {
	sender := &gatedSender{entered: make(chan struct{}), release: make(chan struct{})}
	ch := newTestChannel(t, newFakeTransport(), sender, Options{})
	uid := uuid.New()
	if _, err := ch.Subscribe(uid, func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "connected", func() bool { return ch.Status().State == StateConnected })

	first, _ := NewMutation(uid, MutationRecordActivity, map[string]int{"i": 1})
	second, _ := NewMutation(uid, MutationRecordActivity, map[string]int{"i": 2})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ch.Send(context.Background(), first)
	}()
	<-sender.entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_, _ = ch.Send(context.Background(), second)
	}()
	time.Sleep(20 * time.Millisecond)
	close(sender.release)
	<-done
	<-secondDone

	waitUntil(t, "both delivered", func() bool { return len(sender.Sent()) == 2 })
	got := sender.Sent()
	if got[0] != first.ID || got[1] != second.ID {
		t.Fatalf("order: want=[%s %s] got=%v", first.ID, second.ID, got)
	}
}

func TestFlushDropsPermanentlyRejected(t *testing.T) {
	uid := uuid.New()
	bad := Mutation{ID: uuid.New(), UserID: uid, Kind: MutationUpdatePreferences}
	good := Mutation{ID: uuid.New(), UserID: uid, Kind: MutationUpdatePreferences}

	var mu sync.Mutex
	var sent, dropped []uuid.UUID
	var queueChanges atomic.Int32
	sender := SenderFunc(func(_ context.Context, m Mutation) error {
		if m.ID == bad.ID {
			return apierr.Validation("timezone", errors.New("bad"))
		}
		mu.Lock()
		sent = append(sent, m.ID)
		mu.Unlock()
		return nil
	})
	ch := newTestChannel(t, newFakeTransport(), sender, Options{
		OnDropped: func(m Mutation, err error) {
			mu.Lock()
			dropped = append(dropped, m.ID)
			mu.Unlock()
		},
		OnQueueChange: func() { queueChanges.Add(1) },
	})
	if _, err := ch.EnqueueOffline(context.Background(), bad); err != nil {
		t.Fatalf("EnqueueOffline: %v", err)
	}
	if _, err := ch.EnqueueOffline(context.Background(), good); err != nil {
		t.Fatalf("EnqueueOffline: %v", err)
	}

	if _, err := ch.Subscribe(uid, func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "queue drained", func() bool { return ch.Status().QueueLength == 0 })
	waitUntil(t, "drop reported", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dropped) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if dropped[0] != bad.ID {
		t.Fatalf("dropped: want=[%s] got=%v", bad.ID, dropped)
	}
	if len(sent) != 1 || sent[0] != good.ID {
		t.Fatalf("sent: want=[%s] got=%v", good.ID, sent)
	}
	if queueChanges.Load() < 3 {
		t.Fatalf("queue change callbacks: want>=3 got=%d", queueChanges.Load())
	}
}

func TestSendWhileConnectedGoesDirect(t *testing.T) {
	sender := &recordingSender{}
	ch := newTestChannel(t, newFakeTransport(), sender, Options{})
	uid := uuid.New()
	if _, err := ch.Subscribe(uid, func(domain.Event) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitUntil(t, "connected", func() bool { return ch.Status().State == StateConnected })

	m, _ := NewMutation(uid, MutationRecordActivity, map[string]int{"i": 1})
	queued, err := ch.Send(context.Background(), m)
	if err != nil || queued {
		t.Fatalf("Send: want direct got queued=%v err=%v", queued, err)
	}
	if got := sender.Sent(); len(got) != 1 || got[0] != m.ID {
		t.Fatalf("sent: got=%v", got)
	}
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(2)
	if !s.Add("a") || !s.Add("b") {
		t.Fatalf("fresh ids reported as seen")
	}
	if s.Add("a") {
		t.Fatalf("duplicate a accepted")
	}
	s.Add("c")
	if !s.Add("a") {
		t.Fatalf("evicted id a still reported as seen")
	}
}
