package command

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mage/mage-sdk-go/events"
)

type reply struct {
	resps []Response
	err   error
}

type sent struct {
	b     *Batch
	reply chan reply
}

type fakeTransport struct {
	calls chan sent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan sent)}
}

func (f *fakeTransport) Send(ctx context.Context, b *Batch) ([]Response, error) {
	s := sent{b: b, reply: make(chan reply, 1)}
	select {
	case f.calls <- s:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-s.reply:
		return r.resps, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) next(t *testing.T) sent {
	t.Helper()
	select {
	case s := <-f.calls:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a batch")
	}
	return sent{}
}

func (f *fakeTransport) idle(t *testing.T) {
	t.Helper()
	select {
	case s := <-f.calls:
		t.Fatalf("unexpected batch %d %v", s.b.QueryID, s.b.names())
	case <-time.After(20 * time.Millisecond):
	}
}

// echo answers every command with its own name.
func echo(b *Batch) reply {
	r := reply{resps: make([]Response, len(b.Items))}
	for i, item := range b.Items {
		r.resps[i].Result, _ = json.Marshal(item.Name)
	}
	return r
}

type recorder struct {
	mu   sync.Mutex
	tags []string
}

func (r *recorder) listen(m *events.Manager, tags ...string) {
	for _, tag := range tags {
		m.On(tag, func(json.RawMessage) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.tags = append(r.tags, tag)
		})
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tags...)
}

var ioTags = []string{"io.send", "io.resend", "io.response", "io.error.network", "io.error.maintenance", "io.error.parse"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCenter(t *testing.T) (*Center, *fakeTransport, *events.Manager, *recorder) {
	t.Helper()
	ft := newFakeTransport()
	em := events.NewManager(quietLogger())
	rec := &recorder{}
	rec.listen(em, ioTags...)
	c := NewCenter(ft, em, WithLogger(quietLogger()))
	t.Cleanup(c.Close)
	return c, ft, em, rec
}

type results struct {
	mu  sync.Mutex
	got []string
	wg  sync.WaitGroup
}

func (r *results) cb() Callback {
	r.wg.Add(1)
	return func(data json.RawMessage, err error) {
		defer r.wg.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		if err != nil {
			r.got = append(r.got, "error: "+err.Error())
			return
		}
		r.got = append(r.got, string(data))
	}
}

func TestCenterOneBatchInFlight(t *testing.T) {
	c, ft, _, rec := newTestCenter(t)
	res := &results{}

	if err := c.Send("a", nil, res.cb()); err != nil {
		t.Fatal(err)
	}
	first := ft.next(t)
	if err := c.Send("b", map[string]int{"x": 1}, res.cb()); err != nil {
		t.Fatal(err)
	}
	if err := c.Send("c", nil, res.cb()); err != nil {
		t.Fatal(err)
	}
	ft.idle(t)
	if !c.Busy() {
		t.Error("expected a batch in flight")
	}

	first.reply <- echo(first.b)
	second := ft.next(t)
	if second.b.QueryID != 2 || first.b.QueryID != 1 {
		t.Errorf("query ids %d, %d", first.b.QueryID, second.b.QueryID)
	}
	if diff := cmp.Diff([]string{"b", "c"}, second.b.names()); diff != "" {
		t.Errorf("second batch (-want +got):\n%s", diff)
	}
	if got := string(second.b.Items[0].Params); got != `{"x":1}` {
		t.Errorf("params %s", got)
	}
	if got := string(second.b.Items[1].Params); got != `{}` {
		t.Errorf("nil params encoded as %s", got)
	}
	second.reply <- echo(second.b)
	res.wg.Wait()

	if diff := cmp.Diff([]string{`"a"`, `"b"`, `"c"`}, res.got); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
	want := []string{"io.send", "io.response", "io.send", "io.response"}
	if diff := cmp.Diff(want, rec.get()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if c.Busy() {
		t.Error("still busy")
	}
}

func TestCenterPiggyBack(t *testing.T) {
	c, ft, _, _ := newTestCenter(t)
	res := &results{}
	if err := c.PiggyBack("p", nil, res.cb()); err != nil {
		t.Fatal(err)
	}
	ft.idle(t)
	if c.Busy() {
		t.Fatal("piggy-backed command was sent")
	}
	if err := c.Send("s", nil, res.cb()); err != nil {
		t.Fatal(err)
	}
	s := ft.next(t)
	if diff := cmp.Diff([]string{"p", "s"}, s.b.names()); diff != "" {
		t.Errorf("batch (-want +got):\n%s", diff)
	}
	s.reply <- echo(s.b)
	res.wg.Wait()
}

func TestCenterResend(t *testing.T) {
	c, ft, _, rec := newTestCenter(t)
	res := &results{}
	if c.Resend() {
		t.Error("Resend with nothing in flight")
	}
	if err := c.Send("a", nil, res.cb()); err != nil {
		t.Fatal(err)
	}
	s := ft.next(t)
	s.reply <- reply{err: &TransportError{Kind: KindMaintenance, Status: 503, Err: errors.New("down")}}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.get()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.Busy() {
		t.Fatal("failed batch left flight")
	}
	if err := c.Send("b", nil, res.cb()); err != nil {
		t.Fatal(err)
	}
	ft.idle(t)

	if !c.Resend() {
		t.Fatal("Resend found nothing in flight")
	}
	again := ft.next(t)
	if again.b != s.b {
		t.Error("Resend sent a different batch")
	}
	again.reply <- echo(again.b)
	next := ft.next(t)
	if diff := cmp.Diff([]string{"b"}, next.b.names()); diff != "" {
		t.Errorf("next batch (-want +got):\n%s", diff)
	}
	next.reply <- echo(next.b)
	res.wg.Wait()

	want := []string{"io.send", "io.error.maintenance", "io.resend", "io.response", "io.send", "io.response"}
	if diff := cmp.Diff(want, rec.get()); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestCenterCall(t *testing.T) {
	c, ft, em, _ := newTestCenter(t)
	var order []string
	var mu sync.Mutex
	em.On("gift", func(d json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "event "+string(d))
	})

	go func() {
		s := <-ft.calls
		s.reply <- reply{resps: []Response{
			{Result: json.RawMessage(`{"ok":true}`), Events: json.RawMessage(`[["gift",7]]`)},
		}}
		s = <-ft.calls
		s.reply <- reply{resps: []Response{{Err: &Error{Code: "denied"}}}}
		s = <-ft.calls
		s.reply <- reply{}
	}()

	got, err := c.Call(context.Background(), "first", nil)
	if err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	order = append(order, "result "+string(got))
	mu.Unlock()
	if diff := cmp.Diff([]string{"event 7", `result {"ok":true}`}, order); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}

	_, err = c.Call(context.Background(), "second", nil)
	if !errors.Is(err, &Error{Code: "denied"}) {
		t.Errorf("got %v, want denied", err)
	}
	_, err = c.Call(context.Background(), "third", nil)
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("got %v, want ErrNoResponse", err)
	}
}

func TestCenterCallContext(t *testing.T) {
	c, ft, _, _ := newTestCenter(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() { <-ft.calls }()
	if _, err := c.Call(ctx, "slow", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v", err)
	}
	c.Close()
	if err := c.Send("late", nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestCenterHeaders(t *testing.T) {
	c, ft, _, _ := newTestCenter(t)
	c.SetHeader(SessionHeader, "k1")
	c.SetHeader(SessionHeader, "k2")
	c.OnPreSerialise(func(b *Batch) { b.SetHeader("client", "test") })

	if err := c.Send("a", nil, nil); err != nil {
		t.Fatal(err)
	}
	s := ft.next(t)
	want := []Header{{Name: SessionHeader, Key: "k2"}, {Name: "client", Key: "test"}}
	if diff := cmp.Diff(want, s.b.Header); diff != "" {
		t.Errorf("headers (-want +got):\n%s", diff)
	}
	c.DelHeader(SessionHeader)
	s.reply <- echo(s.b)

	if err := c.Send("b", nil, nil); err != nil {
		t.Fatal(err)
	}
	s = ft.next(t)
	if diff := cmp.Diff([]Header{{Name: "client", Key: "test"}}, s.b.Header); diff != "" {
		t.Errorf("headers after delete (-want +got):\n%s", diff)
	}
	s.reply <- echo(s.b)
}

func TestErrorIs(t *testing.T) {
	err := error(&Error{Code: "auth", Message: "bad key"})
	if !errors.Is(err, &Error{Code: "auth"}) {
		t.Error("same code should match")
	}
	if errors.Is(err, &Error{Code: "other"}) {
		t.Error("different code matched")
	}
	if !errors.Is(err, &Error{Message: "bad key"}) {
		t.Error("message should match when code is empty")
	}
	if got := err.Error(); got != "auth: bad key" {
		t.Errorf("got %q", got)
	}
}
