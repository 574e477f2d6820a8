package transport_test

import (
  "errors"
  "fmt"
  "reflect"
  "sync"
  "testing"

  "github.com/robertof/go-gyro-exporter/transport"
)

const kindFake transport.Kind = "fake"

type FakeBackend struct {
  mu sync.Mutex

  handler transport.Handler
  connectErr error
  connectPanic bool
  sent []string
  closed int
}

func (f *FakeBackend) Connect(h transport.Handler) error {
  if f.connectPanic {
    panic("exploded while wiring")
  }

  f.handler = h
  return f.connectErr
}

func (f *FakeBackend) Send(text string) error {
  f.mu.Lock()
  defer f.mu.Unlock()

  f.sent = append(f.sent, text)
  return nil
}

func (f *FakeBackend) Close() error {
  f.closed += 1
  return nil
}

func (f *FakeBackend) Sent() []string {
  f.mu.Lock()
  defer f.mu.Unlock()

  return append([]string(nil), f.sent...)
}

type recorder struct {
  mu sync.Mutex
  events []string
}

func (r *recorder) options() []transport.Option {
  rec := func(e transport.Event) {
    r.mu.Lock()
    defer r.mu.Unlock()

    if e.Kind == transport.EventMessage {
      r.events = append(r.events, fmt.Sprintf("%v(%s)", e.Kind, e.Payload))
    } else {
      r.events = append(r.events, e.Kind.String())
    }
  }

  return []transport.Option{
    transport.WithListener(transport.EventConnected, rec),
    transport.WithListener(transport.EventMessage, rec),
    transport.WithListener(transport.EventClose, rec),
  }
}

func (r *recorder) get() []string {
  r.mu.Lock()
  defer r.mu.Unlock()

  return append([]string(nil), r.events...)
}

func newFakeWrapper(t *testing.T, fb *FakeBackend, opts ...transport.Option) *transport.Wrapper {
  t.Helper()

  reg := transport.NewRegistry()
  reg.Register(kindFake, func(cfg transport.Config) (transport.Backend, error) {
    return fb, nil
  })

  w, err := transport.New(transport.Config{
    Host: "bridge.local",
    Port: 8080,
    Registry: reg,
  }, opts...)

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  return w
}

func TestNew_NoBackendAvailable(t *testing.T) {
  w, err := transport.New(transport.Config{
    Host: "bridge.local",
    Port: 8080,
    Registry: transport.NewRegistry(),
  })

  if !errors.Is(err, transport.ErrUnsupportedTransport) {
    t.Fatalf("New() with empty registry: got error %v, wanted %v", err, transport.ErrUnsupportedTransport)
  }

  if w != nil {
    t.Fatalf("New() with empty registry returned a wrapper: %v", w)
  }
}

func TestNew_UnknownExplicitBackend(t *testing.T) {
  reg := transport.NewRegistry()
  reg.Register(transport.KindRaw, func(transport.Config) (transport.Backend, error) {
    return &FakeBackend{}, nil
  })

  _, err := transport.New(transport.Config{Backend: transport.KindSession, Registry: reg})

  if !errors.Is(err, transport.ErrUnsupportedTransport) {
    t.Fatalf("New(KindSession) without session backend: got %v, wanted %v", err, transport.ErrUnsupportedTransport)
  }
}

func TestNew_DefaultsProtocol(t *testing.T) {
  w := newFakeWrapper(t, &FakeBackend{})

  if got := w.Protocol(); got != transport.DefaultProtocol {
    t.Fatalf("Protocol(): got %q, wanted %q", got, transport.DefaultProtocol)
  }

  if got := w.Backend(); got != kindFake {
    t.Fatalf("Backend(): got %q, wanted %q", got, kindFake)
  }
}

func TestNew_WiringErrorIsSwallowed(t *testing.T) {
  for _, fb := range []*FakeBackend{
    {connectErr: errors.New("no route to bridge")},
    {connectPanic: true},
  } {
    var rec recorder
    w := newFakeWrapper(t, fb, rec.options()...)

    if got := w.State(); got != transport.StateConnecting {
      t.Fatalf("State() after wiring failure: got %v, wanted %v", got, transport.StateConnecting)
    }

    if got := rec.get(); len(got) != 0 {
      t.Fatalf("events after wiring failure: got %v, wanted none", got)
    }
  }
}

func TestWrapper_EventOrdering(t *testing.T) {
  var rec recorder
  fb := &FakeBackend{}
  w := newFakeWrapper(t, fb, rec.options()...)

  // messages before the connection opens are dropped
  fb.handler.OnMessage([]byte("early"))

  fb.handler.OnOpen()

  if got := w.State(); got != transport.StateOpen {
    t.Fatalf("State() after OnOpen: got %v, wanted %v", got, transport.StateOpen)
  }

  fb.handler.OnOpen()
  fb.handler.OnMessage([]byte("one"))
  fb.handler.OnMessage([]byte("two"))
  fb.handler.OnClose()

  // nothing after close
  fb.handler.OnOpen()
  fb.handler.OnMessage([]byte("late"))
  fb.handler.OnClose()

  want := []string{"Connected", "Message(one)", "Message(two)", "Close"}

  if got := rec.get(); !reflect.DeepEqual(got, want) {
    t.Fatalf("events: got %v, wanted %v", got, want)
  }

  if got := w.State(); got != transport.StateClosed {
    t.Fatalf("State() after OnClose: got %v, wanted %v", got, transport.StateClosed)
  }
}

func TestWrapper_SendOnlyWhenOpen(t *testing.T) {
  fb := &FakeBackend{}
  w := newFakeWrapper(t, fb)

  if err := w.SendString("too early"); err != nil {
    t.Fatalf("SendString() while connecting: got error %v", err)
  }

  fb.handler.OnOpen()

  if err := w.Send("text"); err != nil {
    t.Fatalf("Send(string) got error: %v", err)
  }

  if err := w.Send(transport.StateOpen); err != nil {
    t.Fatalf("Send(Stringer) got error: %v", err)
  }

  if err := w.Send(42); err != nil {
    t.Fatalf("Send(int) got error: %v", err)
  }

  if err := w.Send([]byte{0x01}); !errors.Is(err, transport.ErrBinaryUnsupported) {
    t.Fatalf("Send([]byte): got %v, wanted %v", err, transport.ErrBinaryUnsupported)
  }

  fb.handler.OnClose()

  if err := w.SendString("too late"); err != nil {
    t.Fatalf("SendString() after close: got error %v", err)
  }

  want := []string{"text", "Open", "42"}

  if got := fb.Sent(); !reflect.DeepEqual(got, want) {
    t.Fatalf("sent: got %q, wanted %q", got, want)
  }
}

func TestWrapper_CloseBeforeOpen(t *testing.T) {
  var rec recorder
  fb := &FakeBackend{}
  w := newFakeWrapper(t, fb, rec.options()...)

  if err := w.Close(); err != nil {
    t.Fatalf("Close() got error: %v", err)
  }

  if got := w.State(); got != transport.StateClosing {
    t.Fatalf("State() after Close(): got %v, wanted %v", got, transport.StateClosing)
  }

  // the backend reports the interrupted handshake
  fb.handler.OnError(errors.New("context canceled"))
  fb.handler.OnOpen()

  if got := w.State(); got != transport.StateClosed {
    t.Fatalf("State() after interrupted handshake: got %v, wanted %v", got, transport.StateClosed)
  }

  if got := rec.get(); len(got) != 0 {
    t.Fatalf("events: got %v, wanted none", got)
  }

  // closing twice only closes the backend once
  w.Close()

  if fb.closed != 1 {
    t.Fatalf("backend closed %d times, wanted 1", fb.closed)
  }
}

func TestRegistry_ProbePrefersSession(t *testing.T) {
  got, err := transport.DefaultRegistry.Probe()

  if err != nil {
    t.Fatalf("Probe() got error: %v", err)
  }

  if got != transport.KindSession {
    t.Fatalf("Probe(): got %q, wanted %q", got, transport.KindSession)
  }

  reg := transport.NewRegistry()
  reg.Register(transport.KindRaw, func(transport.Config) (transport.Backend, error) { return nil, nil })

  if got, _ := reg.Probe(); got != transport.KindRaw {
    t.Fatalf("Probe() with raw only: got %q, wanted %q", got, transport.KindRaw)
  }

  reg.Unregister(transport.KindRaw)

  if _, err := reg.Probe(); !errors.Is(err, transport.ErrUnsupportedTransport) {
    t.Fatalf("Probe() on empty registry: got %v, wanted %v", err, transport.ErrUnsupportedTransport)
  }
}

func TestKind_Set(t *testing.T) {
  var k transport.Kind

  if err := k.Set(""); err != nil || k != transport.KindAuto {
    t.Fatalf("Set(\"\"): got %q (err %v), wanted %q", k, err, transport.KindAuto)
  }

  if err := k.Set("raw"); err != nil || k != transport.KindRaw {
    t.Fatalf("Set(\"raw\"): got %q (err %v), wanted %q", k, err, transport.KindRaw)
  }

  if err := k.Set("carrier-pigeon"); err == nil {
    t.Fatalf("Set(\"carrier-pigeon\") succeeded, wanted error")
  }
}
