// Package transport normalizes the WebSocket backends the bridge can be reached through
// into a single connection lifecycle and message contract.
package transport

import (
  "errors"
  "fmt"
  "strconv"
  "sync"

  "github.com/robertof/go-gyro-exporter/event"
  "github.com/rs/zerolog/log"
)

const DefaultProtocol = "default-protocol"

var (
  // No backend can be built. Returned by New(), no Wrapper is produced.
  ErrUnsupportedTransport = errors.New("transport: no compatible socket backend")
  // A backend failed while being wired up. Logged, never returned by New().
  ErrBackendWiring = errors.New("transport: backend wiring failed")
  // Binary payloads cannot be sent through a Wrapper.
  ErrBinaryUnsupported = errors.New("transport: binary payloads are not supported")
)

type Config struct {
  Host string
  Port int
  // Protocol label, defaults to DefaultProtocol.
  Protocol string
  // Backend to use. Defaults to KindAuto.
  Backend Kind
  Session SessionOptions
  // Registry to pick backends from. Defaults to DefaultRegistry.
  Registry *Registry
}

func (c Config) withDefaults() Config {
  if c.Protocol == "" {
    c.Protocol = DefaultProtocol
  }

  if c.Backend == "" {
    c.Backend = KindAuto
  }

  if c.Registry == nil {
    c.Registry = DefaultRegistry
  }

  // the session is never re-established once torn down.
  c.Session.Reconnection = false

  return c
}

func (c Config) addr() string {
  return c.Host + ":" + strconv.Itoa(c.Port)
}

// Backend is any socket implementation able to connect, send text and report inbound
// messages and teardown through a Handler.
type Backend interface {
  // Connect starts connecting and returns without waiting for the connection to open.
  Connect(h Handler) error
  Send(text string) error
  Close() error
}

// Handler receives backend callbacks. Backends must call OnOpen before any OnMessage and
// must not call anything after OnClose.
type Handler interface {
  OnOpen()
  OnMessage(payload []byte)
  OnClose()
  // OnError reports asynchronous failures that leave the backend unable to progress.
  OnError(err error)
}

type EventKind uint8

const (
  EventConnected EventKind = iota
  EventMessage
  EventClose
)

func (k EventKind) String() string {
  switch k {
  case EventConnected:
    return "Connected"
  case EventMessage:
    return "Message"
  case EventClose:
    return "Close"
  default:
    panic("unknown transport event kind: " + strconv.Itoa(int(k)))
  }
}

type Event struct {
  Kind EventKind
  // Only set for EventMessage.
  Payload []byte
}

type Option func(w *Wrapper)

// WithListener registers fn before the backend starts connecting, so that no event can be
// missed.
func WithListener(kind EventKind, fn func(Event)) Option {
  return func(w *Wrapper) {
    w.events.On(kind, fn)
  }
}

// Wrapper owns exactly one backend, chosen at construction time.
//
// It emits at most one EventConnected, then any number of EventMessage, then at most one
// EventClose. Nothing is emitted after EventClose.
type Wrapper struct {
  cfg Config
  kind Kind
  backend Backend
  events *event.Emitter[EventKind, Event]

  // serializes backend callbacks, and thus event emission.
  dispatchMu sync.Mutex

  mu sync.Mutex
  state State
  connected bool
  closed bool
}

func New(cfg Config, opts ...Option) (*Wrapper, error) {
  cfg = cfg.withDefaults()

  kind, backend, err := cfg.Registry.build(cfg.Backend, cfg)

  if err != nil {
    return nil, err
  }

  w := &Wrapper{
    cfg: cfg,
    kind: kind,
    backend: backend,
    events: event.NewEmitter[EventKind, Event]("transport"),
    state: StateConnecting,
  }

  for _, opt := range opts {
    opt(w)
  }

  log.Debug().
    Str("Addr", cfg.addr()).
    Str("Protocol", cfg.Protocol).
    Str("Backend", string(kind)).
    Msg("transport: connecting")

  if err := w.wire(); err != nil {
    log.Error().
      Err(fmt.Errorf("%w: %v", ErrBackendWiring, err)).
      Str("Backend", string(kind)).
      Msg("transport: failed to wire backend, connection will not progress")
  }

  return w, nil
}

func (w *Wrapper) wire() (err error) {
  defer func() {
    if r := recover(); r != nil {
      err = fmt.Errorf("panic: %v", r)
    }
  }()

  return w.backend.Connect(handler{w})
}

func (w *Wrapper) On(kind EventKind, fn func(Event)) event.Subscription {
  return w.events.On(kind, fn)
}

func (w *Wrapper) Off(sub event.Subscription) {
  w.events.Off(sub)
}

func (w *Wrapper) State() State {
  w.mu.Lock()
  defer w.mu.Unlock()

  return w.state
}

func (w *Wrapper) Backend() Kind {
  return w.kind
}

func (w *Wrapper) Host() string {
  return w.cfg.Host
}

func (w *Wrapper) Port() int {
  return w.cfg.Port
}

func (w *Wrapper) Protocol() string {
  return w.cfg.Protocol
}

func (w *Wrapper) String() string {
  return fmt.Sprintf("transport[backend=%v, addr=%v, state=%v]", w.kind, w.cfg.addr(), w.State())
}

// Send sends the textual form of message. Only text is supported: []byte payloads are
// rejected with ErrBinaryUnsupported rather than being converted.
func (w *Wrapper) Send(message any) error {
  switch m := message.(type) {
  case []byte:
    return ErrBinaryUnsupported
  case string:
    return w.SendString(m)
  case fmt.Stringer:
    return w.SendString(m.String())
  default:
    return w.SendString(fmt.Sprint(m))
  }
}

// SendString forwards message unmodified. It does nothing unless the wrapper is open.
func (w *Wrapper) SendString(message string) error {
  if w.State() != StateOpen {
    log.Trace().Stringer("Transport", w).Msg("transport: dropping outbound message, not open")
    return nil
  }

  if err := w.backend.Send(message); err != nil {
    return fmt.Errorf("transport: send failed: %w", err)
  }

  return nil
}

// Close tears the backend down. EventClose follows once the backend reports the teardown,
// provided the connection was ever established.
func (w *Wrapper) Close() error {
  w.mu.Lock()

  if w.state == StateClosed || w.state == StateClosing {
    w.mu.Unlock()
    return nil
  }

  w.state = StateClosing
  w.mu.Unlock()

  return w.backend.Close()
}

type handler struct {
  w *Wrapper
}

func (h handler) OnOpen() {
  w := h.w

  w.dispatchMu.Lock()
  defer w.dispatchMu.Unlock()

  w.mu.Lock()

  if w.connected || w.closed {
    w.mu.Unlock()
    return
  }

  w.connected = true

  // a Close() racing with the handshake wins.
  if w.state == StateConnecting {
    w.state = StateOpen
  }

  w.mu.Unlock()

  connectionsCounter.WithLabelValues(string(w.kind)).Inc()
  log.Debug().Stringer("Transport", w).Msg("transport: connected")

  w.events.Emit(EventConnected, Event{Kind: EventConnected})
}

func (h handler) OnMessage(payload []byte) {
  w := h.w

  w.dispatchMu.Lock()
  defer w.dispatchMu.Unlock()

  w.mu.Lock()
  deliver := w.connected && !w.closed
  w.mu.Unlock()

  if !deliver {
    droppedMessagesCounter.WithLabelValues(string(w.kind)).Inc()
    log.Trace().Stringer("Transport", w).Msg("transport: dropping message outside of connection")
    return
  }

  messagesCounter.WithLabelValues(string(w.kind)).Inc()

  w.events.Emit(EventMessage, Event{Kind: EventMessage, Payload: payload})
}

func (h handler) OnClose() {
  w := h.w

  w.dispatchMu.Lock()
  defer w.dispatchMu.Unlock()

  w.mu.Lock()
  w.state = StateClosed

  if w.closed || !w.connected {
    w.closed = true
    w.mu.Unlock()
    return
  }

  w.closed = true
  w.mu.Unlock()

  closesCounter.WithLabelValues(string(w.kind)).Inc()
  log.Debug().Stringer("Transport", w).Msg("transport: closed")

  w.events.Emit(EventClose, Event{Kind: EventClose})
}

func (h handler) OnError(err error) {
  w := h.w

  w.mu.Lock()

  // an explicit Close() interrupting the handshake.
  if w.state == StateClosing && !w.connected {
    w.state = StateClosed
    w.closed = true
    w.mu.Unlock()

    log.Debug().Err(err).Stringer("Transport", w).Msg("transport: closed before connecting")
    return
  }

  w.mu.Unlock()

  log.Error().
    Err(fmt.Errorf("%w: %v", ErrBackendWiring, err)).
    Stringer("Transport", w).
    Msg("transport: backend failed, connection will not progress")
}
