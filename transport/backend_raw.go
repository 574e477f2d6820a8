package transport

import (
  "context"
  "errors"
  "fmt"
  "sync"
  "time"

  "github.com/gorilla/websocket"
  "github.com/rs/zerolog/log"
)

const rawPath = "/websocket"

// rawBackend is a plain WebSocket on a fixed sub-path. Frames are delivered as they are
// received, text or binary.
type rawBackend struct {
  url string
  dialer *websocket.Dialer

  ctx context.Context
  cancel context.CancelFunc

  // guards conn and serializes writes.
  mu sync.Mutex
  conn *websocket.Conn
  started bool
}

func newRawBackend(cfg Config) (Backend, error) {
  ctx, cancel := context.WithCancel(context.Background())

  dialer := *websocket.DefaultDialer

  // the label is only negotiated when explicitly configured.
  if cfg.Protocol != DefaultProtocol {
    dialer.Subprotocols = []string{cfg.Protocol}
  }

  return &rawBackend{
    url: "ws://" + cfg.addr() + rawPath,
    dialer: &dialer,
    ctx: ctx,
    cancel: cancel,
  }, nil
}

func (b *rawBackend) Connect(h Handler) error {
  b.mu.Lock()
  defer b.mu.Unlock()

  if b.started {
    return errors.New("raw: already started")
  }

  b.started = true

  go b.run(h)

  return nil
}

func (b *rawBackend) run(h Handler) {
  conn, _, err := b.dialer.DialContext(b.ctx, b.url, nil)

  if err != nil {
    h.OnError(fmt.Errorf("raw: failed to dial %v: %w", b.url, err))
    return
  }

  b.mu.Lock()
  b.conn = conn
  b.mu.Unlock()

  if err := b.ctx.Err(); err != nil {
    conn.Close()
    h.OnError(err)
    return
  }

  h.OnOpen()

  for {
    _, data, err := conn.ReadMessage()

    if err != nil {
      log.Debug().Err(err).Str("URL", b.url).Msg("transport/raw: socket closed")
      break
    }

    h.OnMessage(data)
  }

  b.cancel()
  conn.Close()

  h.OnClose()
}

func (b *rawBackend) Send(text string) error {
  b.mu.Lock()
  defer b.mu.Unlock()

  if b.conn == nil {
    return errors.New("raw: not connected")
  }

  return b.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (b *rawBackend) Close() error {
  b.cancel()

  b.mu.Lock()
  conn := b.conn
  b.mu.Unlock()

  if conn == nil {
    return nil
  }

  // best effort: the peer may already be gone.
  _ = conn.WriteControl(
    websocket.CloseMessage,
    websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
    time.Now().Add(time.Second),
  )

  return conn.Close()
}
