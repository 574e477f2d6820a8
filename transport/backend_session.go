package transport

import (
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "sync"
  "time"

  "github.com/coder/websocket"
  "github.com/rs/zerolog/log"
)

type SessionOptions struct {
  // Always forced to false: a torn down session is never re-established.
  Reconnection bool
  // Interval between heartbeats. A failed heartbeat tears the session down. Zero disables
  // heartbeats.
  PingInterval time.Duration
}

// sessionBackend keeps a managed WebSocket session on the root path of the bridge.
// Binary frames are envelopes whose `data` member is the actual payload.
type sessionBackend struct {
  url string
  protocol string
  opts SessionOptions

  ctx context.Context
  cancel context.CancelFunc

  mu sync.Mutex
  conn *websocket.Conn
  started bool
}

type sessionEnvelope struct {
  Data json.RawMessage `json:"data"`
}

func newSessionBackend(cfg Config) (Backend, error) {
  ctx, cancel := context.WithCancel(context.Background())

  return &sessionBackend{
    url: "ws://" + cfg.addr() + "/",
    protocol: cfg.Protocol,
    opts: cfg.Session,
    ctx: ctx,
    cancel: cancel,
  }, nil
}

func (b *sessionBackend) Connect(h Handler) error {
  b.mu.Lock()
  defer b.mu.Unlock()

  if b.started {
    return errors.New("session: already started and reconnection is disabled")
  }

  b.started = true

  go b.run(h)

  return nil
}

func (b *sessionBackend) run(h Handler) {
  conn, _, err := websocket.Dial(b.ctx, b.url, &websocket.DialOptions{
    Subprotocols: []string{b.protocol},
  })

  if err != nil {
    h.OnError(fmt.Errorf("session: failed to dial %v: %w", b.url, err))
    return
  }

  b.mu.Lock()
  b.conn = conn
  b.mu.Unlock()

  if err := b.ctx.Err(); err != nil {
    go conn.Close(websocket.StatusNormalClosure, "")
    h.OnError(err)
    return
  }

  h.OnOpen()

  if b.opts.PingInterval > 0 {
    go b.heartbeat(conn)
  }

  for {
    typ, data, err := conn.Read(b.ctx)

    if err != nil {
      log.Debug().Err(err).Str("URL", b.url).Msg("transport/session: session torn down")
      break
    }

    switch typ {
    case websocket.MessageText:
      h.OnMessage(data)
    case websocket.MessageBinary:
      payload, err := decodeSessionEnvelope(data)

      if err != nil {
        log.Warn().Err(err).Hex("Frame", data).Msg("transport/session: dropping invalid binary frame")
        continue
      }

      h.OnMessage(payload)
    }
  }

  b.cancel()
  go conn.Close(websocket.StatusNormalClosure, "")

  h.OnClose()
}

func (b *sessionBackend) heartbeat(conn *websocket.Conn) {
  ticker := time.NewTicker(b.opts.PingInterval)
  defer ticker.Stop()

  for {
    select {
    case <-b.ctx.Done():
      return
    case <-ticker.C:
    }

    ctx, cancel := context.WithTimeout(b.ctx, b.opts.PingInterval)
    err := conn.Ping(ctx)
    cancel()

    if err != nil {
      log.Warn().Err(err).Str("URL", b.url).Msg("transport/session: heartbeat failed, tearing session down")
      b.cancel()
      return
    }
  }
}

func (b *sessionBackend) Send(text string) error {
  b.mu.Lock()
  conn := b.conn
  b.mu.Unlock()

  if conn == nil {
    return errors.New("session: not established")
  }

  return conn.Write(b.ctx, websocket.MessageText, []byte(text))
}

func (b *sessionBackend) Close() error {
  b.cancel()

  b.mu.Lock()
  conn := b.conn
  b.mu.Unlock()

  if conn != nil {
    go conn.Close(websocket.StatusNormalClosure, "")
  }

  return nil
}

func decodeSessionEnvelope(frame []byte) ([]byte, error) {
  var env sessionEnvelope

  if err := json.Unmarshal(frame, &env); err != nil {
    return nil, fmt.Errorf("session: invalid envelope: %w", err)
  }

  if len(env.Data) == 0 || string(env.Data) == "null" {
    return nil, errors.New("session: envelope has no data")
  }

  // string payloads are delivered unquoted, anything else as raw JSON.
  var s string

  if err := json.Unmarshal(env.Data, &s); err == nil {
    return []byte(s), nil
  }

  return []byte(env.Data), nil
}
