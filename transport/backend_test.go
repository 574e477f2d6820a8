package transport_test

import (
  "net"
  "net/http"
  "net/http/httptest"
  "reflect"
  "strconv"
  "strings"
  "testing"
  "time"

  "github.com/coder/websocket"
  gorilla_ws "github.com/gorilla/websocket"
  "github.com/robertof/go-gyro-exporter/transport"
)

const testTimeout = 5 * time.Second

func splitServerAddr(t *testing.T, srv *httptest.Server) (string, int) {
  t.Helper()

  host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))

  if err != nil {
    t.Fatalf("cannot split test server address %q: %v", srv.URL, err)
  }

  port, err := strconv.Atoi(portStr)

  if err != nil {
    t.Fatalf("cannot parse test server port %q: %v", portStr, err)
  }

  return host, port
}

// connects to srv with the given backend, sends "from-client" once connected and collects
// events until Close.
func runAgainstServer(t *testing.T, srv *httptest.Server, kind transport.Kind) []string {
  t.Helper()

  host, port := splitServerAddr(t, srv)

  var rec recorder
  connected := make(chan struct{})
  closed := make(chan struct{})

  opts := append(rec.options(),
    transport.WithListener(transport.EventConnected, func(transport.Event) {
      close(connected)
    }),
    transport.WithListener(transport.EventClose, func(transport.Event) {
      close(closed)
    }),
  )

  w, err := transport.New(transport.Config{Host: host, Port: port, Backend: kind}, opts...)

  if err != nil {
    t.Fatalf("New(%v) got error: %v", kind, err)
  }

  select {
  case <-connected:
  case <-time.After(testTimeout):
    t.Fatalf("no Connected event after %v (state %v)", testTimeout, w.State())
  }

  if err := w.SendString("from-client"); err != nil {
    t.Fatalf("SendString() got error: %v", err)
  }

  select {
  case <-closed:
  case <-time.After(testTimeout):
    t.Fatalf("no Close event after %v (state %v, events %v)", testTimeout, w.State(), rec.get())
  }

  if got := w.State(); got != transport.StateClosed {
    t.Fatalf("State() after Close event: got %v, wanted %v", got, transport.StateClosed)
  }

  return rec.get()
}

func TestRawBackend(t *testing.T) {
  received := make(chan string, 1)
  upgrader := gorilla_ws.Upgrader{}

  mux := http.NewServeMux()
  mux.HandleFunc("/websocket", func(rw http.ResponseWriter, r *http.Request) {
    c, err := upgrader.Upgrade(rw, r, nil)

    if err != nil {
      t.Errorf("Upgrade() got error: %v", err)
      return
    }

    defer c.Close()

    c.WriteMessage(gorilla_ws.TextMessage, []byte("hello"))
    c.WriteMessage(gorilla_ws.BinaryMessage, []byte{0x1d, 0x00})

    _, data, err := c.ReadMessage()

    if err != nil {
      t.Errorf("ReadMessage() got error: %v", err)
      return
    }

    received <- string(data)

    c.WriteMessage(gorilla_ws.CloseMessage,
      gorilla_ws.FormatCloseMessage(gorilla_ws.CloseNormalClosure, ""))
    c.ReadMessage()
  })

  srv := httptest.NewServer(mux)
  defer srv.Close()

  got := runAgainstServer(t, srv, transport.KindRaw)
  want := []string{"Connected", "Message(hello)", "Message(\x1d\x00)", "Close"}

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("raw backend events: got %q, wanted %q", got, want)
  }

  select {
  case msg := <-received:
    if msg != "from-client" {
      t.Fatalf("server received %q, wanted %q", msg, "from-client")
    }
  default:
    t.Fatalf("server never received the client message")
  }
}

func TestSessionBackend(t *testing.T) {
  received := make(chan string, 1)

  srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
    c, err := websocket.Accept(rw, r, nil)

    if err != nil {
      t.Errorf("Accept() got error: %v", err)
      return
    }

    ctx := r.Context()

    c.Write(ctx, websocket.MessageText, []byte("hello"))
    c.Write(ctx, websocket.MessageBinary, []byte(`{"data":"wrapped"}`))
    c.Write(ctx, websocket.MessageBinary, []byte(`not an envelope`))
    c.Write(ctx, websocket.MessageBinary, []byte(`{"data":[29,0,10]}`))

    _, data, err := c.Read(ctx)

    if err != nil {
      t.Errorf("Read() got error: %v", err)
      return
    }

    received <- string(data)

    c.Close(websocket.StatusNormalClosure, "bye")
  }))
  defer srv.Close()

  got := runAgainstServer(t, srv, transport.KindSession)
  want := []string{"Connected", "Message(hello)", "Message(wrapped)", "Message([29,0,10])", "Close"}

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("session backend events: got %q, wanted %q", got, want)
  }

  select {
  case msg := <-received:
    if msg != "from-client" {
      t.Fatalf("server received %q, wanted %q", msg, "from-client")
    }
  default:
    t.Fatalf("server never received the client message")
  }
}

func TestRawBackend_UnreachableStaysConnecting(t *testing.T) {
  srv := httptest.NewServer(http.NotFoundHandler())
  host, port := splitServerAddr(t, srv)
  srv.Close()

  var rec recorder
  w, err := transport.New(transport.Config{Host: host, Port: port, Backend: transport.KindRaw}, rec.options()...)

  if err != nil {
    t.Fatalf("New() got error: %v", err)
  }

  time.Sleep(100 * time.Millisecond)

  if got := w.State(); got != transport.StateConnecting {
    t.Fatalf("State() with unreachable bridge: got %v, wanted %v", got, transport.StateConnecting)
  }

  if got := rec.get(); len(got) != 0 {
    t.Fatalf("events with unreachable bridge: got %v, wanted none", got)
  }
}
