// Package bridge implements device.CommandChannel on top of a transport, encoding every
// command and response frame as one JSON text message.
package bridge

import (
  "encoding/json"
  "fmt"
  "sort"
  "strconv"
  "sync"

  "github.com/pkg/errors"
  "github.com/robertof/go-gyro-exporter/device"
  "github.com/robertof/go-gyro-exporter/event"
  "github.com/robertof/go-gyro-exporter/transport"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
)

var ErrInvalidMessage = errors.New("invalid bridge message")

// Transport is the part of transport.Wrapper used by the bridge.
type Transport interface {
  SendString(message string) error
  On(kind transport.EventKind, fn func(transport.Event)) event.Subscription
}

type wireCommand struct {
  Mode string `json:"mode"`
  Address uint8 `json:"address"`
  Register uint8 `json:"register"`
  Data []int `json:"data,omitempty"`
  Count int `json:"count,omitempty"`
}

type wireFrame struct {
  Address *int `json:"address"`
  Register *int `json:"register"`
  Data []int `json:"data"`
}

var wireModes = map[device.Mode]string{
  device.ModeWrite: "write",
  device.ModeRead: "read",
  device.ModeReadContinuous: "read_continuous",
  device.ModeStopReading: "stop_reading",
}

type Bridge struct {
  t Transport

  mu sync.RWMutex
  handlers map[uint8]device.FrameHandler
}

var _ device.CommandChannel = (*Bridge)(nil)

func New(t Transport) *Bridge {
  b := &Bridge{
    t: t,
    handlers: make(map[uint8]device.FrameHandler),
  }

  t.On(transport.EventMessage, func(e transport.Event) {
    b.HandleMessage(e.Payload)
  })

  return b
}

func EncodeCommand(cmd device.Command) ([]byte, error) {
  mode, ok := wireModes[cmd.Mode]

  if !ok {
    return nil, fmt.Errorf("bridge: unknown command mode %v", cmd.Mode)
  }

  wc := wireCommand{
    Mode: mode,
    Address: cmd.Address,
    Register: cmd.Register,
    Count: cmd.ByteCount,
  }

  for _, b := range cmd.Data {
    wc.Data = append(wc.Data, int(b))
  }

  return json.Marshal(wc)
}

func DecodeFrame(payload []byte) (f device.ResponseFrame, err error) {
  var wf wireFrame

  if err := json.Unmarshal(payload, &wf); err != nil {
    return f, errors.Wrap(ErrInvalidMessage, err.Error())
  }

  if wf.Address == nil || wf.Register == nil {
    return f, errors.Wrap(ErrInvalidMessage, "missing address or register")
  }

  addr, err := toByte(*wf.Address)

  if err != nil {
    return f, errors.Wrap(err, "address")
  }

  reg, err := toByte(*wf.Register)

  if err != nil {
    return f, errors.Wrap(err, "register")
  }

  f.Address, f.Register = addr, reg
  f.Data = make([]byte, len(wf.Data))

  for i, v := range wf.Data {
    if f.Data[i], err = toByte(v); err != nil {
      return f, errors.Wrapf(err, "data[%d]", i)
    }
  }

  return f, nil
}

func toByte(v int) (byte, error) {
  if v < 0 || v > 0xff {
    return 0, errors.Wrapf(ErrInvalidMessage, "value %d does not fit in a byte", v)
  }

  return byte(v), nil
}

func (b *Bridge) Send(cmd device.Command) error {
  msg, err := EncodeCommand(cmd)

  if err != nil {
    return err
  }

  if err := b.t.SendString(string(msg)); err != nil {
    return errors.Wrapf(err, "bridge: failed to send %v", cmd)
  }

  return nil
}

func (b *Bridge) Handle(address uint8, h device.FrameHandler) {
  b.mu.Lock()
  defer b.mu.Unlock()

  if h == nil {
    delete(b.handlers, address)
    return
  }

  b.handlers[address] = h
}

// Addresses returns the addresses that currently have a handler, sorted.
func (b *Bridge) Addresses() []uint8 {
  b.mu.RLock()
  addrs := maps.Keys(b.handlers)
  b.mu.RUnlock()

  sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

  return addrs
}

// HandleMessage routes one inbound message. Anything that is not a frame for a known
// device is logged and dropped.
func (b *Bridge) HandleMessage(payload []byte) {
  f, err := DecodeFrame(payload)

  if err != nil {
    log.Warn().Err(err).Bytes("Payload", payload).Msg("bridge: dropping undecodable message")
    return
  }

  b.mu.RLock()
  h := b.handlers[f.Address]
  b.mu.RUnlock()

  if h == nil {
    known := make([]string, 0)

    for _, addr := range b.Addresses() {
      known = append(known, "0x" + strconv.FormatUint(uint64(addr), 16))
    }

    log.Debug().
      Str("Addr", fmt.Sprintf("0x%02x", f.Address)).
      Strs("KnownAddrs", known).
      Msg("bridge: dropping frame for unknown device")
    return
  }

  h(f)
}
