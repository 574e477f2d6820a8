// Package itg3200 drives an InvenSense ITG-3200 3-axis MEMS gyroscope attached to the
// bridge's I2C bus.
package itg3200

import (
  "context"
  "fmt"
  "strconv"
  "sync"
  "time"

  "github.com/pkg/errors"
  "github.com/robertof/go-gyro-exporter/device"
  "github.com/robertof/go-gyro-exporter/event"
  "github.com/rs/zerolog/log"
)

const (
  // 0x69 if pin 9 is tied to VCC, 0x68 if tied to GND.
  DefaultAddress uint8 = 0x69
  // Power-up settling time after configuration.
  StartupDelay = 70 * time.Millisecond
  // LSB per degree/second.
  Sensitivity = 14.375
)

const (
  regSampleRateDiv = 0x15
  regDLPFFullScale = 0x16
  regIntConfig = 0x17
  regGyroXOut = 0x1d
  regPowerMgmt = 0x3e

  // X, Y and Z output registers, two bytes each.
  numBytes = 6

  // ±2000°/s, 256Hz low pass filter, 8kHz internal sample rate.
  dlpfFullScale2000 = 0x18
  // raw data ready and ITG ready interrupts.
  intConfigDataReady = 0x05
  // internal oscillator.
  powerMgmtInternalOsc = 0x00
)

type State uint8

const (
  StateUninitialized State = iota
  StateAwaitingStartup
  StateReady
  StateReading
  StateStopped
)

func (s State) String() string {
  switch s {
  case StateUninitialized:
    return "Uninitialized"
  case StateAwaitingStartup:
    return "AwaitingStartup"
  case StateReady:
    return "Ready"
  case StateReading:
    return "Reading"
  case StateStopped:
    return "Stopped"
  default:
    panic("unknown itg3200 state: " + strconv.Itoa(int(s)))
  }
}

type EventKind uint8

const (
  // Emitted once, when the startup delay has elapsed.
  EventGyroReady EventKind = iota
  // Emitted after every decoded frame.
  EventChange
)

func (k EventKind) String() string {
  switch k {
  case EventGyroReady:
    return "GyroReady"
  case EventChange:
    return "Change"
  default:
    panic("unknown itg3200 event kind: " + strconv.Itoa(int(k)))
  }
}

type Event struct {
  Kind EventKind
}

type Options struct {
  Name string
  // Defaults to DefaultAddress.
  Address uint8
  // Do not enter continuous read mode once the gyro is ready.
  ManualStart bool
  // Defaults to device.SystemScheduler.
  Scheduler device.Scheduler
}

type Gyro struct {
  name string
  address uint8
  autoStart bool
  ch device.CommandChannel
  scheduler device.Scheduler
  events *event.Emitter[EventKind, Event]

  // serializes commands. Never held by frame handling, so a channel may answer from
  // within Send().
  cmdMu sync.Mutex

  mu sync.Mutex
  state State
  // the startup delay has elapsed. Independent of the read mode.
  ready bool
  closed bool
  hasReading bool
  rawX, rawY, rawZ int16
  calibration Calibration
  cancelStartup device.Cancel
}

var _ device.Device = (*Gyro)(nil)

// New configures the gyro right away and schedules the end of its startup delay.
func New(ch device.CommandChannel, opts Options) *Gyro {
  if opts.Address == 0 {
    opts.Address = DefaultAddress
  }

  if opts.Scheduler == nil {
    opts.Scheduler = device.SystemScheduler{}
  }

  if opts.Name == "" {
    opts.Name = fmt.Sprintf("itg3200-%02x", opts.Address)
  }

  g := &Gyro{
    name: opts.Name,
    address: opts.Address,
    autoStart: !opts.ManualStart,
    ch: ch,
    scheduler: opts.Scheduler,
    events: event.NewEmitter[EventKind, Event]("itg3200"),
    calibration: DefaultCalibration(),
  }

  ch.Handle(g.address, g.handleFrame)

  g.init()

  return g
}

func (g *Gyro) init() {
  g.cmdMu.Lock()

  g.send(device.WriteCommand(g.address, regSampleRateDiv, 0x00))
  g.send(device.WriteCommand(g.address, regDLPFFullScale, dlpfFullScale2000))
  g.send(device.WriteCommand(g.address, regPowerMgmt, powerMgmtInternalOsc))
  g.send(device.WriteCommand(g.address, regIntConfig, intConfigDataReady))

  g.mu.Lock()
  g.state = StateAwaitingStartup
  g.mu.Unlock()

  g.cmdMu.Unlock()

  cancel := g.scheduler.Schedule(StartupDelay, g.onStartupElapsed)

  g.mu.Lock()
  defer g.mu.Unlock()

  if !g.ready && !g.closed {
    g.cancelStartup = cancel
  }
}

func (g *Gyro) onStartupElapsed() {
  g.mu.Lock()

  if g.ready || g.closed {
    g.mu.Unlock()
    return
  }

  g.ready = true
  g.cancelStartup = nil

  // an early StartReading() or StopReading() already picked the read mode.
  if g.state == StateAwaitingStartup {
    g.state = StateReady
  }

  g.mu.Unlock()

  log.Debug().Stringer("Device", g).Msg("itg3200: gyro ready")

  g.events.Emit(EventGyroReady, Event{Kind: EventGyroReady})

  if g.autoStart {
    if err := g.StartReading(); err != nil {
      log.Error().Err(err).Stringer("Device", g).Msg("itg3200: failed to start reading")
    }
  }
}

// must hold g.cmdMu, must not hold g.mu
func (g *Gyro) send(cmd device.Command) error {
  commandsCounter.WithLabelValues(cmd.Mode.String()).Inc()

  if err := g.ch.Send(cmd); err != nil {
    log.Warn().Err(err).Stringer("Command", cmd).Msg("itg3200: failed to send command")
    return fmt.Errorf("itg3200: failed to send %v: %w", cmd, err)
  }

  log.Trace().Stringer("Command", cmd).Msg("itg3200: sent command")

  return nil
}

func (g *Gyro) setState(s State) {
  g.mu.Lock()
  defer g.mu.Unlock()

  g.state = s
}

// StartReading enters continuous read mode. Does nothing if already reading.
func (g *Gyro) StartReading() error {
  g.cmdMu.Lock()
  defer g.cmdMu.Unlock()

  if g.State() == StateReading {
    return nil
  }

  if err := g.send(device.ReadContinuousCommand(g.address, regGyroXOut, numBytes)); err != nil {
    return err
  }

  g.setState(StateReading)

  return nil
}

// StopReading leaves continuous read mode. A stop command is sent on every call, even
// when not reading.
func (g *Gyro) StopReading() error {
  g.cmdMu.Lock()
  defer g.cmdMu.Unlock()

  return g.stopReading()
}

// must hold g.cmdMu
func (g *Gyro) stopReading() error {
  if err := g.send(device.StopReadingCommand(g.address)); err != nil {
    return err
  }

  g.setState(StateStopped)

  return nil
}

// Update requests a single reading, leaving continuous read mode first if needed.
func (g *Gyro) Update() error {
  g.cmdMu.Lock()
  defer g.cmdMu.Unlock()

  if g.State() == StateReading {
    if err := g.stopReading(); err != nil {
      return err
    }
  }

  return g.send(device.ReadCommand(g.address, regGyroXOut, numBytes))
}

// WaitReady blocks until the startup delay has elapsed.
func (g *Gyro) WaitReady(ctx context.Context) error {
  readyCh := make(chan struct{}, 1)

  sub := g.events.On(EventGyroReady, func(Event) {
    select {
    case readyCh <- struct{}{}:
    default:
    }
  })
  defer g.events.Off(sub)

  if g.Ready() {
    return nil
  }

  select {
  case <-ctx.Done():
    return fmt.Errorf("itg3200: %v not ready: %w", g, ctx.Err())
  case <-readyCh:
    return nil
  }
}

// Close cancels a pending startup and detaches the gyro from the channel.
func (g *Gyro) Close() {
  g.mu.Lock()

  if g.closed {
    g.mu.Unlock()
    return
  }

  g.closed = true

  if g.cancelStartup != nil {
    g.cancelStartup()
    g.cancelStartup = nil
  }

  reading := g.state == StateReading
  g.mu.Unlock()

  if reading {
    g.cmdMu.Lock()

    if err := g.stopReading(); err != nil {
      log.Warn().Err(err).Stringer("Device", g).Msg("itg3200: failed to stop reading on close")
    }

    g.cmdMu.Unlock()
  }

  g.ch.Handle(g.address, nil)
}

func (g *Gyro) handleFrame(f device.ResponseFrame) {
  g.mu.Lock()
  closed := g.closed
  g.mu.Unlock()

  if closed {
    return
  }

  switch f.Register {
  case regGyroXOut:
    x, y, z, err := decodeRates(f)

    if err != nil {
      framesCounter.WithLabelValues("framing_error").Inc()
      log.Warn().
        Err(err).
        Stringer("Device", g).
        Int("Len", f.Len()).
        Hex("Frame", f.Bytes()).
        Msg("itg3200: dropping malformed frame")
      return
    }

    g.mu.Lock()
    g.rawX, g.rawY, g.rawZ = x, y, z
    g.hasReading = true
    g.mu.Unlock()

    framesCounter.WithLabelValues("accepted").Inc()

    g.events.Emit(EventChange, Event{Kind: EventChange})
  default:
    framesCounter.WithLabelValues("unexpected_register").Inc()
    log.Warn().
      Err(errors.Wrapf(device.ErrUnexpectedRegister, "itg3200: got data for register 0x%02x", f.Register)).
      Stringer("Device", g).
      Hex("Frame", f.Bytes()).
      Msg("itg3200: dropping frame")
  }
}

func (g *Gyro) On(kind EventKind, fn func(Event)) event.Subscription {
  return g.events.On(kind, fn)
}

func (g *Gyro) Off(sub event.Subscription) {
  g.events.Off(sub)
}

func (g *Gyro) OnChange(fn func()) func() {
  sub := g.events.On(EventChange, func(Event) { fn() })

  return func() {
    g.events.Off(sub)
  }
}

func (g *Gyro) SetRevPolarity(x, y, z bool) {
  g.mu.Lock()
  defer g.mu.Unlock()

  g.calibration.Polarities = device.Vector{X: polarity(x), Y: polarity(y), Z: polarity(z)}
}

func (g *Gyro) SetOffsets(x, y, z float64) {
  g.mu.Lock()
  defer g.mu.Unlock()

  g.calibration.Offsets = device.Vector{X: x, Y: y, Z: z}
}

func (g *Gyro) SetGains(x, y, z float64) {
  g.mu.Lock()
  defer g.mu.Unlock()

  g.calibration.Gains = device.Vector{X: x, Y: y, Z: z}
}

func (g *Gyro) Calibration() Calibration {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.calibration
}

func (g *Gyro) Name() string {
  return g.name
}

func (g *Gyro) Address() uint8 {
  return g.address
}

func (g *Gyro) State() State {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.state
}

func (g *Gyro) Ready() bool {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.ready
}

func (g *Gyro) IsReading() bool {
  return g.State() == StateReading
}

func (g *Gyro) RawX() int16 {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.rawX
}

func (g *Gyro) RawY() int16 {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.rawY
}

func (g *Gyro) RawZ() int16 {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.rawZ
}

// X is the calibrated x axis rate in degrees per second.
func (g *Gyro) X() float64 {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.calibration.Apply(device.AxisX, g.rawX)
}

func (g *Gyro) Y() float64 {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.calibration.Apply(device.AxisY, g.rawY)
}

func (g *Gyro) Z() float64 {
  g.mu.Lock()
  defer g.mu.Unlock()

  return g.calibration.Apply(device.AxisZ, g.rawZ)
}

func (g *Gyro) Reading() (r device.Reading, err error) {
  g.mu.Lock()
  defer g.mu.Unlock()

  if !g.hasReading {
    return r, device.ErrNoReading
  }

  r.RawX, r.RawY, r.RawZ = g.rawX, g.rawY, g.rawZ
  r.Rate = device.Vector{
    X: g.calibration.Apply(device.AxisX, g.rawX),
    Y: g.calibration.Apply(device.AxisY, g.rawY),
    Z: g.calibration.Apply(device.AxisZ, g.rawZ),
  }

  return r, nil
}

func (g *Gyro) String() string {
  return fmt.Sprintf("itg3200[name=%q, addr=0x%02x]", g.name, g.address)
}
