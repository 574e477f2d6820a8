package collector

import (
  "context"
  "sync"
  "sync/atomic"
  "time"

  "github.com/robertof/go-gyro-exporter/device"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
)

// Snapshot is the outcome of the latest successful collection.
type Snapshot struct {
  Readings map[device.Device]device.Reading
  CollectedAt time.Time
}

// Recurring periodically collects readings from a fixed set of devices.
type Recurring struct {
  // If Latest() is not called for longer than IdleTimeout, the collector stops sampling
  // (and takes gyros out of continuous read mode) until it is called again.
  IdleTimeout time.Duration

  devices []device.Device

  mu sync.Mutex
  snapshot Snapshot
  lastRead time.Time
  started bool

  suspended atomic.Bool
  wakeUp chan struct{}
}

func NewRecurring(devices []device.Device) *Recurring {
  return &Recurring{
    devices: devices,
    lastRead: time.Now(),
    snapshot: Snapshot{Readings: map[device.Device]device.Reading{}},
    wakeUp: make(chan struct{}, 1),
  }
}

// Update merges r into the current snapshot. Devices missing from r keep their previous
// (stale) reading.
func (s *Recurring) Update(r map[device.Device]device.Reading) {
  s.mu.Lock()
  defer s.mu.Unlock()

  // never mutate a map handed out by Latest().
  readings := make(map[device.Device]device.Reading, len(s.devices))

  maps.Copy(readings, s.snapshot.Readings)
  maps.Copy(readings, r)

  s.snapshot = Snapshot{Readings: readings, CollectedAt: time.Now()}
}

// Latest returns the latest snapshot and wakes the collector up if it was suspended.
func (s *Recurring) Latest() Snapshot {
  if s.suspended.Load() {
    select {
    case s.wakeUp <- struct{}{}:
    default:
    }
  }

  s.mu.Lock()
  defer s.mu.Unlock()

  s.lastRead = time.Now()

  return s.snapshot
}

func (s *Recurring) idleFor() time.Duration {
  s.mu.Lock()
  defer s.mu.Unlock()

  return time.Since(s.lastRead)
}

// stopper is implemented by devices able to leave continuous read mode.
type stopper interface {
  StopReading() error
}

func (s *Recurring) stopContinuousReads() {
  for _, dev := range s.devices {
    if st, ok := dev.(stopper); ok && dev.IsReading() {
      if err := st.StopReading(); err != nil {
        log.Warn().Err(err).Stringer("Device", dev).Msg("Failed to stop continuous reading")
      }
    }
  }
}

func (s *Recurring) collect(ctx context.Context, opts CollectionOptions) {
  results, err := CollectReadingsWithOptions(ctx, s.devices, opts)
  update := make(map[device.Device]device.Reading, len(results))

  for dev, res := range results {
    if res.Error != nil {
      log.Warn().
        Stringer("Device", dev).
        Err(res.Error).
        Msg("Collection failed for device")
      continue
    }

    log.Debug().
      Stringer("Device", dev).
      Stringer("Reading", res.Reading).
      Msg("Successfully collected data from device")

    update[dev] = res.Reading
  }

  if len(update) < len(s.devices) {
    log.Warn().Err(err).Msg("Collection failed for one or more devices!")
  }

  if len(update) > 0 {
    s.Update(update)
  }
}

// Start collects every interval until ctx is canceled. Must be called only once.
func (s *Recurring) Start(ctx context.Context, interval time.Duration, opts CollectionOptions) {
  s.mu.Lock()

  if s.started {
    s.mu.Unlock()
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true
  s.mu.Unlock()

  log.Info().
    Dur("Interval", interval).
    Int("MaxRetries", opts.MaxRetries).
    Dur("TimeoutPerAttemptSec", opts.TimeoutPerAttempt).
    Dur("IdleTimeoutSec", s.IdleTimeout).
    Msg("Starting recurring collector")

  ticker := time.NewTicker(interval)
  defer ticker.Stop()

  for {
    select {
    case <-ctx.Done():
      log.Info().Msg("Recurring collector is shutting down")
      return
    case <-ticker.C:
    }

    if idle := s.idleFor(); s.IdleTimeout > 0 && idle > s.IdleTimeout {
      s.suspended.Store(true)

      log.Warn().
        Dur("IdleTimeoutSec", s.IdleTimeout).
        Dur("TimeSinceLastReadSec", idle).
        Msg("Suspending recurring collector due to inactivity. If you see this message often, " +
            "you probably need to adjust the collection interval with '-interval'.")

      s.stopContinuousReads()

      select {
      case <-ctx.Done():
        log.Info().Msg("Recurring collector is shutting down")
        return
      case <-s.wakeUp:
      }

      s.suspended.Store(false)
      log.Trace().Msg("Collector woke up from sleep - starting immediate collection")
    } else {
      log.Trace().Dur("Interval", interval).Msg("Recurring collector tick: collecting...")
    }

    s.collect(ctx, opts)
  }
}
