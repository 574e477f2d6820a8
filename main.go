package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-gyro-exporter/bridge"
	"github.com/robertof/go-gyro-exporter/collector"
	"github.com/robertof/go-gyro-exporter/device"
	"github.com/robertof/go-gyro-exporter/device/itg3200"
	"github.com/robertof/go-gyro-exporter/metrics"
	"github.com/robertof/go-gyro-exporter/transport"
	"github.com/robertof/go-gyro-exporter/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errBridgeGone = errors.New("connection to the bridge was closed")

// upper bound for the startup delay of every device.
const readyTimeout = 2 * time.Second

// readyWaiter is implemented by devices with a startup delay.
type readyWaiter interface {
  WaitReady(ctx context.Context) error
}

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Str("Bridge", fmt.Sprintf("%s:%d", cfg.Transport.Host, cfg.Transport.Port)).
    Stringer("Transport", &cfg.Transport.Backend).
    Array("Devices", utils.ToZeroLogArray(cfg.Devices)).
    Msg("Starting with the specified configuration")

  registry := prometheus.NewRegistry()
  transport.RegisterMetrics(registry)
  itg3200.RegisterMetrics(registry)

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  conn, bridgeClosed := connectBridge(ctx, cfg)
  defer conn.Close()

  ch := bridge.New(conn)
  devices := buildDevices(cfg, ch)

  defer func() {
    for _, dev := range devices {
      dev.Close()
    }
  }()

  initialReadings := collectInitialReadings(ctx, cfg, devices)

  coll := collector.NewRecurring(devices)
  coll.IdleTimeout = cfg.CollectionIdleTimeout
  coll.Update(initialReadings)

  metrics.RegisterCollector(coll.Latest, registry)

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{Addr: cfg.BindAddress, Handler: mux}
  eg, ctx := errgroup.WithContext(ctx)

  eg.Go(func() error {
    coll.Start(
      ctx,
      cfg.CollectionInterval,
      collector.CollectionOptions{
        TimeoutPerAttempt: cfg.CollectionTimeout,
        MaxRetries: cfg.MaxRetries,
        BackoffFactor: cfg.Backoff,
      },
    )

    return nil
  })

  eg.Go(func() error {
    log.Info().
        Str("ListenAddress", cfg.BindAddress).
        Msg("Starting Prometheus server")

    if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
      return fmt.Errorf("unable to bind on requested address: %w", err)
    }

    return nil
  })

  eg.Go(func() error {
    var err error

    select {
    case <-ctx.Done():
    case <-bridgeClosed:
      err = errBridgeGone
    }

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    server.Shutdown(shutdownCtx)

    return err
  })

  if err := eg.Wait(); err != nil && !utils.ErrorIsAnyOf(err, context.Canceled) {
    log.Error().Err(err).Msg("Exporter stopped")
    os.Exit(1)
  }

  log.Info().Msg("Exporter stopped")
}

// connectBridge returns once the transport is open. The returned channel is closed when
// the connection goes away.
func connectBridge(ctx context.Context, cfg config) (*transport.Wrapper, <-chan struct{}) {
  connected := make(chan struct{})
  closed := make(chan struct{})

  conn, err := transport.New(
    cfg.Transport,
    transport.WithListener(transport.EventConnected, func(transport.Event) {
      close(connected)
    }),
    transport.WithListener(transport.EventClose, func(transport.Event) {
      log.Warn().Msg("Connection to the bridge was closed")
      close(closed)
    }),
  )

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to create transport")
  }

  select {
  case <-connected:
    log.Info().Stringer("Transport", conn).Msg("Connected to the bridge")
  case <-closed:
    log.Fatal().Stringer("Transport", conn).Msg("Bridge closed the connection during setup")
  case <-ctx.Done():
    conn.Close()
    log.Fatal().Err(ctx.Err()).Msg("Interrupted while connecting to the bridge")
  case <-time.After(cfg.ConnectTimeout):
    conn.Close()
    log.Fatal().
      Stringer("Transport", conn).
      Dur("TimeoutSec", cfg.ConnectTimeout).
      Msg("Timed out connecting to the bridge")
  }

  return conn, closed
}

func buildDevices(cfg config, ch device.CommandChannel) []device.Device {
  env := device.Env{Channel: ch, Scheduler: device.SystemScheduler{}}
  devices := make([]device.Device, 0, len(cfg.Devices))

  for _, dc := range cfg.Devices {
    dev, err := dc.FromSpec(dc.spec, env)

    if err != nil {
      log.Fatal().Err(err).Stringer("Spec", dc).Msg("Failed to create device")
    }

    devices = append(devices, dev)
  }

  ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
  defer cancel()

  for _, dev := range devices {
    if w, ok := dev.(readyWaiter); ok {
      if err := w.WaitReady(ctx); err != nil {
        log.Fatal().Err(err).Stringer("Device", dev).Msg("Device did not become ready")
      }
    }
  }

  return devices
}

func collectInitialReadings(
  ctx context.Context,
  cfg config,
  devices []device.Device,
) (res map[device.Device]device.Reading) {
  log.Info().
    Dur("TimeoutSec", cfg.InitialCollectionTimeout).
    Msg("Running initial collection for the provided devices")

  readings, err := collector.CollectReadingsWithOptions(
    ctx,
    devices,
    collector.CollectionOptions{
      TimeoutPerAttempt: cfg.InitialCollectionTimeout,
      MaxRetries: cfg.MaxRetries,
      BackoffFactor: cfg.Backoff,
    },
  )

  if err != nil && !utils.ErrorIsAnyOf(err, context.DeadlineExceeded) {
    log.Fatal().
      Err(err).
      Str("Readings", fmt.Sprintf("%v", readings)).
      Msg("Failed to collect initial readings")
  }

  hasError := false
  res = make(map[device.Device]device.Reading)

  for _, dev := range devices {
    result, ok := readings[dev]

    if !ok {
      hasError = true

      log.Error().
        Stringer("Device", dev).
        Msg("No reading received for device (wrong address?)")

      continue
    }

    if result.Error != nil {
      hasError = true

      log.Error().
        Stringer("Device", dev).
        Err(result.Error).
        Msg("Failed to collect reading for device")
    } else {
      log.Info().
        Stringer("Device", dev).
        Stringer("Reading", result.Reading).
        Msg("Successfully collected reading for device")

      res[dev] = result.Reading
    }
  }

  if hasError {
    log.Fatal().Msg("Reading for at least one device failed, refusing to start")
  }

  return res
}
