package collector

import (
  "context"
  "time"

  "github.com/robertof/go-gyro-exporter/collector/model"
  "github.com/robertof/go-gyro-exporter/device"
  "github.com/robertof/go-gyro-exporter/utils"
  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"
)

const (
  DefaultMaxRetries = 2
  DefaultTimeoutPerAttempt = 2 * time.Second
  DefaultBackoffFactor = 500 * time.Millisecond
)

type CollectionOptions struct {
  MaxRetries int
  TimeoutPerAttempt time.Duration
  BackoffFactor time.Duration

  attempt int
}

func CollectReadings(
  ctx context.Context,
  devices []device.Device,
) (out map[device.Device]model.Result, err error) {
  return CollectReadingsWithOptions(
    ctx,
    devices,
    CollectionOptions{
      MaxRetries: DefaultMaxRetries,
      TimeoutPerAttempt: DefaultTimeoutPerAttempt,
    },
  )
}

// Collect one reading from each of the specified devices and don't stop until either all
// of them answered or the retries are exhausted.
func CollectReadingsWithOptions(
  parentCtx context.Context,
  devices []device.Device,
  options CollectionOptions,
) (out map[device.Device]model.Result, err error) {
  out = make(map[device.Device]model.Result, len(devices))

  log.Debug().
    Array("Devices", utils.ToZeroLogArray(devices)).
    Int("Attempt", options.attempt).
    Msg("Collecting readings from devices")

  var ctx context.Context
  var cancel func()

  if options.TimeoutPerAttempt > 0 {
    ctx, cancel = context.WithTimeout(parentCtx, options.TimeoutPerAttempt)
  } else {
    ctx, cancel = context.WithCancel(parentCtx)
  }

  defer cancel()

  var eg errgroup.Group
  resultCh := make(chan model.DeviceResult)

  eg.Go(func() error {
    return collectFromDevices(ctx, devices, resultCh)
  })

  go func() {
    err = eg.Wait()
    close(resultCh)
  }()

  for v := range resultCh {
    log.Trace().
      Stringer("Device", v.Device).
      Stringer("Result", v.Result).
      Msg("Received result for device")

    out[v.Device] = v.Result
  }

  // analyze results, and retry if needed
  if options.MaxRetries > 0 {
    var failedDevices []device.Device

    for _, dev := range devices {
      if result, ok := out[dev]; ok && result.Error != nil {
        failedDevices = append(failedDevices, dev)

        log.Debug().
          Stringer("Device", dev).
          Int("RetriesLeft", options.MaxRetries).
          Err(result.Error).
          Msg("Collection failed for device - will retry")
      } else if !ok {
        failedDevices = append(failedDevices, dev)

        log.Debug().
          Stringer("Device", dev).
          Int("RetriesLeft", options.MaxRetries).
          Err(err).
          Msg("No data received for device (wrong address?) - will retry")
      }
    }

    if len(failedDevices) > 0 {
      if options.BackoffFactor > 0 {
        backoff := options.BackoffFactor << int64(options.attempt)

        if backoff < 0 {
          backoff = DefaultBackoffFactor
        }

        log.Trace().
          Dur("Backoff", backoff).
          Msg("Backing off before attempting retry")

        select {
        case <-parentCtx.Done():
          log.Trace().Err(parentCtx.Err()).Msg("Retry aborted by context cancel")
          return out, parentCtx.Err()
        case <-time.After(backoff):
        }
      }

      options.MaxRetries -= 1
      options.attempt += 1

      retryOutput, err := CollectReadingsWithOptions(parentCtx, failedDevices, options)

      // merge old and new outputs
      for failedDevice, result := range retryOutput {
        out[failedDevice] = result
      }

      return out, err
    }
  }

  return out, err
}
