package collector

import (
	"context"
	"fmt"

	"github.com/robertof/go-gyro-exporter/collector/model"
	"github.com/robertof/go-gyro-exporter/device"
	"github.com/robertof/go-gyro-exporter/utils"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// sampleDevice waits for the next reading of dev. Devices in continuous read mode are
// left alone, the others get a single-shot request.
func sampleDevice(ctx context.Context, dev device.Device) (reading device.Reading, err error) {
	changed := make(chan struct{}, 1)

	remove := dev.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer remove()

	if !dev.IsReading() {
		if err := dev.Update(); err != nil {
			return reading, fmt.Errorf("failed to request reading: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return reading, fmt.Errorf("no reading received: %w", ctx.Err())
	case <-changed:
	}

	return dev.Reading()
}

func collectFromDevices(
	ctx context.Context,
	devices []device.Device,
	ch chan model.DeviceResult,
) error {
	var eg errgroup.Group

	log.Trace().
		Array("Devices", utils.ToZeroLogArray(devices)).
		Msg("collectFromDevices: started")

	for _, dev := range devices {
		dev := dev

		eg.Go(func() error {
			reading, err := sampleDevice(ctx, dev)

			result := model.DeviceResult{
				Device: dev,
				Result: model.Result{
					Reading: reading,
					Error: err,
				},
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- result:
			}

			log.Trace().
				Stringer("Device", dev).
				Msg("collectFromDevices: device worker finished and submitted work")

			return nil
		})
	}

	return eg.Wait()
}
