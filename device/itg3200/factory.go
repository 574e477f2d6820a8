package itg3200

import (
  "errors"
  "fmt"

  "github.com/robertof/go-gyro-exporter/device"
  "github.com/rs/zerolog/log"
)

type Factory struct{}

type specOptions struct {
  Options
  Calibration
  reversed [3]bool
}

func parseSpec(spec device.DeviceSpec) (o specOptions, err error) {
  o.Name = spec.Name()
  o.Calibration = DefaultCalibration()

  if o.Address, err = spec.Addr(DefaultAddress); err != nil {
    return o, err
  }

  autoStart, err := spec.Bool("autostart", true)

  if err != nil {
    return o, err
  }

  o.ManualStart = !autoStart

  if o.Gains, err = spec.Vector("gains", o.Gains); err != nil {
    return o, err
  }

  if o.Offsets, err = spec.Vector("offsets", o.Offsets); err != nil {
    return o, err
  }

  if reverse, ok := spec["reverse"]; ok {
    for _, axis := range reverse {
      switch axis {
      case 'x':
        o.reversed[0] = true
      case 'y':
        o.reversed[1] = true
      case 'z':
        o.reversed[2] = true
      default:
        return o, fmt.Errorf("invalid reverse %q: only x, y and z are allowed", reverse)
      }
    }
  }

  return o, nil
}

func (f *Factory) Validate(spec device.DeviceSpec) error {
  _, err := parseSpec(spec)

  return err
}

func (f *Factory) FromSpec(spec device.DeviceSpec, env device.Env) (device.Device, error) {
  o, err := parseSpec(spec)

  if err != nil {
    return nil, err
  }

  if env.Channel == nil {
    return nil, errors.New("itg3200: no command channel")
  }

  o.Scheduler = env.Scheduler

  g := New(env.Channel, o.Options)

  g.SetGains(o.Gains.X, o.Gains.Y, o.Gains.Z)
  g.SetOffsets(o.Offsets.X, o.Offsets.Y, o.Offsets.Z)
  g.SetRevPolarity(o.reversed[0], o.reversed[1], o.reversed[2])

  log.Debug().
    Stringer("Device", g).
    Bool("AutoStart", !o.ManualStart).
    Interface("Calibration", g.Calibration()).
    Msg("itg3200: created device")

  return g, nil
}

func (f *Factory) Help() string {
  return `Supported parameters:
addr (int): I2C address of the gyro, 0x69 (default) or 0x68
name (string): Name of this gyro, used as metric label
autostart (bool): Enter continuous read mode once the gyro is ready (default true). When off, readings are requested on every collection.
gains (x/y/z): Per-axis gain (default 1/1/1)
offsets (x/y/z): Per-axis offset in degrees per second (default 0/0/0)
reverse (string): Axes whose polarity is reversed, e.g. 'xz'`
}
