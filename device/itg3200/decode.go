package itg3200

import (
  "github.com/pkg/errors"
  "github.com/robertof/go-gyro-exporter/device"
)

// DecodeInt16 decodes a big-endian two's complement pair. The sign is applied by hand,
// which yields the same value as int16(binary.BigEndian.Uint16(...)).
func DecodeInt16(hi, lo byte) int16 {
  raw := uint16(hi) << 8 | uint16(lo)

  if raw >> 15 != 0 {
    return int16(-(int32(raw ^ 0xffff) + 1))
  }

  return int16(raw)
}

// decodeRates decodes a frame for the X/Y/Z output block.
func decodeRates(f device.ResponseFrame) (x, y, z int16, err error) {
  if f.Len() != numBytes + 1 {
    return 0, 0, 0, errors.Wrapf(device.ErrProtocolFraming,
      "itg3200: got %d bytes for register 0x%02x, want %d", f.Len(), f.Register, numBytes + 1)
  }

  d := f.Data

  return DecodeInt16(d[0], d[1]), DecodeInt16(d[2], d[3]), DecodeInt16(d[4], d[5]), nil
}

// Calibrate converts raw sensor counts to degrees per second.
func Calibrate(raw int16, gain, offset, polarity float64) float64 {
  return float64(raw) / Sensitivity * polarity * gain + offset
}

type Calibration struct {
  Gains device.Vector
  Offsets device.Vector
  // Each component is either 1 or -1.
  Polarities device.Vector
}

func DefaultCalibration() Calibration {
  return Calibration{
    Gains: device.Vector{X: 1, Y: 1, Z: 1},
    Polarities: device.Vector{X: 1, Y: 1, Z: 1},
  }
}

func (c Calibration) Apply(a device.Axis, raw int16) float64 {
  return Calibrate(raw, c.Gains.Get(a), c.Offsets.Get(a), c.Polarities.Get(a))
}

func polarity(reversed bool) float64 {
  if reversed {
    return -1
  }

  return 1
}
