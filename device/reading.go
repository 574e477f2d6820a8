package device

import (
  "fmt"
)

type Axis uint8

const (
  AxisX Axis = iota
  AxisY
  AxisZ
)

var Axes = []Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
  switch a {
  case AxisX:
    return "x"
  case AxisY:
    return "y"
  case AxisZ:
    return "z"
  default:
    panic(fmt.Sprintf("unknown axis: %d", uint8(a)))
  }
}

// Vector holds one value per axis.
type Vector struct {
  X, Y, Z float64
}

func (v Vector) Get(a Axis) float64 {
  switch a {
  case AxisX:
    return v.X
  case AxisY:
    return v.Y
  default:
    return v.Z
  }
}

// Reading is one decoded sample. Raw counts are as reported by the sensor, Rate is
// calibrated and in degrees per second.
type Reading struct {
  RawX, RawY, RawZ int16
  Rate Vector
}

func (r Reading) Raw(a Axis) int16 {
  switch a {
  case AxisX:
    return r.RawX
  case AxisY:
    return r.RawY
  default:
    return r.RawZ
  }
}

func (r Reading) String() string {
  return fmt.Sprintf("Reading[Rate=(%.3f, %.3f, %.3f)deg/s,Raw=(%d, %d, %d)]",
    r.Rate.X, r.Rate.Y, r.Rate.Z, r.RawX, r.RawY, r.RawZ)
}
