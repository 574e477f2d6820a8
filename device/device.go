package device

import (
  "errors"
)

var (
  // A response frame does not have the length requested for its register block.
  ErrProtocolFraming = errors.New("protocol framing error")
  // A response frame targets a register the device never asked for.
  ErrUnexpectedRegister = errors.New("unexpected register")
  // The device has not produced any reading yet.
  ErrNoReading = errors.New("no reading available")
)

// Device is a sensor attached to the bridge, as seen by the collector and the metrics.
type Device interface {
  Name() string
  Address() uint8
  // Latest calibrated reading. Returns ErrNoReading until the first frame is decoded.
  Reading() (Reading, error)
  // Whether the device is in continuous read mode.
  IsReading() bool
  // Request a single-shot reading.
  Update() error
  // Register a function called after every decoded reading. The returned function
  // removes it.
  OnChange(fn func()) (remove func())
  // Release every resource held by the device.
  Close()
  String() string
}
