package itg3200_test

import (
  "encoding/binary"
  "testing"

  "github.com/robertof/go-gyro-exporter/device/itg3200"
)

func TestDecodeInt16_FullDomain(t *testing.T) {
  for i := 0; i <= 0xffff; i += 1 {
    b := []byte{byte(i >> 8), byte(i)}

    got := itg3200.DecodeInt16(b[0], b[1])
    want := int16(binary.BigEndian.Uint16(b))

    if got != want {
      t.Fatalf("DecodeInt16(0x%02x, 0x%02x): got %d, wanted %d", b[0], b[1], got, want)
    }
  }
}

func TestDecodeInt16_Boundaries(t *testing.T) {
  for _, tc := range []struct {
    hi, lo byte
    want int16
  }{
    {0x00, 0x00, 0},
    {0x7f, 0xff, 32767},
    {0x80, 0x00, -32768},
    {0xff, 0xff, -1},
    {0x00, 0x0a, 10},
    {0xff, 0xf6, -10},
  } {
    if got := itg3200.DecodeInt16(tc.hi, tc.lo); got != tc.want {
      t.Fatalf("DecodeInt16(0x%02x, 0x%02x): got %d, wanted %d", tc.hi, tc.lo, got, tc.want)
    }
  }
}

func TestCalibrate_Linear(t *testing.T) {
  for _, raw := range []int16{-32768, -115, -1, 0, 1, 10, 115, 32767} {
    base := itg3200.Calibrate(raw, 1, 0.5, 1)

    if got, want := itg3200.Calibrate(raw, 1, 0.5, 1), float64(raw) / 14.375 + 0.5; !almostEqual(got, want) {
      t.Fatalf("Calibrate(%d, 1, 0.5, 1): got %v, wanted %v", raw, got, want)
    }

    if got := itg3200.Calibrate(raw, 2, 0.5, 1); !almostEqual(got - 0.5, 2 * (base - 0.5)) {
      t.Fatalf("Calibrate(%d): doubling the gain gave %v, wanted %v", raw, got - 0.5, 2 * (base - 0.5))
    }

    if got := itg3200.Calibrate(raw, 1, 0.5, -1); !almostEqual(got - 0.5, -(base - 0.5)) {
      t.Fatalf("Calibrate(%d): negating polarity gave %v, wanted %v", raw, got - 0.5, -(base - 0.5))
    }
  }
}
