package device

import (
  "fmt"
  "sort"
  "strconv"
  "strings"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"
)

type DeviceSpec map[string]string

const (
  DeviceSpecFieldName = "name"
  DeviceSpecFieldAddress = "addr"
)

// NewDeviceSpec parses `key=value,key=value`. Values holding several numbers use `/` as a
// separator, e.g. `gains=1/1/0.5`.
func NewDeviceSpec(s string) DeviceSpec {
  spec := DeviceSpec{}
  entries := strings.Split(s, ",")

  for _, entry := range entries {
    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid device spec entry")
      continue
    }

    spec[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return spec
}

func (ds DeviceSpec) Name() string {
  return ds[DeviceSpecFieldName]
}

// Addr parses the I2C address (decimal or 0x-prefixed hex), falling back to def.
func (ds DeviceSpec) Addr(def uint8) (uint8, error) {
  v, ok := ds[DeviceSpecFieldAddress]

  if !ok || v == "" {
    return def, nil
  }

  addr, err := strconv.ParseUint(v, 0, 7)

  if err != nil {
    return 0, fmt.Errorf("invalid addr %q: %w", v, err)
  }

  return uint8(addr), nil
}

func (ds DeviceSpec) Bool(key string, def bool) (bool, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return def, nil
  }

  switch strings.ToLower(v) {
  case "yes", "y", "on":
    return true, nil
  case "no", "n", "off":
    return false, nil
  }

  b, err := strconv.ParseBool(v)

  if err != nil {
    return def, fmt.Errorf("invalid %v %q: %w", key, v, err)
  }

  return b, nil
}

// Vector parses a per-axis triple such as `1/1/0.5`, falling back to def.
func (ds DeviceSpec) Vector(key string, def Vector) (Vector, error) {
  v, ok := ds[key]

  if !ok || v == "" {
    return def, nil
  }

  parts := strings.Split(v, "/")

  if len(parts) != 3 {
    return def, fmt.Errorf("invalid %v %q: want three values separated by '/'", key, v)
  }

  var values [3]float64

  for i, part := range parts {
    f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)

    if err != nil {
      return def, fmt.Errorf("invalid %v %q: %w", key, v, err)
    }

    values[i] = f
  }

  return Vector{X: values[0], Y: values[1], Z: values[2]}, nil
}

func (ds DeviceSpec) String() string {
  keys := maps.Keys(ds)
  sort.Strings(keys)

  entries := make([]string, len(keys))

  for i, k := range keys {
    entries[i] = k + "=" + ds[k]
  }

  return strings.Join(entries, ",")
}
