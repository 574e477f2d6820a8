package transport

import (
  "fmt"
  "slices"
  "strconv"
)

type State uint8

const (
  StateConnecting State = iota
  StateOpen
  StateClosing
  StateClosed
)

func (s State) String() string {
  switch s {
  case StateConnecting:
    return "Connecting"
  case StateOpen:
    return "Open"
  case StateClosing:
    return "Closing"
  case StateClosed:
    return "Closed"
  default:
    panic("unknown transport state: " + strconv.Itoa(int(s)))
  }
}

// Kind selects the backend used by a Wrapper.
type Kind string

const (
  // Probe the registry once at construction time.
  KindAuto Kind = "auto"
  // Managed WebSocket session, never reconnected.
  KindSession Kind = "session"
  // Plain WebSocket on the fixed `/websocket` sub-path.
  KindRaw Kind = "raw"
)

// *flag.Value
func (k *Kind) String() string {
  if k == nil {
    return ""
  }

  return string(*k)
}

func (k *Kind) Set(v string) error {
  if v == "" {
    *k = KindAuto
    return nil
  }

  allKinds := []Kind{KindAuto, KindSession, KindRaw}
  p := Kind(v)

  if !slices.Contains(allKinds, p) {
    return fmt.Errorf("unknown transport %v (must be one of %v)", p, allKinds)
  }

  *k = p
  return nil
}
