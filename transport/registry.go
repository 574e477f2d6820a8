package transport

import (
  "fmt"
  "sync"

  "github.com/rs/zerolog/log"
)

// BackendFactory builds a backend for the given (already defaulted) configuration. It must
// not start connecting; the Wrapper does that through Backend.Connect().
type BackendFactory func(cfg Config) (Backend, error)

// Registry holds the backends available to this process. Probing picks the first
// available kind in preference order.
type Registry struct {
  mu sync.RWMutex
  factories map[Kind]BackendFactory
}

// probeOrder mirrors the preference of the bridge firmware: a managed session when the
// peer offers one, a plain socket otherwise.
var probeOrder = []Kind{KindSession, KindRaw}

// DefaultRegistry has both built-in backends registered.
var DefaultRegistry = NewRegistry()

func init() {
  DefaultRegistry.Register(KindSession, newSessionBackend)
  DefaultRegistry.Register(KindRaw, newRawBackend)
}

func NewRegistry() *Registry {
  return &Registry{
    factories: make(map[Kind]BackendFactory),
  }
}

func (r *Registry) Register(kind Kind, f BackendFactory) {
  if kind == KindAuto {
    panic("transport: cannot register a backend as " + string(KindAuto))
  }

  r.mu.Lock()
  defer r.mu.Unlock()

  r.factories[kind] = f
}

func (r *Registry) Unregister(kind Kind) {
  r.mu.Lock()
  defer r.mu.Unlock()

  delete(r.factories, kind)
}

// Probe returns the backend kind to use. It is meant to run exactly once per Wrapper.
func (r *Registry) Probe() (Kind, error) {
  r.mu.RLock()
  defer r.mu.RUnlock()

  for _, kind := range probeOrder {
    if _, ok := r.factories[kind]; ok {
      return kind, nil
    }
  }

  // anything registered under a custom kind is fine too.
  for kind := range r.factories {
    return kind, nil
  }

  return "", ErrUnsupportedTransport
}

func (r *Registry) build(kind Kind, cfg Config) (Kind, Backend, error) {
  if kind == KindAuto || kind == "" {
    probed, err := r.Probe()

    if err != nil {
      return "", nil, err
    }

    log.Debug().Str("Backend", string(probed)).Msg("transport: probed backend")
    kind = probed
  }

  r.mu.RLock()
  f, ok := r.factories[kind]
  r.mu.RUnlock()

  if !ok {
    return "", nil, fmt.Errorf("%w: backend %q is not available", ErrUnsupportedTransport, kind)
  }

  b, err := f(cfg)

  if err != nil {
    return "", nil, fmt.Errorf("%w: %v", ErrUnsupportedTransport, err)
  }

  return kind, b, nil
}
