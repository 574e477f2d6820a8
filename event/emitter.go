// Package event provides a small synchronous publish/subscribe primitive. Components own
// an Emitter and expose their own closed set of event kinds through it.
package event

import (
  "fmt"
  "sync"

  "github.com/rs/zerolog/log"
)

// Subscription identifies a registered listener. The zero value is never returned by On().
type Subscription uint64

type listener[E any] struct {
  id Subscription
  fn func(E)
}

// Emitter dispatches events of type E to listeners registered by kind K. Dispatch is
// synchronous and happens in registration order.
type Emitter[K comparable, E any] struct {
  // Name is only used to tag log messages.
  Name string

  mu sync.Mutex
  nextID Subscription
  listeners map[K][]listener[E]
}

func NewEmitter[K comparable, E any](name string) *Emitter[K, E] {
  return &Emitter[K, E]{
    Name: name,
    listeners: make(map[K][]listener[E]),
  }
}

func (em *Emitter[K, E]) On(kind K, fn func(E)) Subscription {
  if fn == nil {
    panic("event: attempted to register nil listener")
  }

  em.mu.Lock()
  defer em.mu.Unlock()

  if em.listeners == nil {
    em.listeners = make(map[K][]listener[E])
  }

  em.nextID += 1
  em.listeners[kind] = append(em.listeners[kind], listener[E]{id: em.nextID, fn: fn})

  return em.nextID
}

// Off removes a listener. Removing an unknown subscription is a no-op.
func (em *Emitter[K, E]) Off(sub Subscription) {
  em.mu.Lock()
  defer em.mu.Unlock()

  for kind, ls := range em.listeners {
    for i, l := range ls {
      if l.id != sub {
        continue
      }

      // copy so that in-flight dispatches keep iterating over the old slice.
      next := make([]listener[E], 0, len(ls) - 1)
      next = append(next, ls[:i]...)
      next = append(next, ls[i+1:]...)
      em.listeners[kind] = next

      return
    }
  }
}

// Count returns the number of listeners registered for kind.
func (em *Emitter[K, E]) Count(kind K) int {
  em.mu.Lock()
  defer em.mu.Unlock()

  return len(em.listeners[kind])
}

// Emit delivers e to every listener of kind. A panicking listener is logged and skipped,
// it never reaches the caller nor the other listeners.
func (em *Emitter[K, E]) Emit(kind K, e E) {
  em.mu.Lock()
  ls := em.listeners[kind]
  em.mu.Unlock()

  for _, l := range ls {
    em.dispatch(kind, l, e)
  }
}

func (em *Emitter[K, E]) dispatch(kind K, l listener[E], e E) {
  defer func() {
    if r := recover(); r != nil {
      log.Error().
        Str("Emitter", em.Name).
        Str("Kind", fmt.Sprint(kind)).
        Str("Panic", fmt.Sprint(r)).
        Msg("event: listener panicked, skipping")
    }
  }()

  l.fn(e)
}
