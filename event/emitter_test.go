package event_test

import (
  "reflect"
  "testing"

  "github.com/robertof/go-gyro-exporter/event"
)

type kind uint8

const (
  kindA kind = iota
  kindB
)

func TestEmitter_DispatchInRegistrationOrder(t *testing.T) {
  em := event.NewEmitter[kind, int]("test")

  var got []string

  em.On(kindA, func(v int) { got = append(got, "first") })
  em.On(kindA, func(v int) { got = append(got, "second") })
  em.On(kindB, func(v int) { got = append(got, "other") })

  em.Emit(kindA, 1)

  want := []string{"first", "second"}

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Emit(kindA): got %v, wanted %v", got, want)
  }
}

func TestEmitter_Off(t *testing.T) {
  em := event.NewEmitter[kind, int]("test")

  calls := 0
  sub := em.On(kindA, func(int) { calls += 1 })

  em.Emit(kindA, 0)
  em.Off(sub)
  em.Emit(kindA, 0)

  if calls != 1 {
    t.Fatalf("listener called %d times, wanted 1", calls)
  }

  if n := em.Count(kindA); n != 0 {
    t.Fatalf("Count(kindA) = %d after Off(), wanted 0", n)
  }

  // unknown subscriptions are ignored
  em.Off(sub)
}

func TestEmitter_PanickingListenerIsContained(t *testing.T) {
  em := event.NewEmitter[kind, string]("test")

  var got []string

  em.On(kindA, func(string) { panic("boom") })
  em.On(kindA, func(v string) { got = append(got, v) })

  em.Emit(kindA, "payload")

  if !reflect.DeepEqual(got, []string{"payload"}) {
    t.Fatalf("Emit() after panicking listener: got %v, wanted [payload]", got)
  }
}

func TestEmitter_UnsubscribeDuringDispatch(t *testing.T) {
  em := event.NewEmitter[kind, int]("test")

  calls := 0
  var sub event.Subscription

  sub = em.On(kindA, func(int) {
    calls += 1
    em.Off(sub)
  })

  em.Emit(kindA, 0)
  em.Emit(kindA, 0)

  if calls != 1 {
    t.Fatalf("self-removing listener called %d times, wanted 1", calls)
  }
}
