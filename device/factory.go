package device

// Env holds what a device needs to talk to the bridge.
type Env struct {
  Channel CommandChannel
  Scheduler Scheduler
}

type Factory interface {
  // Validate checks a spec without building anything. Used while parsing flags, before
  // the bridge is reachable.
  Validate(spec DeviceSpec) error
  FromSpec(spec DeviceSpec, env Env) (Device, error)
}

type FactoryDocs interface {
  Help() string
}
