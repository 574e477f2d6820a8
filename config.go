package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/robertof/go-gyro-exporter/collector"
	"github.com/robertof/go-gyro-exporter/device"
	"github.com/robertof/go-gyro-exporter/device/itg3200"
	"github.com/robertof/go-gyro-exporter/transport"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  Transport transport.Config
  ConnectTimeout time.Duration
  MaxRetries int
  InitialCollectionTimeout, CollectionTimeout time.Duration
  CollectionInterval, CollectionIdleTimeout time.Duration
  Backoff time.Duration
  Devices []deviceConfig
}

// deviceConfig is a validated device spec. Devices are built only once the bridge is
// reachable.
type deviceConfig struct {
  device.Factory
  kind string
  spec device.DeviceSpec
}

func (d deviceConfig) String() string {
  return d.kind + "[" + d.spec.String() + "]"
}

type boundDeviceList struct {
  device.Factory
  name string
  list *[]deviceConfig
}

var deviceFactories = map[string]device.Factory {
  "itg3200": &itg3200.Factory{},
}

func (d *boundDeviceList) String() string {
  return ""
}

func (d *boundDeviceList) Set(v string) error {
  ds := device.NewDeviceSpec(v)

  if err := d.Validate(ds); err != nil {
    return fmt.Errorf("invalid device spec: %w", err)
  }

  *d.list = append(*d.list, deviceConfig{Factory: d.Factory, kind: d.name, spec: ds})

  return nil
}

func ParseArgs() config {
  var cfg config

  cfg.Transport.Backend = transport.KindAuto

  flag.StringVar(&cfg.BindAddress,"bind", "localhost:9102", "Where the exporter will bind to")
  flag.StringVar(&cfg.Transport.Host, "host", "localhost", "Host of the I2C bridge")
  flag.IntVar(&cfg.Transport.Port, "port", 8080, "Port of the I2C bridge")
  flag.StringVar(&cfg.Transport.Protocol, "protocol", transport.DefaultProtocol,
    "WebSocket subprotocol announced to the bridge")
  flag.Var(&cfg.Transport.Backend, "transport",
    "Socket backend (one of 'auto', 'session' or 'raw')")
  flag.DurationVar(&cfg.Transport.Session.PingInterval, "ping-interval", 0,
    "Heartbeat interval of the session backend (0 disables it)")
  flag.DurationVar(&cfg.ConnectTimeout, "connect-timeout", 10 * time.Second,
    "How long to wait for the bridge connection on start")
  flag.IntVar(&cfg.MaxRetries, "max-retries", collector.DefaultMaxRetries, "Max number of retries")
  flag.DurationVar(&cfg.InitialCollectionTimeout, "initial-timeout", 3 * time.Second,
    "Timeout for the collection done on start (per retry attempt)")
  flag.DurationVar(&cfg.CollectionTimeout, "timeout", collector.DefaultTimeoutPerAttempt,
    "Timeout for the periodic collections (per retry attempt)")
  flag.DurationVar(&cfg.CollectionInterval, "interval", 15 * time.Second,
    "How frequently data collection happens")
  flag.DurationVar(&cfg.CollectionIdleTimeout, "idle-timeout", -1,
    "Timeout after which the collector is suspended if no data is read. Defaults to 3 * CollectionInterval")
  flag.DurationVar(&cfg.Backoff, "backoff", collector.DefaultBackoffFactor,
    "Exponential backoff factor for retries")
  flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  for deviceName, deviceFactory := range deviceFactories {
    boundList := boundDeviceList{
      name:    deviceName,
      Factory: deviceFactory,
      list:    &cfg.Devices,
    }

    help := "Device spec for this device in the form of `key=value,key=value`."

    if docs, ok := deviceFactory.(device.FactoryDocs); ok {
      help += "\n" + docs.Help()
    }

    flag.Var(&boundList, deviceName, help)
  }

  flag.Parse()

  if cfg.CollectionIdleTimeout < 0 {
    cfg.CollectionIdleTimeout = cfg.CollectionInterval * 3
  }

  if len(cfg.Devices) == 0 {
    fmt.Fprintln(os.Stderr, "Error: at least one device is required!")
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}
