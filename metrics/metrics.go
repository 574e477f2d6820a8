package metrics

import (
  "fmt"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/robertof/go-gyro-exporter/collector"
  "github.com/robertof/go-gyro-exporter/device"
)

var (
  descRate = prometheus.NewDesc(
    "gyro_angular_rate_degrees_per_second",
    "Calibrated angular rate reported by the gyroscope in degrees per second.",
    []string{"name", "axis"},
    nil,
  )

  descRaw = prometheus.NewDesc(
    "gyro_raw_counts",
    "Raw signed output of the gyroscope, before calibration.",
    []string{"name", "axis"},
    nil,
  )

  descAddress = prometheus.NewDesc(
    "gyro_device_info",
    "Static information about the gyroscope. Always 1.",
    []string{"name", "address"},
    nil,
  )

  descLastCollection = prometheus.NewDesc(
    "gyro_last_collection_timestamp_seconds",
    "Unix time of the last successful collection.",
    nil,
    nil,
  )
)

type CollectFunc func() collector.Snapshot

type gyroCollector struct {
  CollectFunc
}

func (c *gyroCollector) Describe(ch chan<- *prometheus.Desc) {
  ch <- descRate
  ch <- descRaw
  ch <- descAddress
  ch <- descLastCollection
}

func (c *gyroCollector) Collect(ch chan<- prometheus.Metric) {
  snap := c.CollectFunc()

  if snap.Readings == nil {
    panic("collector got empty data!")
  }

  // nothing collected yet.
  if snap.CollectedAt.IsZero() {
    return
  }

  ts := snap.CollectedAt

  for dev, reading := range snap.Readings {
    for _, axis := range device.Axes {
      rate := prometheus.MustNewConstMetric(
        descRate,
        prometheus.GaugeValue,
        reading.Rate.Get(axis),
        dev.Name(),
        axis.String(),
      )

      ch <- prometheus.NewMetricWithTimestamp(ts, rate)

      raw := prometheus.MustNewConstMetric(
        descRaw,
        prometheus.GaugeValue,
        float64(reading.Raw(axis)),
        dev.Name(),
        axis.String(),
      )

      ch <- prometheus.NewMetricWithTimestamp(ts, raw)
    }

    ch <- prometheus.MustNewConstMetric(
      descAddress,
      prometheus.GaugeValue,
      1,
      dev.Name(),
      fmt.Sprintf("0x%02x", dev.Address()),
    )
  }

  ch <- prometheus.MustNewConstMetric(
    descLastCollection,
    prometheus.GaugeValue,
    float64(ts.UnixNano()) / 1e9,
  )
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &gyroCollector{f}

  reg.MustRegister(c)
}
