package itg3200

import (
  "github.com/prometheus/client_golang/prometheus"
)

var (
  commandsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "gyro_exporter_itg3200_commands_total",
    Help: "Commands sent to gyros, by mode.",
  }, []string{"mode"})
  framesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "gyro_exporter_itg3200_frames_total",
    Help: "Response frames handled, by result (accepted, framing_error, unexpected_register).",
  }, []string{"result"})
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    commandsCounter,
    framesCounter,
  )
}
