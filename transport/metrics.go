package transport

import (
  "github.com/prometheus/client_golang/prometheus"
)

var (
  connectionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "gyro_exporter_transport_connections_total",
    Help: "Connections established with the bridge, by backend.",
  }, []string{"backend"})
  messagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "gyro_exporter_transport_messages_total",
    Help: "Inbound messages delivered to listeners, by backend.",
  }, []string{"backend"})
  droppedMessagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "gyro_exporter_transport_dropped_messages_total",
    Help: "Inbound messages dropped outside of an open connection, by backend.",
  }, []string{"backend"})
  closesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
    Name: "gyro_exporter_transport_disconnections_total",
    Help: "Connections to the bridge that were torn down, by backend.",
  }, []string{"backend"})
)

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    connectionsCounter,
    messagesCounter,
    droppedMessagesCounter,
    closesCounter,
  )
}
