package transport

import (
  "strings"
  "testing"

  "github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_HaveHelp(t *testing.T) {
  for _, c := range []prometheus.Collector{connectionsCounter, messagesCounter, droppedMessagesCounter, closesCounter} {
    ch := make(chan *prometheus.Desc, 1)
    c.Describe(ch)
    desc := <-ch

    if strings.Contains(desc.String(), `help: ""`) {
      t.Errorf("metric has no help text: %v", desc)
    }
  }
}
