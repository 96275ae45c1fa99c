// Package metrics exposes Prometheus instrumentation for the device
// manager and terminal I/O core, in the style of the pack's
// promauto-registered metric vars (grounded on
// smazurov-videonode/internal/metrics/mpp.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	treeNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "devicehub",
		Subsystem: "tree",
		Name:      "nodes",
		Help:      "Number of nodes currently present in the device tree.",
	})

	kernelEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicehub",
		Subsystem: "kevent",
		Name:      "events_total",
		Help:      "Kernel uevents processed by the device manager, by action.",
	}, []string{"action"})

	malformedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "devicehub",
		Subsystem: "kevent",
		Name:      "malformed_total",
		Help:      "Kernel uevents that failed to parse and were dropped.",
	})

	subsystemDevices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "devicehub",
		Subsystem: "subsystem",
		Name:      "devices",
		Help:      "Devices currently classified under each subsystem.",
	}, []string{"subsystem"})

	terminalBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devicehub",
		Subsystem: "termio",
		Name:      "bytes_total",
		Help:      "Bytes moved through the terminal I/O core, by direction.",
	}, []string{"direction"})
)

// SetTreeNodes records the current device-tree node count.
func SetTreeNodes(n int) {
	treeNodes.Set(float64(n))
}

// ObserveKernelEvent increments the counter for one handled kernel event.
func ObserveKernelEvent(action string) {
	kernelEventsTotal.WithLabelValues(action).Inc()
}

// ObserveMalformedEvent increments the counter for one dropped, unparsable
// kernel event.
func ObserveMalformedEvent() {
	malformedEventsTotal.Inc()
}

// SetSubsystemDevices records the device count currently classified under
// subsystem.
func SetSubsystemDevices(subsystem string, n int) {
	subsystemDevices.WithLabelValues(subsystem).Set(float64(n))
}

// ObserveTerminalBytes adds n to the byte counter for direction ("read" or
// "write").
func ObserveTerminalBytes(direction string, n int) {
	terminalBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// TreeNodesGauge exposes the underlying collector for tests that need to
// read it directly via testutil, without reaching into package-private state.
func TreeNodesGauge() prometheus.Gauge { return treeNodes }

// KernelEventsTotal exposes the underlying collector for tests that need to
// read it directly via testutil.
func KernelEventsTotal() *prometheus.CounterVec { return kernelEventsTotal }
