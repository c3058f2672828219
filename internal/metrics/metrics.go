// Package metrics exposes controller activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "planty"

// Collector records controller activity. It implements controller.Observer.
type Collector struct {
	eventsHandled    *prometheus.CounterVec
	pumpTransitions  *prometheus.CounterVec
	pumpFailures     *prometheus.CounterVec
	readingsTotal    prometheus.Counter
	moisture         prometheus.Gauge
	threshold        prometheus.Gauge
	pumpOn           prometheus.Gauge
	controllerState  prometheus.Gauge
	thresholdChanges *prometheus.CounterVec
}

// NewCollector registers the controller metrics with reg. depth reports the number of
// queued events and may be nil.
func NewCollector(reg prometheus.Registerer, depth func() int) *Collector {
	c := &Collector{
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Events taken from the mailbox, by kind and whether they changed anything",
		}, []string{"kind", "applied"}),
		pumpTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_transitions_total",
			Help:      "Pump on/off transitions by cause",
		}, []string{"pump", "cause"}),
		pumpFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pump_failures_total",
			Help:      "Pump commands that failed, by requested state and cause",
		}, []string{"pump", "cause"}),
		readingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moisture_readings_total",
			Help:      "Moisture readings taken",
		}),
		moisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_reading",
			Help:      "Last raw moisture reading, higher is drier",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "moisture_threshold",
			Help:      "Reading above which the plant is watered",
		}),
		pumpOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_on",
			Help:      "1 while the pump is running",
		}),
		controllerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_state",
			Help:      "0 idle, 1 watering",
		}),
		thresholdChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_changes_total",
			Help:      "Threshold changes by cause",
		}, []string{"cause"}),
	}

	reg.MustRegister(
		c.eventsHandled,
		c.pumpTransitions,
		c.pumpFailures,
		c.readingsTotal,
		c.moisture,
		c.threshold,
		c.pumpOn,
		c.controllerState,
		c.thresholdChanges,
	)

	if depth != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mailbox_depth",
			Help:      "Events waiting in the controller mailbox",
		}, func() float64 { return float64(depth()) }))
	}

	return c
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collector) EventHandled(ev event.Event, from, to controller.State, applied bool) {
	c.eventsHandled.WithLabelValues(event.Kind(ev), strconv.FormatBool(applied)).Inc()
	c.controllerState.Set(float64(to))
}

func (c *Collector) PumpChanged(on bool, cause controller.Cause) {
	c.pumpTransitions.WithLabelValues(pumpLabel(on), string(cause)).Inc()
	if on {
		c.pumpOn.Set(1)
	} else {
		c.pumpOn.Set(0)
	}
}

func (c *Collector) PumpFailed(on bool, cause controller.Cause, err error) {
	c.pumpFailures.WithLabelValues(pumpLabel(on), string(cause)).Inc()
}

func (c *Collector) ReadingTaken(reading int) {
	c.readingsTotal.Inc()
	c.moisture.Set(float64(reading))
}

func (c *Collector) ThresholdChanged(threshold int, cause controller.Cause) {
	c.thresholdChanges.WithLabelValues(string(cause)).Inc()
	c.threshold.Set(float64(threshold))
}

// SetThreshold records the starting threshold before any change is observed.
func (c *Collector) SetThreshold(threshold int) {
	c.threshold.Set(float64(threshold))
}

func pumpLabel(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
