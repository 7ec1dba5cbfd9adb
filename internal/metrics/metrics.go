package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NowakAdmin/DeviceHub/internal/center"
	"github.com/NowakAdmin/DeviceHub/internal/protocol"
)

// Metrics counts device traffic and decode outcomes. It is a center.Observer
// and also follows the center event stream.
type Metrics struct {
	registry *prometheus.Registry

	decodes     *prometheus.CounterVec
	events      *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	connected   *prometheus.GaugeVec
	lastWeight  *prometheus.GaugeVec
	messageErrs *prometheus.CounterVec

	sub *center.Subscription
	wg  sync.WaitGroup
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicehub",
				Subsystem: "decoder",
				Name:      "results_total",
				Help:      "Decode attempts by outcome.",
			},
			[]string{"device", "state"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicehub",
				Subsystem: "device",
				Name:      "events_total",
				Help:      "Device events by kind.",
			},
			[]string{"device", "kind"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicehub",
				Subsystem: "device",
				Name:      "bytes_total",
				Help:      "Bytes received and transmitted.",
			},
			[]string{"device", "direction"},
		),
		connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "devicehub",
				Subsystem: "device",
				Name:      "connected",
				Help:      "1 while the device transport is connected.",
			},
			[]string{"device"},
		),
		lastWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "devicehub",
				Subsystem: "scale",
				Name:      "last_weight",
				Help:      "Last weight reported by the scale, in its own unit.",
			},
			[]string{"device", "unit"},
		),
		messageErrs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devicehub",
				Subsystem: "device",
				Name:      "errors_total",
				Help:      "Error messages reported for the device.",
			},
			[]string{"device"},
		),
	}
	m.registry.MustRegister(m.decodes, m.events, m.bytes, m.connected, m.lastWeight, m.messageErrs)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Decoded(device string, state protocol.State) {
	m.decodes.WithLabelValues(device, state.String()).Inc()
}

// Follow records every event of c until the center closes.
func (m *Metrics) Follow(c *center.Center) {
	m.sub = c.Subscribe()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for ev := range m.sub.C() {
			m.Record(ev)
		}
	}()
}

func (m *Metrics) Record(ev center.Event) {
	m.events.WithLabelValues(ev.Device, string(ev.Kind)).Inc()
	switch ev.Kind {
	case center.KindReceived:
		m.bytes.WithLabelValues(ev.Device, "rx").Add(float64(len(ev.Bytes)))
	case center.KindTransmitted:
		m.bytes.WithLabelValues(ev.Device, "tx").Add(float64(len(ev.Bytes)))
	case center.KindStatus:
		v := 0.0
		if ev.Connected {
			v = 1
		}
		m.connected.WithLabelValues(ev.Device).Set(v)
	case center.KindWeight:
		if ev.Weight != nil {
			m.lastWeight.WithLabelValues(ev.Device, ev.Weight.WeightUnit.String()).Set(ev.Weight.Weight)
		}
	case center.KindMessage:
		if ev.Severity == "error" {
			m.messageErrs.WithLabelValues(ev.Device).Inc()
		}
	}
}

func (m *Metrics) Close() {
	if m.sub == nil {
		return
	}
	m.sub.Unsubscribe()
	m.wg.Wait()
}
