package util

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// LampMetrics records broker traffic, inbound notifications and the lamp value.
type LampMetrics struct {
	requests      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	lamp          prometheus.Gauge
}

// NewLampMetrics registers the collectors on reg (the default registerer when
// nil). Collectors already registered are reused.
func NewLampMetrics(reg prometheus.Registerer) (*LampMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lamp_broker_requests_total",
		Help: "Requests sent to the CSE by operation and answer",
	}, []string{"operation", "status", "ok"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lamp_notifications_total",
		Help: "Notifications received from the CSE by outcome",
	}, []string{"outcome"})
	lamp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lamp_on",
		Help: "1 when the lamp is on",
	})

	if err := reg.Register(requests); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			requests = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(notifications); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			notifications = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(lamp); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			lamp = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	return &LampMetrics{requests: requests, notifications: notifications, lamp: lamp}, nil
}

func (m *LampMetrics) ObserveBrokerRequest(op string, status int, err error) {
	m.requests.WithLabelValues(op, strconv.Itoa(status), strconv.FormatBool(err == nil)).Inc()
}

func (m *LampMetrics) ObserveNotification(outcome string) {
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *LampMetrics) SetLamp(on bool) {
	if on {
		m.lamp.Set(1)
	} else {
		m.lamp.Set(0)
	}
}
