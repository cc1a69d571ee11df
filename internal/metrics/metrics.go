// Package metrics exposes controller state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/tent-controller/internal/device"
)

const namespace = "tent"

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	available   *prometheus.GaugeVec
	humidity    prometheus.Gauge
	target      prometheus.Gauge
	temperature *prometheus.GaugeVec
	powerW      prometheus.Gauge
	todayKWh    prometheus.Gauge
	fanSpeed    prometheus.Gauge
	fanOverride prometheus.Gauge
	deviceOn    *prometheus.GaugeVec
	dutyPercent *prometheus.GaugeVec
	lastTick    prometheus.Gauge

	ticks         prometheus.Counter
	actuations    *prometheus.CounterVec
	notifications *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "device_available",
			Help: "1 if the device answered on the last tick",
		}, []string{"device"}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "humidity_percent",
			Help: "Relative humidity reported by the humidifier",
		}),
		target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "humidity_target_percent",
			Help: "Humidifier target humidity",
		}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "temperature_celsius",
			Help: "Temperature probe reading",
		}, []string{"sensor"}),
		powerW: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "power_watts",
			Help: "Instantaneous power draw",
		}),
		todayKWh: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "energy_today_kwh",
			Help: "Energy used today",
		}),
		fanSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fan_speed_percent",
			Help: "Exhaust fan speed",
		}),
		fanOverride: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fan_override",
			Help: "1 while the humidity override holds the fan at full speed",
		}),
		deviceOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "device_on",
			Help: "1 if the device is switched on",
		}, []string{"device"}),
		dutyPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "humidifier_duty_percent",
			Help: "Share of time the humidifier was misting",
		}, []string{"window"}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Control ticks run",
		}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actuations_total",
			Help: "Commands sent to devices",
		}, []string{"device", "action", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notifications emitted",
		}, []string{"tag", "result"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Non-fatal errors by component",
		}, []string{"component"}),
	}

	m.registry.MustRegister(
		m.available, m.humidity, m.target, m.temperature, m.powerW, m.todayKWh,
		m.fanSpeed, m.fanOverride, m.deviceOn, m.dutyPercent, m.lastTick,
		m.ticks, m.actuations, m.notifications, m.errors,
	)
	return m
}

// Registry returns the private registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveSnapshot records one tick's device readings. Gauges of unavailable
// devices keep their last value; device_available says whether to trust them.
func (m *Metrics) ObserveSnapshot(s device.Snapshot) {
	m.available.WithLabelValues(string(device.KindLight)).Set(boolGauge(s.Light.Available))
	m.available.WithLabelValues(string(device.KindHumidifier)).Set(boolGauge(s.Humidifier.Available))
	m.available.WithLabelValues(string(device.KindFan)).Set(boolGauge(s.Fan.Available))
	m.available.WithLabelValues(string(device.KindHeater)).Set(boolGauge(s.Heater.Available))
	m.available.WithLabelValues(string(device.KindTemperature)).Set(boolGauge(s.Temperature.Available))
	m.available.WithLabelValues(string(device.KindMeter)).Set(boolGauge(s.Meter.Available))

	if s.Light.Available {
		m.deviceOn.WithLabelValues(string(device.KindLight)).Set(boolGauge(s.Light.Value.On))
	}
	if s.Heater.Available {
		m.deviceOn.WithLabelValues(string(device.KindHeater)).Set(boolGauge(s.Heater.Value.On))
	}
	if h := s.Humidifier; h.Available {
		m.deviceOn.WithLabelValues(string(device.KindHumidifier)).Set(boolGauge(h.Value.Working))
		if h.Value.HasHumidity {
			m.humidity.Set(h.Value.Humidity)
		}
		if h.Value.HasTarget {
			m.target.Set(h.Value.Target)
		}
	}
	if s.Fan.Available {
		m.fanSpeed.Set(float64(s.Fan.Value.Speed))
	}
	if s.Temperature.Available {
		for _, sensor := range s.Temperature.Value.Sensors {
			if !sensor.Valid {
				continue
			}
			label := sensor.Name
			if label == "" {
				label = sensor.Address
			}
			m.temperature.WithLabelValues(label).Set(sensor.Celsius)
		}
	}
	if s.Meter.Available {
		m.powerW.Set(s.Meter.Value.PowerW)
		m.todayKWh.Set(s.Meter.Value.TodayKWh)
	}
}

// SetFanOverride records the humidity override state.
func (m *Metrics) SetFanOverride(on bool) { m.fanOverride.Set(boolGauge(on)) }

// SetDuty records the humidifier duty-cycle percentages.
func (m *Metrics) SetDuty(day, week, allTime float64) {
	m.dutyPercent.WithLabelValues("day").Set(day)
	m.dutyPercent.WithLabelValues("week").Set(week)
	m.dutyPercent.WithLabelValues("all_time").Set(allTime)
}

// TickDone counts a completed tick at unix time ts.
func (m *Metrics) TickDone(ts int64) {
	m.ticks.Inc()
	m.lastTick.Set(float64(ts))
}

// Actuation counts one device command.
func (m *Metrics) Actuation(dev device.Kind, action string, err error) {
	m.actuations.WithLabelValues(string(dev), action, result(err)).Inc()
}

// Notification counts one emitted notification.
func (m *Metrics) Notification(tag string, err error) {
	m.notifications.WithLabelValues(tag, result(err)).Inc()
}

// Error counts a non-fatal error in component.
func (m *Metrics) Error(component string) {
	m.errors.WithLabelValues(component).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
