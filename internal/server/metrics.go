package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melbridge/melbridge/internal/fleet"
	"github.com/melbridge/melbridge/internal/melcloud"
)

// MetricsHandler exposes the Prometheus registry.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// FleetCollector reads availability and sensor values straight off the
// wrapped devices at scrape time, so metrics always reflect the wrappers'
// last known-good state.
type FleetCollector struct {
	wrappers []*fleet.Wrapper

	available   *prometheus.Desc
	roomTemp    *prometheus.Desc
	outdoorTemp *prometheus.Desc
	tankTemp    *prometheus.Desc
}

func NewFleetCollector(f fleet.Fleet) *FleetCollector {
	labels := []string{"device", "kind"}
	return &FleetCollector{
		wrappers: f.Devices(),
		available: prometheus.NewDesc("melbridge_device_available",
			"Whether the device responded to its last poll.", labels, nil),
		roomTemp: prometheus.NewDesc("melbridge_room_temperature_celsius",
			"Measured room temperature.", labels, nil),
		outdoorTemp: prometheus.NewDesc("melbridge_outdoor_temperature_celsius",
			"Measured outdoor temperature.", labels, nil),
		tankTemp: prometheus.NewDesc("melbridge_tank_temperature_celsius",
			"Measured hot water tank temperature.", labels, nil),
	}
}

func (c *FleetCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.available
	ch <- c.roomTemp
	ch <- c.outdoorTemp
	ch <- c.tankTemp
}

func (c *FleetCollector) Collect(ch chan<- prometheus.Metric) {
	for _, w := range c.wrappers {
		name, kind := w.Name(), w.Kind()

		up := 0.0
		if w.Available() {
			up = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, up, name, kind)

		switch dev := w.Device().(type) {
		case *melcloud.AtaDevice:
			emitTemp(ch, c.roomTemp, dev.RoomTemperature(), name, kind)
		case *melcloud.AtwDevice:
			emitTemp(ch, c.outdoorTemp, dev.OutdoorTemperature(), name, kind)
			emitTemp(ch, c.tankTemp, dev.TankTemperature(), name, kind)
		case *melcloud.ErvDevice:
			emitTemp(ch, c.roomTemp, dev.RoomTemperature(), name, kind)
			emitTemp(ch, c.outdoorTemp, dev.OutdoorTemperature(), name, kind)
		}
	}
}

func emitTemp(ch chan<- prometheus.Metric, desc *prometheus.Desc, v *float64, labels ...string) {
	if v == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, *v, labels...)
}
