package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts processed notifications by outcome status.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attensync_scans_total",
		Help: "RFID notifications processed, labeled by outcome status.",
	}, []string{"status"})

	// ReconnectsTotal counts locate/connect cycles after the first.
	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attensync_reconnects_total",
		Help: "Reader reconnect cycles performed by the supervisor.",
	})

	// DeviceConnected is 1 while a session holds a live connection.
	DeviceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attensync_device_connected",
		Help: "Whether the ESP32 reader is currently connected.",
	})
)
