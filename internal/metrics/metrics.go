package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CheckIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classattend", Name: "checkins_total", Help: "Check-in attempts by outcome code",
	}, []string{"outcome"})
	DeviceChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classattend", Name: "device_checks_total", Help: "Device binding decisions",
	}, []string{"decision"})
	DeviceSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classattend", Name: "device_bindings_swept_total", Help: "Expired device bindings removed",
	})
	RosterRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classattend", Name: "roster_rows_total", Help: "Roster rows processed by result",
	}, []string{"result"})
	Exports = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "classattend", Name: "exports_total", Help: "Monthly reports exported",
	})
	ExportBuild = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classattend", Name: "export_build_seconds", Help: "Time spent building a monthly report",
		Buckets: prometheus.DefBuckets,
	})
	LiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "classattend", Name: "live_summary_subscribers", Help: "Open live summary streams",
	})
	QueueJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classattend", Name: "queue_jobs_total", Help: "Background jobs handled by type and result",
	}, []string{"type", "result"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "classattend", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(CheckIns, DeviceChecks, DeviceSwept, RosterRows, Exports,
		ExportBuild, LiveSubscribers, QueueJobs, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

func ObserveExport(d time.Duration) {
	Exports.Inc()
	ExportBuild.Observe(d.Seconds())
}
