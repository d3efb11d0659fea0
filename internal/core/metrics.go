package core

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsTotal      *prometheus.CounterVec
	rowsTotal      *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	rollbacksTotal *prometheus.CounterVec
	stalledTotal   prometheus.Counter

	runDuration *prometheus.HistogramVec
	slotWait    prometheus.Histogram

	running prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		jobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "jobs_total",
			Help:      "Total number of import jobs by terminal status.",
		}, []string{"status"}),
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Total number of processed rows by outcome.",
		}, []string{"outcome"}),
		recordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of persisted records by kind.",
		}, []string{"kind"}),
		rollbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "rollbacks_total",
			Help:      "Total number of rollback attempts by result.",
		}, []string{"result"}),
		stalledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "stalled_jobs_total",
			Help:      "Total number of jobs failed by the watchdog.",
		}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		slotWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "slot_wait_seconds",
			Help:      "Time jobs waited for a concurrency slot.",
			Buckets:   []float64{0, 0.1, 1, 5, 30, 60, 300, 600},
		}),
		running: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "trackerb",
			Subsystem: "import",
			Name:      "running_jobs",
			Help:      "Current number of pipeline runs in this process.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func recordJobFinished(job *ImportJob, started time.Time) {
	m := getMetrics()
	status := string(job.Status)
	m.jobsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())

	c := job.Processing
	m.rowsTotal.WithLabelValues("success").Add(float64(c.SuccessfulRows))
	m.rowsTotal.WithLabelValues("error").Add(float64(c.ErrorRows))
	m.rowsTotal.WithLabelValues("skipped").Add(float64(c.SkippedRows))
	m.rowsTotal.WithLabelValues("duplicate").Add(float64(c.DuplicateRows))

	m.recordsTotal.WithLabelValues(string(KindPosition)).Add(float64(job.RecordsCount.Positions))
	m.recordsTotal.WithLabelValues(string(KindCashOperation)).Add(float64(job.RecordsCount.CashOperations))
	m.recordsTotal.WithLabelValues(string(KindPendingOrder)).Add(float64(job.RecordsCount.PendingOrders))
}

func observeSlotWait(d time.Duration) {
	getMetrics().slotWait.Observe(d.Seconds())
}

func recordRollback(result string) {
	getMetrics().rollbacksTotal.WithLabelValues(result).Inc()
}

func recordStalled() {
	getMetrics().stalledTotal.Inc()
}

func trackRunning() func() {
	g := getMetrics().running
	g.Inc()
	return g.Dec
}
