package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 样本拒绝原因
const (
	RejectLowAccuracy = "low_accuracy"
	RejectInactive    = "inactive"
	RejectFeedFull    = "feed_full"
)

// Collector 跟踪指标
type Collector struct {
	reg *prometheus.Registry

	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsStopped *prometheus.CounterVec // reason: user|fault|replaced|shutdown

	SamplesAccepted prometheus.Counter
	SamplesRejected *prometheus.CounterVec // reason label
	DistanceKm      prometheus.Counter

	ETARefreshes *prometheus.CounterVec // source: remote|fallback

	LivePublished     *prometheus.CounterVec // op label
	LivePublishErrors *prometheus.CounterVec // op label
	LiveDropped       prometheus.Counter
}

// NewCollector 创建并注册指标
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "buskru_active_sessions",
			Help: "Number of active tracking sessions (0 or 1).",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buskru_sessions_started_total",
			Help: "Total tracking sessions started.",
		}),
		SessionsStopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buskru_sessions_stopped_total",
			Help: "Total tracking sessions stopped.",
		}, []string{"reason"}),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buskru_samples_accepted_total",
			Help: "Location samples that passed the accuracy gate.",
		}),
		SamplesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buskru_samples_rejected_total",
			Help: "Location samples discarded before processing.",
		}, []string{"reason"}),
		DistanceKm: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buskru_distance_km_total",
			Help: "Distance accumulated across sessions in kilometers.",
		}),
		ETARefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buskru_eta_refreshes_total",
			Help: "ETA refreshes by source.",
		}, []string{"source"}),
		LivePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buskru_live_published_total",
			Help: "Live record writes delivered.",
		}, []string{"op"}),
		LivePublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buskru_live_publish_errors_total",
			Help: "Live record writes that failed.",
		}, []string{"op"}),
		LiveDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buskru_live_dropped_total",
			Help: "Live record writes dropped because the queue was full or closed.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions, c.SessionsStarted, c.SessionsStopped,
		c.SamplesAccepted, c.SamplesRejected, c.DistanceKm,
		c.ETARefreshes,
		c.LivePublished, c.LivePublishErrors, c.LiveDropped,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// 以下方法允许 nil Collector，方便测试中不注入指标

func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.SessionsStarted.Inc()
	c.ActiveSessions.Set(1)
}

func (c *Collector) SessionStopped(reason string) {
	if c == nil {
		return
	}
	c.SessionsStopped.WithLabelValues(reason).Inc()
	c.ActiveSessions.Set(0)
}

func (c *Collector) SampleAccepted(addedKm float64) {
	if c == nil {
		return
	}
	c.SamplesAccepted.Inc()
	if addedKm > 0 {
		c.DistanceKm.Add(addedKm)
	}
}

func (c *Collector) SampleRejected(reason string) {
	if c == nil {
		return
	}
	c.SamplesRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) ETARefreshed(source string) {
	if c == nil {
		return
	}
	c.ETARefreshes.WithLabelValues(source).Inc()
}

func (c *Collector) LiveResult(op string, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.LivePublishErrors.WithLabelValues(op).Inc()
		return
	}
	c.LivePublished.WithLabelValues(op).Inc()
}

func (c *Collector) LiveDrop() {
	if c == nil {
		return
	}
	c.LiveDropped.Inc()
}
