package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 产能规划服务的 Prometheus 指标
// 所有方法对 nil 接收者安全，测试和命令行工具可以不启用指标
type Registry struct {
	reg *prometheus.Registry

	Edits         *prometheus.CounterVec
	SaveWrites    *prometheus.CounterVec
	SaveDuration  *prometheus.HistogramVec
	APIRequests   *prometheus.CounterVec
	APILatency    *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
	CacheLookups  *prometheus.CounterVec
	OpenViews     prometheus.Gauge
	ExportsServed prometheus.Counter
}

// New 创建并注册全部指标
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		Edits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacityplanner_edits_total",
				Help: "Cell edits by table and outcome",
			},
			[]string{"table", "outcome"},
		),
		SaveWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacityplanner_save_writes_total",
				Help: "Cell writes issued by save, by group and result",
			},
			[]string{"group", "result"},
		),
		SaveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capacityplanner_save_duration_seconds",
				Help:    "Duration of a save batch",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		),
		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacityplanner_data_api_requests_total",
				Help: "Data API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		APILatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capacityplanner_data_api_latency_seconds",
				Help:    "Data API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "capacityplanner_data_api_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacityplanner_cache_lookups_total",
				Help: "Option cache lookups by result",
			},
			[]string{"result"},
		),
		OpenViews: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "capacityplanner_open_views",
				Help: "Planner views currently open",
			},
		),
		ExportsServed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "capacityplanner_exports_total",
				Help: "Spreadsheet exports generated",
			},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Edits,
		r.SaveWrites,
		r.SaveDuration,
		r.APIRequests,
		r.APILatency,
		r.BreakerState,
		r.CacheLookups,
		r.OpenViews,
		r.ExportsServed,
	)
	return r
}

// Handler /metrics 处理器
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordEdit 记录一次编辑
func (r *Registry) RecordEdit(table, outcome string) {
	if r == nil {
		return
	}
	r.Edits.WithLabelValues(table, outcome).Inc()
}

// RecordSave 记录一次保存
func (r *Registry) RecordSave(group, result string, writes int) {
	if r == nil || writes == 0 {
		return
	}
	r.SaveWrites.WithLabelValues(group, result).Add(float64(writes))
}

// ObserveSave 记录保存耗时
func (r *Registry) ObserveSave(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.SaveDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordAPIRequest 记录数据接口请求
func (r *Registry) RecordAPIRequest(endpoint, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.APIRequests.WithLabelValues(endpoint, status).Inc()
	r.APILatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetBreakerState 记录熔断器状态
func (r *Registry) SetBreakerState(name string, state int) {
	if r == nil {
		return
	}
	r.BreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCacheLookup 记录缓存命中情况
func (r *Registry) RecordCacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}

// ViewOpened 打开视图
func (r *Registry) ViewOpened() {
	if r != nil {
		r.OpenViews.Inc()
	}
}

// ViewClosed 关闭视图
func (r *Registry) ViewClosed() {
	if r != nil {
		r.OpenViews.Dec()
	}
}

// ExportServed 记录导出
func (r *Registry) ExportServed() {
	if r != nil {
		r.ExportsServed.Inc()
	}
}
