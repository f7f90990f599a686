package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec
	slowQueries     *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 业务指标
	emergencyReports *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	safetyAlerts     *prometheus.CounterVec
	alertsExpired    prometheus.Counter
}

// NewMetrics 在指定的 Registerer 上注册指标，测试中传入独立的 Registry
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		dbQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "table"}),

		slowQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		}, []string{"operation", "table"}),

		cacheHitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		}, []string{"cache"}),

		cacheMissesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		}, []string{"cache"}),

		emergencyReports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_reports_total",
			Help: "Emergency reports raised",
		}, []string{"type", "severity"}),

		dispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_dispatch_total",
			Help: "Notification dispatch attempts by channel and result",
		}, []string{"channel", "result"}),

		safetyAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alerts_total",
			Help: "Community safety alerts reported",
		}, []string{"type", "severity"}),

		alertsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "safety_alerts_expired_total",
			Help: "Safety alerts deactivated by the expiry job",
		}),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery 记录数据库查询指标
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, slow bool) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if slow {
		m.slowQueries.WithLabelValues(operation, table).Inc()
	}
}

// RecordCache 记录缓存命中或未命中
func (m *Metrics) RecordCache(name string, hit bool) {
	if hit {
		m.cacheHitsTotal.WithLabelValues(name).Inc()
	} else {
		m.cacheMissesTotal.WithLabelValues(name).Inc()
	}
}

// RecordEmergency 记录新建的紧急报告
func (m *Metrics) RecordEmergency(emergencyType, severity string) {
	m.emergencyReports.WithLabelValues(emergencyType, severity).Inc()
}

// RecordDispatch 记录通知渠道的发送结果
func (m *Metrics) RecordDispatch(channel string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.dispatchTotal.WithLabelValues(channel, result).Inc()
}

// RecordSafetyAlert 记录用户上报的安全警报
func (m *Metrics) RecordSafetyAlert(alertType, severity string) {
	m.safetyAlerts.WithLabelValues(alertType, severity).Inc()
}

// AddExpiredAlerts 记录过期下线的警报数量
func (m *Metrics) AddExpiredAlerts(n int64) {
	if n > 0 {
		m.alertsExpired.Add(float64(n))
	}
}
