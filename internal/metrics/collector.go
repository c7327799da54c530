// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 会话指标
	sessionsActive prometheus.Gauge
	tabOperations  *prometheus.CounterVec

	// Screencast 指标
	screencastFrames prometheus.Counter
	screencastAcks   *prometheus.CounterVec

	// 工作流指标
	workflowMutations *prometheus.CounterVec

	// 回放指标
	interpretationTransitions *prometheus.CounterVec
	runsTotal                 *prometheus.CounterVec
	runDuration               prometheus.Histogram

	// 存储指标
	storageDuration *prometheus.HistogramVec
	storageErrors   *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 会话指标
	c.sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions_active",
			Help:      "Number of registered remote browser sessions",
		},
	)

	c.tabOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tab_operations_total",
			Help:      "Total number of tab operations",
		},
		[]string{"operation", "result"}, // result: ok, rejected, error
	)

	// Screencast 指标
	c.screencastFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screencast_frames_total",
			Help:      "Total number of screencast frames delivered",
		},
	)

	c.screencastAcks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screencast_acks_total",
			Help:      "Total number of screencast frame acknowledgements",
		},
		[]string{"result"},
	)

	// 工作流指标
	c.workflowMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_mutations_total",
			Help:      "Total number of workflow store mutations",
		},
		[]string{"operation"},
	)

	// 回放指标
	c.interpretationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpretation_state_transitions_total",
			Help:      "Total number of interpretation state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of unattended workflow runs",
		},
		[]string{"status"},
	)

	c.runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Unattended run duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// 存储指标
	c.storageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	c.storageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of failed storage operations",
		},
		[]string{"backend", "operation"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🖥️ 会话与 Screencast 指标记录
// =============================================================================

// SetActiveSessions 设置活跃会话数
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}

// RecordTabOperation 记录标签页操作
func (c *Collector) RecordTabOperation(operation, result string) {
	if c == nil {
		return
	}
	c.tabOperations.WithLabelValues(operation, result).Inc()
}

// RecordScreencastFrame 记录一帧推送
func (c *Collector) RecordScreencastFrame() {
	if c == nil {
		return
	}
	c.screencastFrames.Inc()
}

// RecordScreencastAck 记录帧确认结果
func (c *Collector) RecordScreencastAck(err error) {
	if c == nil {
		return
	}
	c.screencastAcks.WithLabelValues(result(err)).Inc()
}

// =============================================================================
// 📝 工作流与回放指标记录
// =============================================================================

// RecordWorkflowMutation 记录工作流变更
func (c *Collector) RecordWorkflowMutation(operation string) {
	if c == nil {
		return
	}
	c.workflowMutations.WithLabelValues(operation).Inc()
}

// RecordInterpretationTransition 记录解释器状态转换
func (c *Collector) RecordInterpretationTransition(fromState, toState string) {
	if c == nil {
		return
	}
	c.interpretationTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordRun 记录无人值守运行
func (c *Collector) RecordRun(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 存储与数据库指标记录
// =============================================================================

// RecordStorageOperation 记录存储操作
func (c *Collector) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		c.storageErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
