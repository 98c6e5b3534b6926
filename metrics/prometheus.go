// Package metrics 提供基于 Prometheus 的线段树运行指标采集与暴露。
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了独立的 Prometheus 注册表及预定义的线段树指标。
// 所有方法对 nil 接收者安全，未启用指标时调用方可直接传 nil。
type Metrics struct {
	registry *prometheus.Registry // 内部独立的 Prometheus 注册中心

	OperationsTotal   *prometheus.CounterVec   // 操作总量 (维度: op)
	OperationDuration *prometheus.HistogramVec // 单次操作耗时分布 (维度: op)
	TreeSize          prometheus.Gauge         // 当前线段树的元素个数
	TreeDepth         prometheus.Gauge         // 当前线段树的树高
	LazyPushes        prometheus.Counter       // 懒标记下推次数
	BuildInfo         *prometheus.GaugeVec     // 构建信息
}

// NewMetrics 初始化并返回一个新的指标采集器，自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.OperationsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "rangemax_operations_total",
		Help: "Total number of tree operations",
	}, []string{"op"})

	m.OperationDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rangemax_operation_duration_seconds",
		Help:    "Tree operation latency in seconds",
		Buckets: prometheus.ExponentialBuckets(1e-7, 4, 10),
	}, []string{"op"})

	m.TreeSize = m.NewGauge(prometheus.GaugeOpts{
		Name: "rangemax_tree_size",
		Help: "Number of elements in the tree",
	})

	m.TreeDepth = m.NewGauge(prometheus.GaugeOpts{
		Name: "rangemax_tree_depth",
		Help: "Height of the tree",
	})

	m.LazyPushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rangemax_lazy_pushes_total",
		Help: "Number of pending clamps pushed one level down",
	})
	reg.MustRegister(m.LazyPushes)

	slog.Debug("metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGauge 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	m.registry.MustRegister(g)
	return g
}

// NewGaugeVec 创建并注册一个新的带维度仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// ObserveOperation 记录一次操作及其耗时。
func (m *Metrics) ObserveOperation(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveTree 记录线段树的规模与树高。
func (m *Metrics) ObserveTree(size, depth int) {
	if m == nil {
		return
	}
	m.TreeSize.Set(float64(size))
	m.TreeDepth.Set(float64(depth))
}

// AddLazyPushes 累加懒标记下推次数。
func (m *Metrics) AddLazyPushes(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.LazyPushes.Add(float64(n))
}

// Registry 返回内部注册表，用于测试或自定义采集。nil 接收者返回 nil。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回用于暴露指标的 HTTP 处理器。nil 接收者返回 404 处理器。
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在指定端口与路径上暴露指标，阻塞直到 ctx 结束后优雅关闭。
// nil 接收者不启动服务，直接返回 nil。
func (m *Metrics) Serve(ctx context.Context, port, path string) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown metrics server", "error", err)
		return err
	}
	return nil
}
