package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics 账本相关指标
type LedgerMetrics struct {
	issuerRequests *prometheus.CounterVec
	issuerLatency  *prometheus.HistogramVec
	credsStages    *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	skuOrders      *prometheus.CounterVec
	transfers      *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger 返回延迟初始化的全局指标
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			issuerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "issuer",
				Name:      "requests_total",
				Help:      "Issuer requests segmented by method and status.",
			}, []string{"method", "status"}),
			issuerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ledger",
				Subsystem: "issuer",
				Name:      "request_duration_seconds",
				Help:      "Issuer request latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			credsStages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "creds",
				Name:      "stage_total",
				Help:      "Credential batch stage executions segmented by stage and result.",
			}, []string{"stage", "result"}),
			fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "promotion",
				Name:      "fetch_total",
				Help:      "Promotion list fetches segmented by source and result.",
			}, []string{"source", "result"}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "promotion",
				Name:      "status_transitions_total",
				Help:      "Promotion status transitions segmented by target status.",
			}, []string{"status"}),
			skuOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "sku",
				Name:      "orders_total",
				Help:      "SKU order payments segmented by payment path and result.",
			}, []string{"path", "result"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ledger",
				Subsystem: "tokens",
				Name:      "transfers_total",
				Help:      "Token transfers segmented by result.",
			}, []string{"result"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.issuerRequests,
			ledgerRegistry.issuerLatency,
			ledgerRegistry.credsStages,
			ledgerRegistry.fetches,
			ledgerRegistry.transitions,
			ledgerRegistry.skuOrders,
			ledgerRegistry.transfers,
		)
	})
	return ledgerRegistry
}

// ObserveIssuerRequest 记录发行服务请求，status 为 0 表示传输失败
func (m *LedgerMetrics) ObserveIssuerRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.issuerRequests.WithLabelValues(method, label).Inc()
	m.issuerLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveCredsStage 记录凭证阶段执行结果
func (m *LedgerMetrics) ObserveCredsStage(stage, result string) {
	if m == nil {
		return
	}
	m.credsStages.WithLabelValues(stage, result).Inc()
}

// ObserveFetch 记录活动拉取
func (m *LedgerMetrics) ObserveFetch(source, result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(source, result).Inc()
}

// ObserveTransition 记录活动状态迁移
func (m *LedgerMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// ObserveSKUOrder 记录 SKU 支付
func (m *LedgerMetrics) ObserveSKUOrder(path, result string) {
	if m == nil {
		return
	}
	m.skuOrders.WithLabelValues(path, result).Inc()
}

// ObserveTransfer 记录代币兑入
func (m *LedgerMetrics) ObserveTransfer(result string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(result).Inc()
}
