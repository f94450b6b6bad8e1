// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層およびミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration()
	RecordLogin(method string)
	RecordLoginFailure(method string)
	RecordReconcileRetry()
	RecordPetUpdate()
	RecordVerifyLatency(duration time.Duration)
	ObserveHTTPStatus(method, path string, status int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations   prometheus.Counter
	logins          *prometheus.CounterVec
	loginFailures   *prometheus.CounterVec
	reconcileRetry  prometheus.Counter
	petUpdates      prometheus.Counter
	verifyLatency   prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tamago_registration_total",
			Help: "アカウント登録の合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamago_login_total",
			Help: "ログイン成功の合計数（方式別）",
		}, []string{"method"}),
		loginFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamago_login_failure_total",
			Help: "ログイン失敗の合計数（方式別）",
		}, []string{"method"}),
		reconcileRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tamago_reconcile_retry_total",
			Help: "連携identity照合の再試行回数",
		}),
		petUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tamago_pet_update_total",
			Help: "ペット状態更新の合計数",
		}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tamago_verify_latency_seconds",
			Help:    "IDトークン検証のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tamago_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tamago_sessions_cleaned_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.loginFailures,
		c.reconcileRetry,
		c.petUpdates,
		c.verifyLatency,
		c.httpStatus,
		c.sessionsCleaned,
	)

	return c
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン成功を記録する。methodはlocalまたはfederated。
func (c *Collector) RecordLogin(method string) {
	c.logins.WithLabelValues(method).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(method string) {
	c.loginFailures.WithLabelValues(method).Inc()
}

// RecordReconcileRetry は照合の再試行を記録する。
func (c *Collector) RecordReconcileRetry() {
	c.reconcileRetry.Inc()
}

// RecordPetUpdate はペット状態更新を記録する。
func (c *Collector) RecordPetUpdate() {
	c.petUpdates.Inc()
}

// RecordVerifyLatency はIDトークン検証のレイテンシを記録する。
func (c *Collector) RecordVerifyLatency(duration time.Duration) {
	c.verifyLatency.Observe(duration.Seconds())
}

// ObserveHTTPStatus はレスポンスのステータスコードを記録する。
// カーディナリティを抑えるためpathはラベルに含めない。
func (c *Collector) ObserveHTTPStatus(method, path string, status int) {
	c.httpStatus.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// RecordSessionsCleaned は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
