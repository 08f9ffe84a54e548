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
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordSignUp()
	RecordSignInFailure(reason string)
	RecordUpload(result string)
	RecordUploadBytes(size int64)
	RecordCatalogInsert(result string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// 結果ラベル
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultFailure  = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signUps        prometheus.Counter
	signInFailures *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	catalogInserts *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smolhub_signups_total",
			Help: "サインアップの合計数",
		}),
		signInFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smolhub_signin_failures_total",
			Help: "理由別のサインイン失敗数",
		}, []string{"reason"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smolhub_blob_uploads_total",
			Help: "結果別のモデルファイルアップロード数",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smolhub_blob_upload_bytes_total",
			Help: "アップロードされたモデルファイルの合計バイト数",
		}),
		catalogInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smolhub_catalog_inserts_total",
			Help: "結果別のカタログ行登録数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smolhub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "smolhub_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signUps,
		c.signInFailures,
		c.uploads,
		c.uploadBytes,
		c.catalogInserts,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSignUp はサインアップを記録する。
func (c *Collector) RecordSignUp() {
	c.signUps.Inc()
}

// RecordSignInFailure はサインイン失敗を記録する。
func (c *Collector) RecordSignInFailure(reason string) {
	c.signInFailures.WithLabelValues(reason).Inc()
}

// RecordUpload はモデルファイルのアップロード結果を記録する。
func (c *Collector) RecordUpload(result string) {
	c.uploads.WithLabelValues(result).Inc()
}

// RecordUploadBytes はアップロードされたバイト数を記録する。
func (c *Collector) RecordUploadBytes(size int64) {
	c.uploadBytes.Add(float64(size))
}

// RecordCatalogInsert はカタログ行の登録結果を記録する。
func (c *Collector) RecordCatalogInsert(result string) {
	c.catalogInserts.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordSignUp() {}
func (Nop) RecordSignInFailure(string) {}
func (Nop) RecordUpload(string) {}
func (Nop) RecordUploadBytes(int64) {}
func (Nop) RecordCatalogInsert(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
