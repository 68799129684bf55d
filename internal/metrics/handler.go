package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics summary endpoint.
type Summary struct {
	Mode       string          `json:"mode"`
	Gateway    httpSummary     `json:"gateway"`
	Admin      httpSummary     `json:"admin"`
	Admission  admissionInfo   `json:"admission"`
	Upstream   upstreamInfo    `json:"upstream"`
	Settlement settlementInfo  `json:"settlement"`
	DB         dbInfo          `json:"db"`
	Server     serverInfo      `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type admissionInfo struct {
	Blocked        float64 `json:"blocked"`
	Failed         float64 `json:"failed"`
	Succeeded      float64 `json:"succeeded"`
	Rejections     float64 `json:"rejections"`
	Redactions     float64 `json:"redactions"`
	ActiveRequests float64 `json:"activeRequests"`
}

type upstreamInfo struct {
	P50Duration float64 `json:"p50Duration"`
	P95Duration float64 `json:"p95Duration"`
	Errors      float64 `json:"errors"`
}

type settlementInfo struct {
	SettlementFailures float64 `json:"settlementFailures"`
	AuditWriteFailures float64 `json:"auditWriteFailures"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// SummaryHandler returns an http.HandlerFunc that serves live metrics as JSON.
func (m *Metrics) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	summary := Summary{
		Mode: "live",
		Gateway: httpSummary{
			TotalRequests: sumCounterWithLabel(fam["promptgate_http_requests_total"], "kind", "gateway"),
			ErrorRate:     computeErrorRateWithLabel(fam["promptgate_http_requests_total"], "kind", "gateway"),
			P50Latency:    histogramPercentileWithLabel(fam["promptgate_http_request_duration_seconds"], 0.50, "kind", "gateway"),
			P95Latency:    histogramPercentileWithLabel(fam["promptgate_http_request_duration_seconds"], 0.95, "kind", "gateway"),
			P99Latency:    histogramPercentileWithLabel(fam["promptgate_http_request_duration_seconds"], 0.99, "kind", "gateway"),
		},
		Admin: httpSummary{
			TotalRequests: sumCounterWithLabel(fam["promptgate_http_requests_total"], "kind", "admin"),
			ErrorRate:     computeErrorRateWithLabel(fam["promptgate_http_requests_total"], "kind", "admin"),
			P50Latency:    histogramPercentileWithLabel(fam["promptgate_http_request_duration_seconds"], 0.50, "kind", "admin"),
			P95Latency:    histogramPercentileWithLabel(fam["promptgate_http_request_duration_seconds"], 0.95, "kind", "admin"),
			P99Latency:    histogramPercentileWithLabel(fam["promptgate_http_request_duration_seconds"], 0.99, "kind", "admin"),
		},
		Admission: admissionInfo{
			Blocked:        counterWithLabel(fam["promptgate_admission_outcomes_total"], "status", "BLOCKED"),
			Failed:         counterWithLabel(fam["promptgate_admission_outcomes_total"], "status", "FAILED"),
			Succeeded:      counterWithLabel(fam["promptgate_admission_outcomes_total"], "status", "SUCCESS"),
			Rejections:     sumCounter(fam["promptgate_admission_rejections_total"]),
			Redactions:     sumCounter(fam["promptgate_redactions_total"]),
			ActiveRequests: gaugeValue(fam["promptgate_active_requests"]),
		},
		Upstream: upstreamInfo{
			P50Duration: histogramPercentile(fam["promptgate_upstream_duration_seconds"], 0.50),
			P95Duration: histogramPercentile(fam["promptgate_upstream_duration_seconds"], 0.95),
			Errors:      sumCounter(fam["promptgate_upstream_errors_total"]),
		},
		Settlement: settlementInfo{
			SettlementFailures: counterValue(fam["promptgate_settlement_failures_total"]),
			AuditWriteFailures: counterValue(fam["promptgate_audit_write_failures_total"]),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["promptgate_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["promptgate_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["promptgate_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["promptgate_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["promptgate_server_start_time_seconds"]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func sumCounterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func computeErrorRateWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if !hasLabel(m, labelName, labelValue) || m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

func histogramPercentileWithLabel(f *dto.MetricFamily, q float64, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)
	for _, m := range f.GetMetric() {
		if !hasLabel(m, labelName, labelValue) {
			continue
		}
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	return percentileFromBuckets(bucketMap, totalCount, q)
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)
	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	return percentileFromBuckets(bucketMap, totalCount, q)
}

func percentileFromBuckets(bucketMap map[float64]uint64, totalCount uint64, q float64) float64 {
	if totalCount == 0 {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Fall back to the last finite bucket upper bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
