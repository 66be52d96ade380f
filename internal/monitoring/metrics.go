package monitoring

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// KubernetesLabels holds Kubernetes metadata labels
var (
	kubernetesNamespace = os.Getenv("KUBERNETES_NAMESPACE")
	kubernetesPodName   = os.Getenv("KUBERNETES_POD_NAME")
)

// getKubernetesLabels returns the Kubernetes labels for metrics
func getKubernetesLabels() prometheus.Labels {
	labels := prometheus.Labels{}

	if kubernetesNamespace != "" {
		labels["kubernetes_namespace"] = kubernetesNamespace
	}
	if kubernetesPodName != "" {
		labels["kubernetes_pod_name"] = kubernetesPodName
	}

	return labels
}

// Registry with Kubernetes labels
var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(prometheus.WrapRegistererWith(getKubernetesLabels(), registry))
)

// Prometheus metrics for the sample data generator and the stub data key service
var (
	// Generation metrics
	BatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_batches_total",
			Help: "Total number of generated batches",
		},
		[]string{"batch", "status"},
	)

	RecordsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_records_total",
			Help: "Total number of records written",
		},
		[]string{"batch"},
	)

	MutationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_mutations_total",
			Help: "Total number of mutated records written",
		},
		[]string{"mutation"},
	)

	BytesWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_bytes_written_total",
			Help: "Total bytes written to the output sink",
		},
		[]string{"sink", "file_type"},
	)

	// Data key metrics
	KeyFetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_key_fetches_total",
			Help: "Total number of data key fetches",
		},
		[]string{"source", "status"},
	)

	KeyFetchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdisd_key_fetch_duration_seconds",
			Help:    "Data key fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// Verification metrics
	VerifiedFilesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_verified_files_total",
			Help: "Total number of verified data files",
		},
		[]string{"status"},
	)

	// Stub data key service HTTP metrics
	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hdisd_dks_requests_total",
			Help: "Total number of data key service HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hdisd_dks_request_duration_seconds",
			Help:    "Data key service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	KeyEncryptorInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hdisd_key_encryptor_info",
			Help: "Information about the key encryption key in use",
		},
		[]string{"type", "fingerprint"},
	)
)

// Registry returns the registry all metrics are registered with
func Registry() *prometheus.Registry {
	return registry
}

// RecordKeyFetch records the outcome of a data key fetch
func RecordKeyFetch(source string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	KeyFetchesTotal.WithLabelValues(source, status).Inc()
	KeyFetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordBatch records a finished batch
func RecordBatch(batch string, records int, err error) {
	if err != nil {
		BatchesTotal.WithLabelValues(batch, "error").Inc()
		return
	}
	BatchesTotal.WithLabelValues(batch, "success").Inc()
	RecordsTotal.WithLabelValues(batch).Add(float64(records))
}

// RecordMutation records one mutated record
func RecordMutation(mutation string) {
	MutationsTotal.WithLabelValues(mutation).Inc()
}

// RecordBytesWritten records data written to a sink
func RecordBytesWritten(sink, fileType string, bytes int) {
	BytesWritten.WithLabelValues(sink, fileType).Add(float64(bytes))
}

// RecordVerifiedFile records the outcome of verifying one data file
func RecordVerifiedFile(ok bool) {
	status := "valid"
	if !ok {
		status = "invalid"
	}
	VerifiedFilesTotal.WithLabelValues(status).Inc()
}

// SetKeyEncryptorInfo publishes the active key encryption key
func SetKeyEncryptorInfo(encryptorType, fingerprint string) {
	KeyEncryptorInfo.WithLabelValues(encryptorType, fingerprint).Set(1)
}

// WriteToTextfile writes all metrics in the text exposition format,
// suitable for the node exporter textfile collector
func WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
