package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/plumed-nebula/yana/internal/instance"
)

type Options struct {
	Labels prometheus.Labels
}

func copyLabels(p prometheus.Labels) prometheus.Labels {
	x := prometheus.Labels{}
	for k, v := range p {
		x[k] = v
	}

	return x
}

func New(o Options) instance.Prometheus {
	totalSuccessfulBatches := copyLabels(o.Labels)
	totalFailedBatches := copyLabels(o.Labels)
	currentBatches := copyLabels(o.Labels)
	batchDurationSeconds := copyLabels(o.Labels)
	totalBytesDownloaded := copyLabels(o.Labels)
	totalItemsProcessed := copyLabels(o.Labels)
	downloadFileDuration := copyLabels(o.Labels)
	encodeImageDuration := copyLabels(o.Labels)
	makeThumbnailDuration := copyLabels(o.Labels)
	cacheHits := copyLabels(o.Labels)
	cacheMisses := copyLabels(o.Labels)
	inputFileTypes := copyLabels(o.Labels)

	totalSuccessfulBatches["state"] = "successful"
	totalFailedBatches["state"] = "failed"

	cacheHits["state"] = "hit"
	cacheMisses["state"] = "miss"

	registry := prometheus.NewRegistry()

	m := &Instance{
		registry: registry,
		totalSuccessfulBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "total_batches",
			Help:        "The total number of successful batches",
			ConstLabels: totalSuccessfulBatches,
		}),
		totalFailedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "total_batches",
			Help:        "The total number of failed batches",
			ConstLabels: totalFailedBatches,
		}),
		currentBatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "yana",
			Name:        "current_batches",
			Help:        "The current number of running batches",
			ConstLabels: currentBatches,
		}),
		batchDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "yana",
			Name:        "batch_duration_seconds",
			Help:        "The seconds spent running batches",
			ConstLabels: batchDurationSeconds,
		}),
		downloadFileDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "yana",
			Name:        "download_file_duration_seconds",
			Help:        "The seconds spent downloading files",
			ConstLabels: downloadFileDuration,
		}),
		encodeImageDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "yana",
			Name:        "encode_image_duration_seconds",
			Help:        "The seconds spent encoding images",
			ConstLabels: encodeImageDuration,
		}),
		makeThumbnailDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "yana",
			Name:        "make_thumbnail_duration_seconds",
			Help:        "The seconds spent producing thumbnails",
			ConstLabels: makeThumbnailDuration,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "thumbnail_cache_lookups",
			Help:        "The total number of thumbnail cache hits",
			ConstLabels: cacheHits,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "thumbnail_cache_lookups",
			Help:        "The total number of thumbnail cache misses",
			ConstLabels: cacheMisses,
		}),
		totalBytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "total_bytes_downloaded",
			Help:        "The total number of bytes downloaded",
			ConstLabels: totalBytesDownloaded,
		}),
		totalItemsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "total_items",
			Help:        "The total number of batch items processed",
			ConstLabels: totalItemsProcessed,
		}),
		inputFileTypes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "yana",
			Name:        "input_file_types",
			Help:        "The content types of processed inputs",
			ConstLabels: inputFileTypes,
		}, []string{"content_type"}),
	}

	registry.MustRegister(collectors.NewGoCollector())
	m.Register(registry)

	return m
}

type Instance struct {
	registry *prometheus.Registry

	totalSuccessfulBatches prometheus.Counter
	totalFailedBatches     prometheus.Counter
	currentBatches         prometheus.Gauge
	batchDurationSeconds   prometheus.Histogram

	downloadFileDurationSeconds  prometheus.Histogram
	encodeImageDurationSeconds   prometheus.Histogram
	makeThumbnailDurationSeconds prometheus.Histogram

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	totalBytesDownloaded prometheus.Counter
	totalItemsProcessed  prometheus.Counter

	inputFileTypes *prometheus.CounterVec
}

func (m *Instance) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.currentBatches,
		m.batchDurationSeconds,
		m.totalFailedBatches,
		m.totalSuccessfulBatches,

		m.downloadFileDurationSeconds,
		m.encodeImageDurationSeconds,
		m.makeThumbnailDurationSeconds,

		m.cacheHits,
		m.cacheMisses,

		m.totalBytesDownloaded,
		m.totalItemsProcessed,

		m.inputFileTypes,
	)
}

func (m *Instance) StartBatch() func(success bool) {
	start := time.Now()
	m.currentBatches.Inc()

	return func(success bool) {
		if success {
			m.totalSuccessfulBatches.Inc()
		} else {
			m.totalFailedBatches.Inc()
		}
		m.currentBatches.Dec()
		m.batchDurationSeconds.Observe(float64(time.Since(start)/time.Millisecond) / 1000)
	}
}

func (m *Instance) DownloadFile() func() {
	start := time.Now()

	return func() {
		m.downloadFileDurationSeconds.Observe(float64(time.Since(start)/time.Millisecond) / 1000)
	}
}

func (m *Instance) EncodeImage() func() {
	start := time.Now()

	return func() {
		m.encodeImageDurationSeconds.Observe(float64(time.Since(start)/time.Millisecond) / 1000)
	}
}

func (m *Instance) MakeThumbnail() func() {
	start := time.Now()

	return func() {
		m.makeThumbnailDurationSeconds.Observe(float64(time.Since(start)/time.Millisecond) / 1000)
	}
}

func (m *Instance) InputFileType(contentType string) {
	m.inputFileTypes.WithLabelValues(contentType).Inc()
}

func (m *Instance) CacheHit() {
	m.cacheHits.Inc()
}

func (m *Instance) CacheMiss() {
	m.cacheMisses.Inc()
}

func (m *Instance) TotalBytesDownloaded(bytes int) {
	m.totalBytesDownloaded.Add(float64(bytes))
}

func (m *Instance) TotalItemsProcessed(items int) {
	m.totalItemsProcessed.Add(float64(items))
}
