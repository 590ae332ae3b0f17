package instance

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Prometheus interface {
	Register(r prometheus.Registerer)
	Registry() *prometheus.Registry

	StartBatch() func(success bool)

	DownloadFile() func()
	EncodeImage() func()
	MakeThumbnail() func()

	InputFileType(string)
	CacheHit()
	CacheMiss()

	TotalBytesDownloaded(int)
	TotalItemsProcessed(int)
}
