package global

import "github.com/plumed-nebula/yana/internal/instance"

type Instances struct {
	S3         instance.S3
	Gallery    instance.Gallery
	Prometheus instance.Prometheus
}
