package instance

import (
	"context"

	"github.com/plumed-nebula/yana/internal/gallery"
)

type Gallery interface {
	Insert(ctx context.Context, item gallery.NewItem) (gallery.Item, error)
	Delete(ctx context.Context, id int64) error
	Query(ctx context.Context, q gallery.Query) ([]gallery.Item, error)
	ListHosts(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
