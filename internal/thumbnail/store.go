// Package thumbnail maintains an on-disk cache of small WebP previews keyed
// by source URL. Generation is download -> decode -> fit -> encode, and a
// cache hit skips the network entirely.
package thumbnail

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plumed-nebula/yana/internal/download"
	"github.com/plumed-nebula/yana/internal/encoder"
	"github.com/plumed-nebula/yana/internal/global"
)

const (
	defaultWidth       = 320
	defaultHeight      = 225
	defaultQuality     = 80
	defaultConcurrency = 4
)

// Pair correlates a source URL with the cached thumbnail produced for it.
type Pair struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Request names one thumbnail source. URL is the cache identity; when Path
// is set the bytes come from the local file and the download is skipped.
type Request struct {
	URL  string `json:"url"`
	Path string `json:"path,omitempty"`
}

type Store struct {
	gCtx       global.Context
	downloader *download.Downloader
	gate       Gate

	dir         string
	width       int
	height      int
	quality     int
	concurrency int
}

func New(gCtx global.Context, downloader *download.Downloader) (*Store, error) {
	cfg := gCtx.Config().Thumbnail

	s := &Store{
		gCtx:        gCtx,
		downloader:  downloader,
		dir:         cfg.CacheDir,
		width:       cfg.Width,
		height:      cfg.Height,
		quality:     cfg.Quality,
		concurrency: cfg.Concurrency,
	}
	if s.dir == "" {
		s.dir = filepath.Join(os.TempDir(), "com.yana.dev", "thumbnails")
	}
	if s.width <= 0 {
		s.width = defaultWidth
	}
	if s.height <= 0 {
		s.height = defaultHeight
	}
	if s.quality <= 0 || s.quality > 100 {
		s.quality = defaultQuality
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultConcurrency
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at create cache dir %s", s.dir), err)
	}

	return s, nil
}

// CacheKey derives the cache file stem for a URL: the first 8 bytes of the
// URL's SHA-256 digest, hex encoded. Stable across restarts and platforms.
func CacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))

	return hex.EncodeToString(sum[:8])
}

// Path returns where the thumbnail for url lives, whether or not it exists.
func (s *Store) Path(url string) string {
	return filepath.Join(s.dir, CacheKey(url)+".webp")
}

// Lookup reports the cached path for url, or ok=false on a miss. Lock-free;
// a concurrent GetOrCreate racing this at worst causes one extra miss.
func (s *Store) Lookup(url string) (string, bool) {
	p := s.Path(url)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}

	return p, true
}

// GetOrCreate returns the cached thumbnail for url, generating it on a miss
// from a fresh download.
func (s *Store) GetOrCreate(ctx context.Context, url string) (string, error) {
	if p, ok := s.Lookup(url); ok {
		s.gCtx.Inst().Prometheus.CacheHit()

		return p, nil
	}

	s.gCtx.Inst().Prometheus.CacheMiss()

	data, err := s.downloader.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	return s.generate(url, data)
}

// GetOrCreateLocal is the miss path for sources already on disk: the URL is
// still the cache identity, but the bytes come from the local file and the
// network is never touched.
func (s *Store) GetOrCreateLocal(url, path string) (string, error) {
	if p, ok := s.Lookup(url); ok {
		s.gCtx.Inst().Prometheus.CacheHit()

		return p, nil
	}

	s.gCtx.Inst().Prometheus.CacheMiss()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", multierr.Append(fmt.Errorf("failed at read local source"), err)
	}

	return s.generate(url, data)
}

func (s *Store) generate(url string, data []byte) (string, error) {
	done := s.gCtx.Inst().Prometheus.MakeThumbnail()
	defer done()

	img, err := encoder.Decode(data)
	if err != nil {
		return "", err
	}

	fitted := imaging.Fit(img, s.width, s.height, imaging.Lanczos)

	encoded, err := encoder.EncodeWebP(fitted, s.quality)
	if err != nil {
		return "", err
	}

	final := s.Path(url)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0600); err != nil {
		return "", multierr.Append(fmt.Errorf("failed at write thumbnail"), err)
	}

	// Rename is the commit point; readers only ever see complete files.
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)

		return "", multierr.Append(fmt.Errorf("failed at commit thumbnail"), err)
	}

	return final, nil
}

// GenerateAll produces thumbnails for every request with bounded concurrency,
// guarded so only one bulk pass runs at a time. Requests carrying a local
// path never hit the network. Individual failures are logged and skipped;
// the call errors only when the gate is busy or every single request failed.
func (s *Store) GenerateAll(ctx context.Context, reqs []Request) ([]Pair, error) {
	if err := s.gate.TryAcquire(); err != nil {
		return nil, err
	}
	defer s.gate.Release()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)

	pairs := make([]Pair, len(reqs))
	for i, req := range reqs {
		i, req := i, req
		eg.Go(func() error {
			var p string
			var err error
			if req.Path != "" {
				p, err = s.GetOrCreateLocal(req.URL, req.Path)
			} else {
				p, err = s.GetOrCreate(ctx, req.URL)
			}
			if err != nil {
				zap.S().Errorw("thumbnail failed",
					"url", req.URL,
					"error", err,
				)

				return nil
			}

			pairs[i] = Pair{URL: req.URL, Path: p}

			return nil
		})
	}

	_ = eg.Wait()

	out := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if p.Path != "" {
			out = append(out, p)
		}
	}

	if len(reqs) > 0 && len(out) == 0 {
		return nil, fmt.Errorf("all %d thumbnails failed", len(reqs))
	}

	zap.S().Infow("thumbnails generated",
		"requested", len(reqs),
		"produced", len(out),
	)

	return out, nil
}

// Clear wipes the whole cache and recreates the directory.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return multierr.Append(fmt.Errorf("failed at clear cache"), err)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return multierr.Append(fmt.Errorf("failed at recreate cache dir"), err)
	}

	zap.S().Infow("thumbnail cache cleared",
		"dir", s.dir,
	)

	return nil
}

// Size walks the cache and sums file sizes in bytes.
func (s *Store) Size() (int64, error) {
	var total int64

	err := filepath.Walk(s.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}

		return nil
	})
	if err != nil {
		return 0, multierr.Append(fmt.Errorf("failed at walk cache"), err)
	}

	return total, nil
}
