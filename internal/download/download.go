// Package download fetches remote media over HTTP with bounded size, bounded
// retries and a permanent/transient failure split.
package download

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/container"
	"github.com/plumed-nebula/yana/internal/global"
)

const (
	userAgent = "yana/1.0"

	defaultAttempts = 3
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 50 * 1024 * 1024

	// Each retry widens the window; slow mirrors get more rope, not more
	// attempts.
	timeoutIncrement = 10 * time.Second
)

var (
	// ErrPermanent marks failures that retrying cannot fix.
	ErrPermanent = errors.New("permanent download failure")
	// ErrTransient marks failures worth another attempt.
	ErrTransient = errors.New("transient download failure")
)

// Downloader is safe for concurrent use.
type Downloader struct {
	client   *fasthttp.Client
	gCtx     global.Context
	maxBytes int
	attempts int
	timeout  time.Duration
}

func New(gCtx global.Context) *Downloader {
	cfg := gCtx.Config().Download

	d := &Downloader{
		gCtx:     gCtx,
		maxBytes: int(cfg.MaxBytes),
		attempts: cfg.Attempts,
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	if d.maxBytes <= 0 {
		d.maxBytes = defaultMaxBytes
	}
	if d.attempts <= 0 {
		d.attempts = defaultAttempts
	}
	if d.timeout <= 0 {
		d.timeout = defaultTimeout
	}

	// The client enforces the cap while the body streams in, so an oversized
	// or unbounded transfer aborts instead of buffering to completion first.
	d.client = &fasthttp.Client{
		MaxResponseBodySize: d.maxBytes,
	}

	return d
}

// Fetch downloads url and returns the validated body. Permanent failures
// abort immediately; transient ones are retried with exponential backoff
// (1s, 2s, 4s, ...) until the attempt budget runs out.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	done := d.gCtx.Inst().Prometheus.DownloadFile()
	defer done()

	var lastErr error
	for attempt := 0; attempt < d.attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)

			zap.S().Warnw("retrying download",
				"url", url,
				"attempt", attempt+1,
				"backoff", backoff.String(),
				"error", lastErr,
			)

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(backoff):
			}
		}

		data, err := d.fetchOnce(url, d.timeout+time.Duration(attempt)*timeoutIncrement)
		if err == nil {
			d.gCtx.Inst().Prometheus.TotalBytesDownloaded(len(data))

			return data, nil
		}

		if errors.Is(err, ErrPermanent) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", d.attempts, lastErr)
}

func (d *Downloader) fetchOnce(url string, timeout time.Duration) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.SetUserAgent(userAgent)
	// Compressed transfer would defeat the byte cap check.
	req.Header.Set(fasthttp.HeaderAcceptEncoding, "identity")

	if err := d.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, Classify(err)
	}

	status := resp.StatusCode()
	switch status {
	case fasthttp.StatusOK:
	case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden, fasthttp.StatusNotFound:
		return nil, fmt.Errorf("%w: status %d", ErrPermanent, status)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrTransient, status)
	}

	if length := resp.Header.ContentLength(); length > d.maxBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds cap %d", ErrPermanent, length, d.maxBytes)
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrPermanent)
	}
	if len(body) > d.maxBytes {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds cap %d", ErrPermanent, len(body), d.maxBytes)
	}

	if t := container.Match(body); !container.IsSupported(t) {
		return nil, fmt.Errorf("%w: body is not a supported image", ErrPermanent)
	}

	// Content-Type is advisory only; the magic bytes above are authoritative.
	if ct := string(resp.Header.ContentType()); ct != "" && !strings.HasPrefix(ct, "image/") {
		zap.S().Debugw("non-image content type on image body",
			"url", url,
			"content_type", ct,
		)
	}

	out := make([]byte, len(body))
	copy(out, body)

	return out, nil
}

// Classify buckets an arbitrary error into the permanent/transient taxonomy.
// Errors already carrying a marker pass through; everything else is matched
// on message substrings, and the unknown case defaults to transient so a
// retry gets a chance.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrTransient) {
		return err
	}

	msg := strings.ToLower(err.Error())

	for _, s := range []string{"401", "403", "404", "empty", "too large", "exceeds", "decode", "encode", "unsupported"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
	}

	for _, s := range []string{"timeout", "timed out", "connection", "network", "partial", "unexpected eof", "reset"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrTransient, err)
}
