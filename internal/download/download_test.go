package download

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plumed-nebula/yana/internal/configure"
	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/internal/svc/prometheus"
	"github.com/plumed-nebula/yana/internal/testutil"
)

func testContext(t *testing.T, attempts int) global.Context {
	t.Helper()

	config := &configure.Config{}
	config.Download.Attempts = attempts
	config.Download.TimeoutSeconds = 5

	gCtx := global.New(context.Background(), config)
	gCtx.Inst().Prometheus = prometheus.New(prometheus.Options{})

	return gCtx
}

func pngPayload(t *testing.T) []byte {
	t.Helper()

	buf := bytes.Buffer{}
	testutil.IsNil(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 4, 4))), "png encode")

	return buf.Bytes()
}

func TestFetchSuccess(t *testing.T) {
	payload := pngPayload(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := New(testContext(t, 3))

	data, err := d.Fetch(context.Background(), srv.URL)
	testutil.IsNil(t, err, "fetch error")
	testutil.Assert(t, payload, data, "payload")
	testutil.Assert(t, int32(1), atomic.LoadInt32(&hits), "single request")
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := New(testContext(t, 3))

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.Assert(t, true, errors.Is(err, ErrPermanent), "permanent classification")
	// A permanent failure must not burn the retry budget.
	testutil.Assert(t, int32(1), atomic.LoadInt32(&hits), "no retries")
}

func TestFetchServerErrorRetries(t *testing.T) {
	payload := pngPayload(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	d := New(testContext(t, 2))

	data, err := d.Fetch(context.Background(), srv.URL)
	testutil.IsNil(t, err, "fetch error")
	testutil.Assert(t, payload, data, "payload after retry")
	testutil.Assert(t, int32(2), atomic.LoadInt32(&hits), "retried once")
}

func TestFetchExhaustsAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(testContext(t, 2))

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.IsNotNil(t, err, "must fail")
	testutil.Assert(t, int32(2), atomic.LoadInt32(&hits), "attempt budget honored")
}

func TestFetchRejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	d := New(testContext(t, 1))

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.Assert(t, true, errors.Is(err, ErrPermanent), "empty body is permanent")
}

func TestFetchRejectsOversizeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	gCtx := testContext(t, 1)
	gCtx.Config().Download.MaxBytes = 512

	d := New(gCtx)

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.Assert(t, true, errors.Is(err, ErrPermanent), "oversize is permanent")
}

func TestFetchAbortsOversizeStream(t *testing.T) {
	// Chunked transfer with no Content-Length: the cap has to trip while the
	// body is still streaming, not after it is fully buffered.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer is not flushable")

			return
		}

		chunk := make([]byte, 256)
		for i := 0; i < 8; i++ {
			_, _ = w.Write(chunk)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	gCtx := testContext(t, 1)
	gCtx.Config().Download.MaxBytes = 512

	d := New(gCtx)

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.Assert(t, true, errors.Is(err, ErrPermanent), "streamed oversize is permanent")
}

func TestFetchBackoffIncreases(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()

		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New(testContext(t, 3))

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.IsNotNil(t, err, "must fail")

	mu.Lock()
	defer mu.Unlock()
	testutil.Assert(t, 3, len(stamps), "attempt count")

	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])

	if second <= first {
		t.Fatalf("retry delays must grow: first gap %s, second gap %s", first, second)
	}
}

func TestFetchRejectsNonImageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	d := New(testContext(t, 1))

	_, err := d.Fetch(context.Background(), srv.URL)
	testutil.Assert(t, true, errors.Is(err, ErrPermanent), "non-image body is permanent")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg       string
		permanent bool
	}{
		{"server returned 404", true},
		{"response body empty", true},
		{"payload exceeds limit", true},
		{"failed at image decode", true},
		{"connection refused", false},
		{"request timed out", false},
		{"unexpected EOF", false},
		{"something novel went wrong", false},
	}

	for _, c := range cases {
		err := Classify(errors.New(c.msg))
		testutil.Assert(t, c.permanent, errors.Is(err, ErrPermanent), c.msg)
		testutil.Assert(t, !c.permanent, errors.Is(err, ErrTransient), c.msg)
	}

	testutil.IsNil(t, Classify(nil), "nil passthrough")
}
