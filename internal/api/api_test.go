package api

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/plumed-nebula/yana/internal/configure"
	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/internal/svc/s3"
	"github.com/plumed-nebula/yana/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	gCtx := global.New(context.Background(), &configure.Config{})

	inst, err := s3.NewMock(map[string]map[string][]byte{"media": {}})
	testutil.IsNil(t, err, "mock init")
	gCtx.Inst().S3 = inst

	return &Server{gCtx: gCtx}
}

func postJSON(t *testing.T, body interface{}) *fasthttp.RequestCtx {
	t.Helper()

	data, err := json.Marshal(body)
	testutil.IsNil(t, err, "marshal request")

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetBody(data)

	return ctx
}

func TestS3UploadEndpoint(t *testing.T) {
	t.Parallel()

	s := testServer(t)

	src := filepath.Join(t.TempDir(), "a.webp")
	testutil.IsNil(t, os.WriteFile(src, []byte("RIFFxxxxWEBP"), 0600), "write source")

	ctx := postJSON(t, s3UploadRequest{
		Path:   src,
		Bucket: "media",
		Key:    "out/a.webp",
	})
	s.handleS3Upload(ctx)
	testutil.Assert(t, fasthttp.StatusOK, ctx.Response.StatusCode(), "upload status")

	// Missing bucket must be rejected before touching the backend.
	ctx = postJSON(t, s3UploadRequest{Path: src, Key: "k"})
	s.handleS3Upload(ctx)
	testutil.Assert(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode(), "missing bucket")
}

func TestS3DeleteEndpoint(t *testing.T) {
	t.Parallel()

	s := testServer(t)

	src := filepath.Join(t.TempDir(), "a.webp")
	testutil.IsNil(t, os.WriteFile(src, []byte("RIFFxxxxWEBP"), 0600), "write source")

	ctx := postJSON(t, s3UploadRequest{Path: src, Bucket: "media", Key: "out/a.webp"})
	s.handleS3Upload(ctx)
	testutil.Assert(t, fasthttp.StatusOK, ctx.Response.StatusCode(), "upload status")

	ctx = postJSON(t, map[string]string{"bucket": "media", "key": "out/a.webp"})
	s.handleS3Delete(ctx)
	testutil.Assert(t, fasthttp.StatusOK, ctx.Response.StatusCode(), "delete status")
}

func TestS3EndpointsUnavailable(t *testing.T) {
	t.Parallel()

	s := &Server{gCtx: global.New(context.Background(), &configure.Config{})}

	ctx := postJSON(t, map[string]string{"bucket": "media", "key": "k"})
	s.handleS3Upload(ctx)
	testutil.Assert(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode(), "no backend")
}
