// Package api exposes the compression pipeline over a local HTTP surface.
// Every endpoint is JSON in, JSON out; errors come back as {"error": "..."}
// with a non-2xx status.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/internal/gallery"
	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/internal/imagehost"
	"github.com/plumed-nebula/yana/internal/processor"
	"github.com/plumed-nebula/yana/internal/settings"
	"github.com/plumed-nebula/yana/internal/thumbnail"
	"github.com/plumed-nebula/yana/internal/upload"
	"github.com/plumed-nebula/yana/task"
)

type Server struct {
	gCtx       global.Context
	thumbnails *thumbnail.Store
	settings   *settings.Store
	uploader   *upload.Uploader
	hosts      *imagehost.Registry
}

// New starts the API server and returns a channel closed once it has shut
// down. Mirrors the health/monitoring lifecycle.
func New(gCtx global.Context, thumbnails *thumbnail.Store, sets *settings.Store, uploader *upload.Uploader, hosts *imagehost.Registry) <-chan struct{} {
	s := &Server{
		gCtx:       gCtx,
		thumbnails: thumbnails,
		settings:   sets,
		uploader:   uploader,
		hosts:      hosts,
	}

	srv := fasthttp.Server{
		Handler: s.handle,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		zap.S().Infow("API enabled",
			"bind", gCtx.Config().API.Bind,
		)

		if err := srv.ListenAndServe(gCtx.Config().API.Bind); err != nil {
			zap.S().Fatalw("failed to bind api",
				"error", err,
			)
		}
	}()

	go func() {
		<-gCtx.Done()

		_ = srv.Shutdown()
	}()

	return done
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorw("panic in api",
				"path", string(ctx.Path()),
				"panic", err,
			)

			writeError(ctx, fasthttp.StatusInternalServerError, errors.New("internal error"))
		}
	}()

	switch string(ctx.Path()) {
	case "/compress":
		s.handleCompress(ctx)
	case "/compress-data":
		s.handleCompressData(ctx)
	case "/save-data":
		s.handleSaveData(ctx)
	case "/save-files":
		s.handleSaveFiles(ctx)
	case "/file-sizes":
		s.handleFileSizes(ctx)
	case "/thumbnails":
		s.handleThumbnails(ctx)
	case "/thumbnail-path":
		s.handleThumbnailPath(ctx)
	case "/cache/clear":
		s.handleCacheClear(ctx)
	case "/cache/size":
		s.handleCacheSize(ctx)
	case "/temp/clean":
		s.handleTempClean(ctx)
	case "/settings":
		s.handleSettings(ctx)
	case "/upload":
		s.handleUpload(ctx)
	case "/gallery/items":
		s.handleGalleryItems(ctx)
	case "/gallery/hosts":
		s.handleGalleryHosts(ctx)
	case "/s3/upload":
		s.handleS3Upload(ctx)
	case "/s3/delete":
		s.handleS3Delete(ctx)
	case "/image-hosts":
		s.handleImageHosts(ctx)
	case "/image-hosts/add":
		s.handleImageHostAdd(ctx)
	case "/image-hosts/settings":
		s.handleImageHostSettings(ctx)
	default:
		writeError(ctx, fasthttp.StatusNotFound, errors.New("no such endpoint"))
	}
}

type compressRequest struct {
	Paths    []string       `json:"paths"`
	Settings *task.Settings `json:"settings,omitempty"`
}

type compressResponse struct {
	Outputs []string `json:"outputs"`
	Failed  int      `json:"failed"`
	State   string   `json:"state"`
}

func (s *Server) handleCompress(ctx *fasthttp.RequestCtx) {
	var req compressRequest
	if !readJSON(ctx, &req) {
		return
	}

	items := make([]task.Item, len(req.Paths))
	for i, p := range req.Paths {
		items[i] = task.Item{Index: i, Path: p}
	}

	result, err := processor.ProcessBatch(s.gCtx, items, s.effectiveSettings(req.Settings))
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, compressResponse{
		Outputs: result.Outputs(),
		Failed:  result.FailedCount,
		State:   result.State.String(),
	})
}

type compressDataRequest struct {
	Data     []byte         `json:"data"`
	Settings *task.Settings `json:"settings,omitempty"`
}

func (s *Server) handleCompressData(ctx *fasthttp.RequestCtx) {
	var req compressDataRequest
	if !readJSON(ctx, &req) {
		return
	}

	out, err := processor.ProcessData(s.gCtx, req.Data, s.effectiveSettings(req.Settings))
	if err != nil {
		writeError(ctx, fasthttp.StatusUnprocessableEntity, err)

		return
	}

	writeJSON(ctx, map[string]string{"path": out})
}

func (s *Server) handleSaveData(ctx *fasthttp.RequestCtx) {
	var req struct {
		Data []byte `json:"data"`
	}
	if !readJSON(ctx, &req) {
		return
	}

	out, err := processor.SaveData(s.gCtx, req.Data)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, map[string]string{"path": out})
}

func (s *Server) handleSaveFiles(ctx *fasthttp.RequestCtx) {
	var req struct {
		Sources []string `json:"sources"`
		Dests   []string `json:"dests"`
	}
	if !readJSON(ctx, &req) {
		return
	}

	saved, err := processor.SaveFiles(req.Sources, req.Dests)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err)

		return
	}

	writeJSON(ctx, map[string]int{"saved": saved})
}

func (s *Server) handleFileSizes(ctx *fasthttp.RequestCtx) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if !readJSON(ctx, &req) {
		return
	}

	writeJSON(ctx, map[string][]int64{"sizes": processor.FileSizes(req.Paths)})
}

func (s *Server) handleThumbnails(ctx *fasthttp.RequestCtx) {
	var req struct {
		Sources []thumbnail.Request `json:"sources"`
	}
	if !readJSON(ctx, &req) {
		return
	}

	pairs, err := s.thumbnails.GenerateAll(s.gCtx, req.Sources)
	if err != nil {
		status := fasthttp.StatusInternalServerError
		if errors.Is(err, thumbnail.ErrBusy) {
			status = fasthttp.StatusConflict
		}

		writeError(ctx, status, err)

		return
	}

	writeJSON(ctx, map[string][]thumbnail.Pair{"thumbnails": pairs})
}

func (s *Server) handleThumbnailPath(ctx *fasthttp.RequestCtx) {
	url := string(ctx.QueryArgs().Peek("url"))
	if url == "" {
		writeError(ctx, fasthttp.StatusBadRequest, errors.New("url parameter required"))

		return
	}

	p, err := s.thumbnails.GetOrCreate(s.gCtx, url)
	if err != nil {
		writeError(ctx, fasthttp.StatusUnprocessableEntity, err)

		return
	}

	writeJSON(ctx, thumbnail.Pair{URL: url, Path: p})
}

func (s *Server) handleCacheClear(ctx *fasthttp.RequestCtx) {
	if err := s.thumbnails.Clear(); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, map[string]bool{"cleared": true})
}

func (s *Server) handleCacheSize(ctx *fasthttp.RequestCtx) {
	size, err := s.thumbnails.Size()
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, map[string]int64{"bytes": size})
}

func (s *Server) handleTempClean(ctx *fasthttp.RequestCtx) {
	if err := processor.PurgeTempDir(s.gCtx); err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, map[string]bool{"purged": true})
}

func (s *Server) handleSettings(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		writeJSON(ctx, s.settings.Get())
	case fasthttp.MethodPost:
		var req task.Settings
		if !readJSON(ctx, &req) {
			return
		}

		saved, err := s.settings.Save(req)
		if err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err)

			return
		}

		writeJSON(ctx, saved)
	default:
		writeError(ctx, fasthttp.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

type uploadRequest struct {
	Path   string        `json:"path"`
	Format upload.Format `json:"format"`
	Host   string        `json:"host,omitempty"`
	Config upload.Config `json:"config"`
}

func (s *Server) handleUpload(ctx *fasthttp.RequestCtx) {
	var req uploadRequest
	if !readJSON(ctx, &req) {
		return
	}

	cfg := req.Config
	// A host id pulls the target config from the plugin settings store; an
	// explicit URL in the request still wins.
	if req.Host != "" && cfg.URL == "" {
		raw, err := s.hosts.Load(req.Host)
		if err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err)

			return
		}
		if raw == nil {
			writeError(ctx, fasthttp.StatusNotFound, errors.New("no stored settings for host "+req.Host))

			return
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			writeError(ctx, fasthttp.StatusUnprocessableEntity, err)

			return
		}
	}

	resp, err := s.uploader.UploadFile(req.Path, req.Format, cfg)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadGateway, err)

		return
	}

	writeJSON(ctx, resp)
}

func (s *Server) handleImageHosts(ctx *fasthttp.RequestCtx) {
	plugins, err := s.hosts.List()
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, map[string][]imagehost.Plugin{"plugins": plugins})
}

func (s *Server) handleImageHostAdd(ctx *fasthttp.RequestCtx) {
	var req struct {
		Source string `json:"source"`
	}
	if !readJSON(ctx, &req) {
		return
	}

	p, err := s.hosts.Add(req.Source)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err)

		return
	}

	writeJSON(ctx, p)
}

func (s *Server) handleImageHostSettings(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Method()) {
	case fasthttp.MethodGet:
		plugin := string(ctx.QueryArgs().Peek("plugin"))
		if plugin == "" {
			writeError(ctx, fasthttp.StatusBadRequest, errors.New("plugin parameter required"))

			return
		}

		raw, err := s.hosts.Load(plugin)
		if err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, err)

			return
		}
		if raw == nil {
			raw = json.RawMessage("null")
		}

		writeJSON(ctx, map[string]json.RawMessage{"values": raw})
	case fasthttp.MethodPost:
		var req struct {
			Plugin string          `json:"plugin"`
			Values json.RawMessage `json:"values"`
		}
		if !readJSON(ctx, &req) {
			return
		}
		if req.Plugin == "" {
			writeError(ctx, fasthttp.StatusBadRequest, errors.New("plugin id required"))

			return
		}

		if err := s.hosts.Save(req.Plugin, req.Values); err != nil {
			writeError(ctx, fasthttp.StatusUnprocessableEntity, err)

			return
		}

		writeJSON(ctx, map[string]bool{"saved": true})
	default:
		writeError(ctx, fasthttp.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleGalleryItems(ctx *fasthttp.RequestCtx) {
	store := s.gCtx.Inst().Gallery
	if store == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, errors.New("gallery store unavailable"))

		return
	}

	switch string(ctx.Method()) {
	case fasthttp.MethodPost:
		var req gallery.NewItem
		if !readJSON(ctx, &req) {
			return
		}

		item, err := store.Insert(s.gCtx, req)
		if err != nil {
			writeError(ctx, fasthttp.StatusUnprocessableEntity, err)

			return
		}

		writeJSON(ctx, item)
	case fasthttp.MethodGet:
		q := gallery.Query{
			FileName: string(ctx.QueryArgs().Peek("file_name")),
			Host:     string(ctx.QueryArgs().Peek("host")),
			StartUTC: string(ctx.QueryArgs().Peek("start")),
			EndUTC:   string(ctx.QueryArgs().Peek("end")),
		}

		items, err := store.Query(s.gCtx, q)
		if err != nil {
			writeError(ctx, fasthttp.StatusUnprocessableEntity, err)

			return
		}

		writeJSON(ctx, map[string][]gallery.Item{"items": items})
	case fasthttp.MethodDelete:
		id, err := strconv.ParseInt(string(ctx.QueryArgs().Peek("id")), 10, 64)
		if err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, errors.New("id parameter required"))

			return
		}

		if err := store.Delete(s.gCtx, id); err != nil {
			writeError(ctx, fasthttp.StatusNotFound, err)

			return
		}

		writeJSON(ctx, map[string]bool{"deleted": true})
	default:
		writeError(ctx, fasthttp.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (s *Server) handleGalleryHosts(ctx *fasthttp.RequestCtx) {
	store := s.gCtx.Inst().Gallery
	if store == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, errors.New("gallery store unavailable"))

		return
	}

	hosts, err := store.ListHosts(s.gCtx)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	writeJSON(ctx, map[string][]string{"hosts": hosts})
}

type s3UploadRequest struct {
	Path        string `json:"path"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
}

func (s *Server) handleS3Upload(ctx *fasthttp.RequestCtx) {
	inst := s.gCtx.Inst().S3
	if inst == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, errors.New("s3 unavailable"))

		return
	}

	var req s3UploadRequest
	if !readJSON(ctx, &req) {
		return
	}
	if req.Bucket == "" || req.Key == "" {
		writeError(ctx, fasthttp.StatusBadRequest, errors.New("bucket and key required"))

		return
	}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err)

		return
	}

	contentType := req.ContentType
	if contentType == "" {
		if t, err := filetype.Match(data); err == nil && t != types.Unknown {
			contentType = t.MIME.Value
		}
	}

	err = inst.UploadFile(s.gCtx, &s3manager.UploadInput{
		Bucket:      aws.String(req.Bucket),
		Key:         aws.String(req.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		writeError(ctx, fasthttp.StatusBadGateway, err)

		return
	}

	writeJSON(ctx, map[string]interface{}{
		"bucket": req.Bucket,
		"key":    req.Key,
		"bytes":  len(data),
	})
}

func (s *Server) handleS3Delete(ctx *fasthttp.RequestCtx) {
	inst := s.gCtx.Inst().S3
	if inst == nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, errors.New("s3 unavailable"))

		return
	}

	var req struct {
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
	}
	if !readJSON(ctx, &req) {
		return
	}
	if req.Bucket == "" || req.Key == "" {
		writeError(ctx, fasthttp.StatusBadRequest, errors.New("bucket and key required"))

		return
	}

	err := inst.DeleteFile(s.gCtx, &awss3.DeleteObjectInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(req.Key),
	})
	if err != nil {
		writeError(ctx, fasthttp.StatusBadGateway, err)

		return
	}

	writeJSON(ctx, map[string]bool{"deleted": true})
}

func (s *Server) effectiveSettings(override *task.Settings) task.Settings {
	if override != nil {
		return override.Clamped()
	}

	return s.settings.Get()
}

func readJSON(ctx *fasthttp.RequestCtx, v interface{}) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err)

		return false
	}

	return true
}

func writeJSON(ctx *fasthttp.RequestCtx, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(ctx, fasthttp.StatusInternalServerError, err)

		return
	}

	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}

func writeError(ctx *fasthttp.RequestCtx, status int, err error) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")

	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	ctx.SetBody(data)
}
