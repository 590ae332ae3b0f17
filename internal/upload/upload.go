// Package upload posts produced artifacts to third-party image hosts. Three
// request shapes cover the common host APIs: raw binary body, multipart
// form-data, and base64-in-JSON.
package upload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Format selects the request body shape.
type Format string

const (
	FormatBinary Format = "binary"
	FormatForm   Format = "form"
	FormatBase64 Format = "base64"
)

const (
	defaultFieldName = "file"
	defaultJSONKey   = "image"
	defaultTimeout   = 30 * time.Second
)

// Config describes one upload target.
type Config struct {
	URL              string            `json:"url"`
	Headers          map[string]string `json:"headers"`
	FieldName        string            `json:"fieldName"`
	AdditionalFields map[string]string `json:"additionalFields"`
	JSONKey          string            `json:"jsonKey"`
	AdditionalJSON   map[string]any    `json:"additionalJson"`
	FileName         string            `json:"fileName"`
	ContentType      string            `json:"contentType"`
	TimeoutMs        int               `json:"timeoutMs"`
}

// Response carries the host's reply back to the caller. Body is the parsed
// JSON when the reply is JSON, null otherwise; RawText always has the bytes.
type Response struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    json.RawMessage     `json:"body"`
	RawText string              `json:"rawText"`
}

type Uploader struct {
	client *fasthttp.Client
}

func New() *Uploader {
	return &Uploader{client: &fasthttp.Client{}}
}

// UploadFile reads the file at path and posts it per the config. The path
// must be absolute with no parent-directory segments; uploads read arbitrary
// user-supplied paths so the check is load-bearing.
func (u *Uploader) UploadFile(path string, format Format, cfg Config) (*Response, error) {
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("file path must be absolute: %s", path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return nil, fmt.Errorf("parent directory segments are not allowed: %s", path)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at read upload source"), err)
	}

	name := cfg.FileName
	if name == "" {
		name = filepath.Base(path)
	}

	return u.upload(data, name, format, cfg)
}

func (u *Uploader) upload(data []byte, name string, format Format, cfg Config) (*Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	for k, v := range cfg.Headers {
		req.Header.Set(strings.TrimSpace(k), v)
	}

	switch format {
	case FormatBinary:
		ct := cfg.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}

		req.Header.SetContentType(ct)
		req.SetBody(data)
	case FormatForm:
		body, ct, err := buildForm(data, name, cfg)
		if err != nil {
			return nil, err
		}

		req.Header.SetContentType(ct)
		req.SetBody(body)
	case FormatBase64:
		body, err := buildBase64(data, cfg)
		if err != nil {
			return nil, err
		}

		req.Header.SetContentType("application/json")
		req.SetBody(body)
	default:
		return nil, fmt.Errorf("unknown upload format: %s", format)
	}

	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}

	if err := u.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at %s upload", format), err)
	}

	return finalize(resp)
}

func buildForm(data []byte, name string, cfg Config) ([]byte, string, error) {
	field := cfg.FieldName
	if field == "" {
		field = defaultFieldName
	}

	buf := bytes.Buffer{}
	w := multipart.NewWriter(&buf)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	if cfg.ContentType != "" {
		h.Set("Content-Type", cfg.ContentType)
	}

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", multierr.Append(fmt.Errorf("failed at build form"), err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", multierr.Append(fmt.Errorf("failed at build form"), err)
	}

	for k, v := range cfg.AdditionalFields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", multierr.Append(fmt.Errorf("failed at build form"), err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", multierr.Append(fmt.Errorf("failed at build form"), err)
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

func buildBase64(data []byte, cfg Config) ([]byte, error) {
	key := cfg.JSONKey
	if key == "" {
		key = defaultJSONKey
	}

	payload := map[string]any{
		key: base64.StdEncoding.EncodeToString(data),
	}
	for k, v := range cfg.AdditionalJSON {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed at marshal payload"), err)
	}

	return body, nil
}

func finalize(resp *fasthttp.Response) (*Response, error) {
	status := resp.StatusCode()
	raw := string(resp.Body())

	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("upload failed with status %d: %s", status, raw)
	}

	headers := map[string][]string{}
	resp.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		headers[key] = append(headers[key], string(v))
	})

	var body json.RawMessage
	if json.Valid(resp.Body()) {
		body = append(json.RawMessage{}, resp.Body()...)
	} else {
		body = json.RawMessage("null")
	}

	zap.S().Infow("upload finished",
		"status", status,
		"bytes", len(raw),
	)

	return &Response{
		Status:  status,
		Headers: headers,
		Body:    body,
		RawText: raw,
	}, nil
}
