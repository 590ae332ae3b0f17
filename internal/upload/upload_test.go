package upload

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture(t *testing.T) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "artifact.png")
	require.NoError(t, os.WriteFile(p, []byte("fake image bytes"), 0600))

	return p
}

func TestUploadBinary(t *testing.T) {
	var gotBody []byte
	var gotCT string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotCT = r.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"url":"https://img.example.com/x.png"}`))
	}))
	defer srv.Close()

	u := New()

	resp, err := u.UploadFile(fixture(t), FormatBinary, Config{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []byte("fake image bytes"), gotBody)
	assert.Equal(t, "application/octet-stream", gotCT)
	assert.JSONEq(t, `{"url":"https://img.example.com/x.png"}`, string(resp.Body))
}

func TestUploadForm(t *testing.T) {
	var gotField []byte
	var gotName, gotExtra string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		f, header, err := r.FormFile("picture")
		require.NoError(t, err)
		gotField, _ = io.ReadAll(f)
		gotName = header.Filename
		gotExtra = r.FormValue("album")

		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	u := New()

	resp, err := u.UploadFile(fixture(t), FormatForm, Config{
		URL:              srv.URL,
		FieldName:        "picture",
		FileName:         "renamed.png",
		AdditionalFields: map[string]string{"album": "screenshots"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, []byte("fake image bytes"), gotField)
	assert.Equal(t, "renamed.png", gotName)
	assert.Equal(t, "screenshots", gotExtra)
}

func TestUploadBase64(t *testing.T) {
	var payload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	u := New()

	_, err := u.UploadFile(fixture(t), FormatBase64, Config{
		URL:            srv.URL,
		JSONKey:        "smfile",
		AdditionalJSON: map[string]any{"format": "json"},
	})
	require.NoError(t, err)

	encoded, ok := payload["smfile"].(string)
	require.True(t, ok)

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake image bytes"), decoded)
	assert.Equal(t, "json", payload["format"])
}

func TestUploadRejectsBadPaths(t *testing.T) {
	u := New()

	_, err := u.UploadFile("relative/path.png", FormatBinary, Config{URL: "http://localhost"})
	assert.Error(t, err)

	_, err = u.UploadFile("/tmp/../etc/passwd", FormatBinary, Config{URL: "http://localhost"})
	assert.Error(t, err)
}

func TestUploadNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	u := New()

	_, err := u.UploadFile(fixture(t), FormatBinary, Config{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
