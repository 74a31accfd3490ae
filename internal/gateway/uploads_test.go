package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadFile(t *testing.T, g *Gateway, filename, contents string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, contents)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

func TestHandleUpload(t *testing.T) {
	dir := t.TempDir()
	g, _ := newTestGateway(t, newFakeStore(), testConfig("", dir))

	rec := uploadFile(t, g, "pole7.jpg", "fake image bytes")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData[map[string]string](t, decodeResponse(t, rec))
	assert.Equal(t, "/uploads/pole7.jpg", data["url"])

	saved, err := os.ReadFile(filepath.Join(dir, "pole7.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "fake image bytes", string(saved))
}

func TestHandleUploadSanitizesPath(t *testing.T) {
	dir := t.TempDir()
	g, _ := newTestGateway(t, newFakeStore(), testConfig("", dir))

	rec := uploadFile(t, g, "../../etc/passwd", "nope")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeData[map[string]string](t, decodeResponse(t, rec))
	assert.Equal(t, "/uploads/passwd", data["url"])

	// nothing escaped the upload directory
	_, err := os.Stat(filepath.Join(dir, "passwd"))
	assert.NoError(t, err)
}

func TestHandleUploadAvoidsOverwrite(t *testing.T) {
	dir := t.TempDir()
	g, _ := newTestGateway(t, newFakeStore(), testConfig("", dir))

	first := uploadFile(t, g, "pole.jpg", "first")
	require.Equal(t, http.StatusOK, first.Code)

	second := uploadFile(t, g, "pole.jpg", "second")
	require.Equal(t, http.StatusOK, second.Code)

	data := decodeData[map[string]string](t, decodeResponse(t, second))
	assert.NotEqual(t, "/uploads/pole.jpg", data["url"])
	assert.True(t, strings.HasPrefix(data["url"], "/uploads/pole_"))

	// the first upload is untouched
	saved, err := os.ReadFile(filepath.Join(dir, "pole.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(saved))
}

func TestHandleUploadConcurrentSameFilename(t *testing.T) {
	dir := t.TempDir()
	g, _ := newTestGateway(t, newFakeStore(), testConfig("", dir))

	contents := []string{"body-a", "body-b"}
	recs := make([]*httptest.ResponseRecorder, len(contents))

	var wg sync.WaitGroup
	for i, c := range contents {
		wg.Add(1)
		go func(i int, c string) {
			defer wg.Done()
			recs[i] = uploadFile(t, g, "pole.jpg", c)
		}(i, c)
	}
	wg.Wait()

	urls := make([]string, len(recs))
	for i, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code)
		urls[i] = decodeData[map[string]string](t, decodeResponse(t, rec))["url"]
	}

	// exactly one writer claims each path, so neither upload is lost
	require.NotEqual(t, urls[0], urls[1])
	for i, u := range urls {
		saved, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(u, "/uploads/")))
		require.NoError(t, err)
		assert.Equal(t, contents[i], string(saved))
	}
}

func TestHandleUploadMissingFileField(t *testing.T) {
	g, _ := newTestGateway(t, newFakeStore(), testConfig("", t.TempDir()))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "error", resp.Status)
}

func TestUploadedFilesAreServed(t *testing.T) {
	dir := t.TempDir()
	g, _ := newTestGateway(t, newFakeStore(), testConfig("", dir))

	rec := uploadFile(t, g, "served.jpg", "image body")
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/uploads/served.jpg", nil)
	out := httptest.NewRecorder()
	g.ServeHTTP(out, req)

	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, "image body", out.Body.String())
}
