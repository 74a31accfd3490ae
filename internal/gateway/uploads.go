package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleUpload stores a fault image and returns its public URL. Filenames are
// sanitized to their base name; collisions get a short random suffix instead
// of overwriting an earlier upload.
func (g *Gateway) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(g.uploads.MaxSizeBytes); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		g.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(g.uploads.Dir, 0o755); err != nil {
		g.logger.Error("failed to create upload dir", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = "upload.bin"
	}

	// O_EXCL makes the collision check atomic; concurrent uploads of the
	// same filename cannot both claim the path and overwrite each other.
	savePath := filepath.Join(g.uploads.Dir, filename)
	dst, err := os.OpenFile(savePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		ext := filepath.Ext(filename)
		base := strings.TrimSuffix(filename, ext)
		filename = fmt.Sprintf("%s_%s%s", base, uuid.NewString()[:8], ext)
		savePath = filepath.Join(g.uploads.Dir, filename)
		dst, err = os.OpenFile(savePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		g.logger.Error("failed to create upload file", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		g.logger.Error("failed to write upload", zap.Error(err))
		g.writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	g.logger.Info("file uploaded",
		zap.String("filename", filename),
		zap.Int64("size", header.Size),
	)

	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "success",
		Message: "File uploaded",
		Data:    map[string]string{"url": "/uploads/" + filename},
	})
}
