package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/eeselapp/chatgpt-batch-query/internal/ingest"
	"github.com/eeselapp/chatgpt-batch-query/internal/models"
)

// maxUploadBytes bounds question file uploads.
const maxUploadBytes = 5 << 20

// UploadHandler parses uploaded question files. Plain chi handler; multipart
// uploads do not go through the JSON API layer.
type UploadHandler struct {
	logger *slog.Logger
}

// NewUploadHandler creates the upload endpoint handler.
func NewUploadHandler(logger *slog.Logger) *UploadHandler {
	return &UploadHandler{logger: logger}
}

// Handle accepts a multipart "file" field or a raw text/CSV body and returns
// the parsed question list. Nothing is scraped; the client reviews the list
// and starts the batch separately.
func (h *UploadHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	reader, name, err := h.uploadBody(r)
	if err != nil {
		http.Error(w, `{"error":"unreadable upload"}`, http.StatusBadRequest)
		return
	}

	var questions []string
	if isCSV(name, r.Header.Get("Content-Type")) {
		questions, err = ingest.FromCSV(reader)
		if err != nil {
			http.Error(w, `{"error":"malformed csv"}`, http.StatusUnprocessableEntity)
			return
		}
	} else {
		data, err := io.ReadAll(reader)
		if err != nil {
			http.Error(w, `{"error":"unreadable upload"}`, http.StatusBadRequest)
			return
		}
		questions = ingest.FromText(string(data))
	}

	if len(questions) == 0 {
		http.Error(w, `{"error":"no questions found in upload"}`, http.StatusUnprocessableEntity)
		return
	}

	h.logger.Info("questions uploaded", "file", name, "count", len(questions))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.UploadResponse{Questions: questions, Count: len(questions)})
}

// uploadBody returns the question stream and its filename, preferring a
// multipart "file" field over the raw body.
func (h *UploadHandler) uploadBody(r *http.Request) (io.Reader, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		return file, header.Filename, nil
	}
	return r.Body, "", nil
}

func isCSV(filename, contentType string) bool {
	if strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return true
	}
	return strings.Contains(contentType, "text/csv")
}
