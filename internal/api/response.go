package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/voxclone/voxclone/internal/schema"
)

// Response headers describing a generated artifact.
const (
	HeaderOutputFile = "X-Output-File"
	contentTypeWAV   = "audio/wav"
)

// WriteError writes an error response as {"detail": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(schema.ErrorResponse{Detail: message})
}

// WriteJSON writes the data structure as JSON.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteAudio writes a generated WAV artifact. The filename is exposed so
// clients can correlate the response with the stored output.
func WriteAudio(w http.ResponseWriter, filename string, data []byte) {
	h := w.Header()
	h.Set("Content-Type", contentTypeWAV)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-store")
	h.Set(HeaderOutputFile, filename)
	h.Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
