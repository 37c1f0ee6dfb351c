package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxclone/voxclone/internal/schema"
)

// Multipart field names sent by the browser recorder.
const (
	formText        = "text"
	formLang        = "lang"
	formReferenceID = "referenceId"
	formFile        = "file"

	multipartMemory = 32 << 20
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// ParseRequestBody decodes the request body into the provided value based on Content-Type.
func ParseRequestBody(r *http.Request, v interface{}) error {
	switch mediaType(r) {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			return bodyError(err, "Invalid request body")
		}
	case "application/msgpack", "application/x-msgpack":
		if err := msgpack.NewDecoder(r.Body).Decode(v); err != nil {
			return bodyError(err, "Invalid request body")
		}
	default:
		return &HTTPError{Status: http.StatusUnsupportedMediaType, Message: "Unsupported content type"}
	}

	return nil
}

// ParseTTSRequest decodes a synthesis request from JSON, msgpack or a
// multipart form (text, lang, referenceId, file).
func ParseTTSRequest(r *http.Request) (*schema.TTSRequest, error) {
	var req schema.TTSRequest

	if mediaType(r) == "multipart/form-data" {
		if err := parseTTSMultipart(r, &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := ParseRequestBody(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func parseTTSMultipart(r *http.Request, req *schema.TTSRequest) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return bodyError(err, "Invalid multipart form")
	}

	// A "payload" field carrying JSON takes precedence over individual fields.
	if payload := r.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), req); err != nil {
			return &HTTPError{Status: http.StatusBadRequest, Message: "Invalid multipart payload"}
		}
	} else {
		req.Text = r.FormValue(formText)
		req.Lang = r.FormValue(formLang)
		req.ReferenceID = r.FormValue(formReferenceID)
		if req.ReferenceID == "" {
			req.ReferenceID = r.FormValue("reference_id")
		}
	}

	audio, err := readFormFile(r, formFile)
	if err != nil {
		return err
	}
	if audio != nil {
		req.Audio = audio
	}

	return nil
}

// readFormFile returns the uploaded file's bytes, or nil when the field is absent.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, bodyError(err, "Invalid file upload")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, bodyError(err, "Invalid file upload")
	}
	return data, nil
}

// openUpload returns the reference audio of an upload request: the "file"
// part of a multipart form, or the raw body for audio/* and
// application/octet-stream requests.
func openUpload(r *http.Request) (io.ReadCloser, error) {
	mt := mediaType(r)

	switch {
	case mt == "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, bodyError(err, "Invalid multipart form")
		}
		file, _, err := r.FormFile(formFile)
		if errors.Is(err, http.ErrMissingFile) {
			return nil, &HTTPError{Status: http.StatusBadRequest, Message: "Missing file"}
		}
		if err != nil {
			return nil, bodyError(err, "Invalid file upload")
		}
		return file, nil
	case strings.HasPrefix(mt, "audio/"), strings.HasPrefix(mt, "video/"), mt == "application/octet-stream":
		// ContentLength is -1 for chunked uploads, so look at the body itself.
		br := bufio.NewReader(r.Body)
		if _, err := br.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &HTTPError{Status: http.StatusBadRequest, Message: "Missing file"}
			}
			return nil, bodyError(err, "Invalid file upload")
		}
		return struct {
			io.Reader
			io.Closer
		}{br, r.Body}, nil
	default:
		return nil, &HTTPError{Status: http.StatusUnsupportedMediaType, Message: "Unsupported content type"}
	}
}

func mediaType(r *http.Request) string {
	contentType := r.Header.Get("Content-Type")
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	return strings.ToLower(mt)
}

// bodyError keeps *http.MaxBytesError visible to the error classifier and
// turns everything else into a 400 with message.
func bodyError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return maxErr
	}
	if errors.Is(err, multipart.ErrMessageTooLarge) {
		return &http.MaxBytesError{}
	}
	return &HTTPError{Status: http.StatusBadRequest, Message: message}
}

// IsHTTPError checks whether an error is an *HTTPError.
func IsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}
