package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxclone/voxclone/internal/schema"
)

func TestParseTTSRequest_JSON(t *testing.T) {
	body, err := json.Marshal(map[string]interface{}{"text": "hello", "reference_id": "abc", "lang": "fr"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/tts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	parsed, err := ParseTTSRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "hello", parsed.Text)
	assert.Equal(t, "abc", parsed.ReferenceID)
	assert.Equal(t, "fr", parsed.Lang)
}

func TestParseTTSRequest_MessagePack(t *testing.T) {
	body, err := msgpack.Marshal(schema.TTSRequest{Text: "hello", Audio: []byte{1, 2, 3}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/tts", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/x-msgpack")

	parsed, err := ParseTTSRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "hello", parsed.Text)
	assert.Equal(t, []byte{1, 2, 3}, parsed.Audio)
}

func TestParseTTSRequest_MultipartKeepsValuesAsStrings(t *testing.T) {
	body, contentType := multipartBody(t, map[string]string{
		"text":        "12345",
		"referenceId": "abc",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/tts", body)
	req.Header.Set("Content-Type", contentType)

	parsed, err := ParseTTSRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "12345", parsed.Text)
	assert.Equal(t, "abc", parsed.ReferenceID)
	assert.Nil(t, parsed.Audio)
}

func TestParseTTSRequest_MultipartReadsWholeFile(t *testing.T) {
	large := bytes.Repeat([]byte("0123456789abcdef"), 64<<10)
	body, contentType := multipartBody(t, map[string]string{"text": "hi"}, "file", large)

	req := httptest.NewRequest(http.MethodPost, "/v1/tts", body)
	req.Header.Set("Content-Type", contentType)

	parsed, err := ParseTTSRequest(req)
	require.NoError(t, err)
	assert.Equal(t, large, parsed.Audio)
}

func TestParseTTSRequest_MultipartPayload(t *testing.T) {
	body, contentType := multipartBody(t, map[string]string{
		"payload": `{"text":"from payload","reference_id":"abc"}`,
		"text":    "ignored",
	}, "", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/tts", body)
	req.Header.Set("Content-Type", contentType)

	parsed, err := ParseTTSRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "from payload", parsed.Text)
	assert.Equal(t, "abc", parsed.ReferenceID)
}

func TestParseTTSRequest_UnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/tts", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")

	_, err := ParseTTSRequest(req)
	require.Error(t, err)

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnsupportedMediaType, httpErr.Status)
}

func TestOpenUpload_EmptyRawBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/references/add", http.NoBody)
	req.Header.Set("Content-Type", "audio/wav")

	_, err := openUpload(req)

	httpErr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Equal(t, "Missing file", httpErr.Message)
}

func TestOpenUpload_RawBodyOfUnknownLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/references/add", io.MultiReader(strings.NewReader("RIFF"), strings.NewReader("data")))
	req.Header.Set("Content-Type", "application/octet-stream")
	require.EqualValues(t, -1, req.ContentLength)

	body, err := openUpload(req)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "RIFFdata", string(data))
}
