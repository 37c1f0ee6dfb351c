// Package client is a typed HTTP client for the voxclone API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/voxclone/voxclone/internal/schema"
)

// DefaultTimeout bounds a whole request including synthesis.
const DefaultTimeout = 10 * time.Minute

const headerOutputFile = "X-Output-File"

// SynthesizeRequest asks for Text in the voice of ReferenceID or of the
// uploaded Audio.
type SynthesizeRequest struct {
	Text        string
	Lang        string
	ReferenceID string
	Audio       []byte
	// AudioName is the filename sent with Audio.
	AudioName string
}

// SynthesizeResponse is a generated artifact.
type SynthesizeResponse struct {
	Filename string
	Audio    []byte
}

// Client talks to a voxclone server.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the server at endpoint (e.g. http://localhost:8080).
func New(endpoint string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}

	c := &Client{
		httpClient: &http.Client{Transport: transport, Timeout: DefaultTimeout},
		endpoint:   strings.TrimRight(endpoint, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks if the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/health", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result schema.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Status != "ok" {
		return fmt.Errorf("server unhealthy: status %q", result.Status)
	}
	return nil
}

// AddReference uploads audio as a new reference clip.
func (c *Client) AddReference(ctx context.Context, filename string, audio io.Reader) (*schema.AddReferenceResponse, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/references/add", body, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result schema.AddReferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// ListReferences returns stored reference filenames, newest first.
func (c *Client) ListReferences(ctx context.Context) (*schema.ListReferencesResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/references", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result schema.ListReferencesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// Synthesize requests speech and returns the WAV artifact. Requests carrying
// audio are sent as a multipart form, the others as msgpack.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResponse, error) {
	var (
		body        io.Reader
		contentType string
		err         error
	)
	if len(req.Audio) > 0 {
		body, contentType, err = encodeMultipart(req)
	} else {
		body, contentType, err = encodeMsgpack(req)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/tts", body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &SynthesizeResponse{
		Filename: resp.Header.Get(headerOutputFile),
		Audio:    audio,
	}, nil
}

// do sends a request and returns the response for 2xx statuses. Other
// statuses are turned into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, newAPIError(resp.StatusCode, bodyBytes)
	}

	return resp, nil
}

func encodeMultipart(req SynthesizeRequest) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	fields := [][2]string{{"text", req.Text}, {"lang", req.Lang}, {"referenceId", req.ReferenceID}}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	name := req.AudioName
	if name == "" {
		name = "reference.wav"
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return body, mw.FormDataContentType(), nil
}

func encodeMsgpack(req SynthesizeRequest) (io.Reader, string, error) {
	data, err := msgpack.Marshal(schema.TTSRequest{
		Text:        req.Text,
		Lang:        req.Lang,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/msgpack", nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
