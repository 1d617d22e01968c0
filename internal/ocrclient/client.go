package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/certscan/backend/internal/models"
)

const (
	defaultHTTPTimeout = 120 * time.Second
	maxErrorBody       = 4 << 10

	ocrPath          = "/process_ocr"
	geminiPath       = "/process_gemini"
	availabilityPath = "/has_gemini"

	ocrField    = "image_file"
	geminiField = "file"
)

// Availability is the reply of the Gemini health check.
type Availability struct {
	Available bool `json:"has_gemini_api"`
}

// Client issues requests against a sidecar base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds each request. It applies to the client configured so
// far, which is copied rather than modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			hc := *c.httpClient
			hc.Timeout = timeout
			c.httpClient = &hc
		}
	}
}

// New constructs a client for the sidecar at baseURL.
func New(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// SubmitForOCR sends the image to the local OCR pipeline.
func (c *Client) SubmitForOCR(ctx context.Context, file models.FileRef, content []byte) (models.ExtractedFields, error) {
	const op = "submit ocr"
	var payload struct {
		ExtractedText map[string]json.RawMessage `json:"extracted_text"`
	}
	if err := c.upload(ctx, op, ocrPath, ocrField, file, content, &payload); err != nil {
		return nil, err
	}
	if payload.ExtractedText == nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("response missing extracted_text")}
	}
	return decodeFields(payload.ExtractedText), nil
}

// SubmitForGemini sends the image to the Gemini-backed extractor.
func (c *Client) SubmitForGemini(ctx context.Context, file models.FileRef, content []byte) (models.ExtractedFields, error) {
	const op = "submit gemini"
	var payload map[string]json.RawMessage
	if err := c.upload(ctx, op, geminiPath, geminiField, file, content, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("empty response body")}
	}
	return decodeFields(payload), nil
}

// CheckGeminiAvailability asks whether the sidecar has a Gemini client.
func (c *Client) CheckGeminiAvailability(ctx context.Context) (Availability, error) {
	const op = "check gemini availability"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+availabilityPath, nil)
	if err != nil {
		return Availability{}, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	var out Availability
	if err := c.do(op, req, &out); err != nil {
		return Availability{}, err
	}
	return out, nil
}

func (c *Client) upload(ctx context.Context, op, path, field string, file models.FileRef, content []byte, out any) error {
	body, contentType, err := multipartBody(field, file, content)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteServiceError{Op: op, Status: resp.StatusCode, Detail: errorDetail(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// multipartBody builds the form with a part typed as the file's MIME type;
// the Gemini endpoint rejects parts that are not image/*.
func multipartBody(field string, file models.FileRef, content []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	name := file.Name
	if name == "" {
		name = "certificate.png"
	}
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(content)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}
