// sidecar.go - Fake extraction sidecar for tests
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// Sidecar endpoints.
const (
	EndpointOCR          = "/process_ocr"
	EndpointGemini       = "/process_gemini"
	EndpointAvailability = "/has_gemini"
)

// Response scripts one reply of the fake sidecar.
type Response struct {
	Status int
	Body   any
	// Drop closes the connection without replying.
	Drop bool
}

// Upload records one multipart request received by the sidecar.
type Upload struct {
	Endpoint    string
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// Sidecar is an echo-backed stand-in for the OCR/Gemini service. Replies are
// taken from per-endpoint scripts; once a script is empty the sidecar answers
// successfully with fields derived from the file name.
type Sidecar struct {
	Server *httptest.Server

	mu                 sync.Mutex
	geminiAvailable    bool
	scripts            map[string][]Response
	uploads            []Upload
	availabilityChecks int
}

// NewSidecar starts a fake sidecar that is closed when the test ends.
func NewSidecar(t testing.TB) *Sidecar {
	t.Helper()

	s := &Sidecar{
		geminiAvailable: true,
		scripts:         make(map[string][]Response),
	}

	e := echo.New()
	e.HideBanner = true
	e.POST(EndpointOCR, s.handleOCR)
	e.POST(EndpointGemini, s.handleGemini)
	e.GET(EndpointAvailability, s.handleAvailability)

	s.Server = httptest.NewServer(e)
	t.Cleanup(s.Server.Close)
	return s
}

// URL returns the base URL of the sidecar.
func (s *Sidecar) URL() string {
	return s.Server.URL
}

// SetGeminiAvailable sets the default reply of the availability check.
func (s *Sidecar) SetGeminiAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geminiAvailable = ok
}

// Script queues replies for endpoint.
func (s *Sidecar) Script(endpoint string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[endpoint] = append(s.scripts[endpoint], responses...)
}

// Uploads returns the extraction requests received so far.
func (s *Sidecar) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// AvailabilityChecks returns how often the health check was called.
func (s *Sidecar) AvailabilityChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availabilityChecks
}

// Fields returns the default extraction reply for fileName.
func Fields(fileName string) map[string]any {
	stem := strings.TrimSuffix(fileName, path.Ext(fileName))
	return map[string]any{
		"TYPE":        "Certificate of Participation",
		"AWARDEE":     stem,
		"ROLE":        "Speaker",
		"EVENT":       "Regional Summit",
		"DATE":        "March 3, 2025",
		"LOCATION":    "Manila",
		"SIGNATORIES": []string{"Ana Cruz", "Ben Lim"},
	}
}

func (s *Sidecar) next(endpoint string) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.scripts[endpoint]
	if len(queue) == 0 {
		return Response{}, false
	}
	s.scripts[endpoint] = queue[1:]
	return queue[0], true
}

func (s *Sidecar) record(c echo.Context, endpoint, field string) (Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return Upload{}, err
	}
	src, err := fh.Open()
	if err != nil {
		return Upload{}, err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return Upload{}, err
	}

	up := Upload{
		Endpoint:    endpoint,
		Field:       field,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()
	return up, nil
}

func (s *Sidecar) reply(c echo.Context, r Response) error {
	if r.Drop {
		if hj, ok := c.Response().Writer.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
		}
		return nil
	}
	return c.JSON(r.Status, r.Body)
}

func (s *Sidecar) handleOCR(c echo.Context) error {
	up, err := s.record(c, EndpointOCR, "image_file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "image_file is required"})
	}
	if r, ok := s.next(EndpointOCR); ok {
		return s.reply(c, r)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "success",
		"file_name":       up.FileName,
		"file_size_bytes": len(up.Data),
		"extracted_text":  Fields(up.FileName),
	})
}

func (s *Sidecar) handleGemini(c echo.Context) error {
	up, err := s.record(c, EndpointGemini, "file")
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "file is required"})
	}
	if r, ok := s.next(EndpointGemini); ok {
		return s.reply(c, r)
	}
	if !strings.HasPrefix(up.ContentType, "image/") {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"detail": "Invalid file type. Please upload an image file (e.g., JPEG, PNG).",
		})
	}
	return c.JSON(http.StatusOK, Fields(up.FileName))
}

func (s *Sidecar) handleAvailability(c echo.Context) error {
	s.mu.Lock()
	s.availabilityChecks++
	available := s.geminiAvailable
	s.mu.Unlock()

	if r, ok := s.next(EndpointAvailability); ok {
		return s.reply(c, r)
	}
	return c.JSON(http.StatusOK, map[string]bool{"has_gemini_api": available})
}
