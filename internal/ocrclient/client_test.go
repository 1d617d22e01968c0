package ocrclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngFile(name string) models.FileRef {
	return models.FileRef{ID: "f1", Name: name, MIMEType: "image/png"}
}

func TestSubmitForOCR_Success(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	client := New(sidecar.URL())

	fields, err := client.SubmitForOCR(context.Background(), pngFile("juan.png"), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, "Certificate of Participation", fields.Get(models.CategoryType))
	assert.Equal(t, "juan", fields.Get(models.CategoryAwardee))
	assert.Equal(t, "Ana Cruz, Ben Lim", fields.Get(models.CategorySignatories))

	uploads := sidecar.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "image_file", uploads[0].Field)
	assert.Equal(t, "juan.png", uploads[0].FileName)
	assert.Equal(t, "image/png", uploads[0].ContentType)
	assert.Equal(t, []byte("img"), uploads[0].Data)
}

func TestSubmitForGemini_FlatReply(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	client := New(sidecar.URL() + "/")

	fields, err := client.SubmitForGemini(context.Background(), pngFile("maria.png"), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, "maria", fields.Get(models.CategoryAwardee))
	uploads := sidecar.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "file", uploads[0].Field)
}

func TestSubmit_RemoteServiceError(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	sidecar.Script(testutil.EndpointOCR, testutil.Response{
		Status: http.StatusInternalServerError,
		Body:   map[string]string{"detail": "Processing failed: model not loaded"},
	})
	client := New(sidecar.URL())

	_, err := client.SubmitForOCR(context.Background(), pngFile("a.png"), []byte("img"))
	require.Error(t, err)

	var remote *RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusInternalServerError, remote.Status)
	assert.Equal(t, "Processing failed: model not loaded", remote.Detail)
	assert.True(t, remote.Retryable())
}

func TestSubmitForGemini_RejectsNonImage(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	client := New(sidecar.URL())

	file := models.FileRef{Name: "notes.txt", MIMEType: "text/plain"}
	_, err := client.SubmitForGemini(context.Background(), file, []byte("hello"))

	var remote *RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusBadRequest, remote.Status)
	assert.False(t, remote.Retryable())
}

func TestSubmit_StructuredDetail(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	sidecar.Script(testutil.EndpointGemini, testutil.Response{
		Status: http.StatusUnprocessableEntity,
		Body:   map[string]any{"detail": []map[string]string{{"msg": "field required"}}},
	})
	client := New(sidecar.URL())

	_, err := client.SubmitForGemini(context.Background(), pngFile("a.png"), []byte("img"))

	var remote *RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, remote.Detail, "field required")
}

func TestSubmit_TransportError(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	sidecar.Script(testutil.EndpointOCR, testutil.Response{Drop: true})
	client := New(sidecar.URL())

	_, err := client.SubmitForOCR(context.Background(), pngFile("a.png"), []byte("img"))

	var transport *TransportError
	require.True(t, errors.As(err, &transport))
	assert.Equal(t, "submit ocr", transport.Op)
}

func TestSubmit_UnreachableHost(t *testing.T) {
	client := New("http://127.0.0.1:1", WithTimeout(time.Second))

	_, err := client.SubmitForOCR(context.Background(), pngFile("a.png"), []byte("img"))

	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
}

type countingTransport struct {
	calls int
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return http.DefaultTransport.RoundTrip(req)
}

func TestWithTimeout_KeepsConfiguredHTTPClient(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	transport := &countingTransport{}
	custom := &http.Client{Transport: transport}

	client := New(sidecar.URL(), WithHTTPClient(custom), WithTimeout(5*time.Second))

	_, err := client.SubmitForOCR(context.Background(), pngFile("a.png"), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.Zero(t, custom.Timeout, "caller's client is not modified")
}

func TestSubmitForOCR_MissingExtractedText(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	sidecar.Script(testutil.EndpointOCR, testutil.Response{
		Status: http.StatusOK,
		Body:   map[string]string{"status": "success"},
	})
	client := New(sidecar.URL())

	_, err := client.SubmitForOCR(context.Background(), pngFile("a.png"), []byte("img"))

	var transport *TransportError
	assert.True(t, errors.As(err, &transport))
}

func TestCheckGeminiAvailability(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	client := New(sidecar.URL())

	got, err := client.CheckGeminiAvailability(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Available)

	sidecar.SetGeminiAvailable(false)
	got, err = client.CheckGeminiAvailability(context.Background())
	require.NoError(t, err)
	assert.False(t, got.Available)

	sidecar.Script(testutil.EndpointAvailability, testutil.Response{
		Status: http.StatusServiceUnavailable,
		Body:   map[string]string{"detail": "starting"},
	})
	_, err = client.CheckGeminiAvailability(context.Background())
	var remote *RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "starting", remote.Detail)
	assert.Equal(t, 3, sidecar.AvailabilityChecks())
}

func TestSubmit_CanceledContext(t *testing.T) {
	sidecar := testutil.NewSidecar(t)
	client := New(sidecar.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SubmitForOCR(ctx, pngFile("a.png"), []byte("img"))
	assert.ErrorIs(t, err, context.Canceled)
}
