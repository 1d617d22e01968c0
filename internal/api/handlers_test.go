package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/certscan/backend/internal/config"
	"github.com/certscan/backend/internal/models"
	"github.com/certscan/backend/internal/ocrclient"
	"github.com/certscan/backend/internal/resizer"
	"github.com/certscan/backend/internal/testutil"
	"github.com/certscan/backend/internal/viewer"
	"github.com/certscan/backend/internal/workspace"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testServer struct {
	e       *echo.Echo
	ws      *workspace.Workspace
	sidecar *testutil.Sidecar
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sidecar := testutil.NewSidecar(t)

	cfg := config.DefaultConfig()
	cfg.OCRService.BaseURL = sidecar.URL()
	cfg.Run.RetryDelayMs = 0
	cfg.Advanced.EnableRequestLogging = false

	ws, err := workspace.New(context.Background(), cfg, ocrclient.New(sidecar.URL()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close(context.Background()) })

	e := echo.New()
	SetupMiddleware(e, cfg, nil)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Workspace:  ws,
		OCRBaseURL: sidecar.URL(),
		Version:    "test",
	}))

	return &testServer{e: e, ws: ws, sidecar: sidecar}
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/queue", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) enqueuePNGs(t *testing.T, names ...string) {
	t.Helper()
	var files []upload
	for _, n := range names {
		files = append(files, upload{name: n, contentType: "image/png", data: testutil.PNG(t, 12, 8)})
	}
	rec := s.upload(t, files...)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) runToCompletion(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/run", map[string]string{"backend": "ocr"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.ws.Runner.Wait(ctx))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestEnqueue(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t,
		upload{name: "a.png", contentType: "image/png", data: testutil.PNG(t, 4, 4)},
		upload{name: "notes.txt", contentType: "text/plain", data: []byte("hello")},
		upload{name: "b.png", contentType: "image/png", data: testutil.PNG(t, 4, 4)},
	)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Added    []models.FileRef        `json:"added"`
		Rejected []map[string]string     `json:"rejected"`
		Queue    workspace.QueueSnapshot `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Added, 2)
	assert.Equal(t, "a.png", body.Added[0].Name)
	require.Len(t, body.Rejected, 1)
	assert.Equal(t, "notes.txt", body.Rejected[0]["name"])
	assert.Len(t, body.Queue.Pending, 2)
}

func TestEnqueue_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.upload(t, upload{name: "notes.txt", contentType: "text/plain", data: []byte("hello")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/queue", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.True(t, s.ws.Queue.Lock())
	rec = s.upload(t, upload{name: "a.png", contentType: "image/png", data: testutil.PNG(t, 4, 4)})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode[APIError](t, rec).Code)
	s.ws.Queue.Unlock()
}

func TestQueueRemoveAndClear(t *testing.T) {
	s := newTestServer(t)
	s.enqueuePNGs(t, "a.png", "b.png", "c.png")
	pending := s.ws.Queue.List()

	rec := s.do(t, http.MethodDelete, "/api/queue/"+pending[0].ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/queue/"+pending[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[APIError](t, rec).Code)

	rec = s.do(t, http.MethodDelete, "/api/queue/_?index=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c.png", decode[models.FileRef](t, rec).Name)

	rec = s.do(t, http.MethodDelete, "/api/queue/_?index=9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/queue", nil)
	snap := decode[workspace.QueueSnapshot](t, rec)
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, "b.png", snap.Pending[0].Name)

	rec = s.do(t, http.MethodDelete, "/api/queue", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.ws.Queue.Len())
}

func TestThumbnailAndFile(t *testing.T) {
	s := newTestServer(t)
	s.enqueuePNGs(t, "a.png")
	ref := s.ws.Queue.List()[0]
	s.ws.Thumbs.Wait()

	rec := s.do(t, http.MethodGet, "/api/queue/"+ref.ID+"/thumbnail", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))

	rec = s.do(t, http.MethodGet, "/api/files/"+ref.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testutil.PNG(t, 12, 8), rec.Body.Bytes())

	rec = s.do(t, http.MethodGet, "/api/files/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/queue/missing/thumbnail", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFile_Headers(t *testing.T) {
	s := newTestServer(t)
	png, err := s.ws.AddFile(`award "final"; v2.png`, "image/png", bytes.NewReader(testutil.PNG(t, 4, 4)))
	require.NoError(t, err)
	svg, err := s.ws.AddFile("cert.svg", "image/svg+xml", strings.NewReader(`<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`))
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/files/"+png.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	disposition, params, err := mime.ParseMediaType(rec.Header().Get(echo.HeaderContentDisposition))
	require.NoError(t, err)
	assert.Equal(t, "inline", disposition)
	assert.Equal(t, `award "final"; v2.png`, params["filename"])
	assert.Equal(t, "sandbox", rec.Header().Get(echo.HeaderContentSecurityPolicy))

	rec = s.do(t, http.MethodGet, "/api/files/"+svg.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	disposition, params, err = mime.ParseMediaType(rec.Header().Get(echo.HeaderContentDisposition))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "cert.svg", params["filename"])
	assert.Equal(t, "sandbox", rec.Header().Get(echo.HeaderContentSecurityPolicy))
	assert.Equal(t, "nosniff", rec.Header().Get(echo.HeaderXContentTypeOptions))
}

func TestListFiles(t *testing.T) {
	s := newTestServer(t)
	s.enqueuePNGs(t, "a.png", "b.png")

	rec := s.do(t, http.MethodGet, "/api/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Files []workspace.StoredFile `json:"files"`
		Total int                    `json:"total"`
	}](t, rec)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Files, 2)
	assert.True(t, body.Files[0].Pending)

	rec = s.do(t, http.MethodGet, "/api/files?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[struct {
		Files []workspace.StoredFile `json:"files"`
	}](t, rec).Files, 1)

	rec = s.do(t, http.MethodGet, "/api/files?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunAndResults(t *testing.T) {
	s := newTestServer(t)
	s.enqueuePNGs(t, "maria.png", "jose.png")
	s.runToCompletion(t)

	rec := s.do(t, http.MethodGet, "/api/run", nil)
	status := decode[models.RunStatus](t, rec)
	assert.Equal(t, models.RunStateIdle, status.State)
	require.NotNil(t, status.LastOutcome)
	assert.Equal(t, models.OutcomeCompleted, status.LastOutcome.Status)
	assert.Equal(t, 2, status.LastOutcome.Processed)

	rec = s.do(t, http.MethodGet, "/api/results", nil)
	var table struct {
		Columns []string           `json:"columns"`
		Rows    []models.ResultRow `json:"rows"`
		Total   int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, 2, table.Total)
	assert.Equal(t, "FILE LOCATION", table.Columns[7])
	assert.Equal(t, "maria", table.Rows[0].Cell(models.CategoryAwardee))

	rec = s.do(t, http.MethodGet, "/api/results/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var packed struct {
		Total int `msgpack:"total"`
	}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, 2, packed.Total)
}

func TestRun_Errors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/run", map[string]string{"backend": "tesseract"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.True(t, s.ws.Queue.Lock())
	rec = s.do(t, http.MethodPost, "/api/run", map[string]string{"backend": "ocr"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	s.ws.Queue.Unlock()
}

func TestRun_GeminiUnavailableLeavesQueue(t *testing.T) {
	s := newTestServer(t)
	s.sidecar.SetGeminiAvailable(false)
	s.enqueuePNGs(t, "a.png")

	rec := s.do(t, http.MethodPost, "/api/run", map[string]string{"backend": "gemini"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, s.ws.Runner.Wait(context.Background()))

	assert.Equal(t, 1, s.ws.Queue.Len())
	assert.Zero(t, s.ws.Results.Len())
	assert.Empty(t, s.sidecar.Uploads())
	assert.Equal(t, models.OutcomeAvailabilityDenied, s.ws.Runner.Status().LastOutcome.Status)
}

func TestUpdateCellAndExport(t *testing.T) {
	s := newTestServer(t)
	s.enqueuePNGs(t, "a.png")
	s.runToCompletion(t)
	row := s.ws.Results.Rows()[0]

	rec := s.do(t, http.MethodPut, "/api/results/"+row.ID+"/cells/event", map[string]string{"text": "Summit, \"2025\""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Summit, \"2025\"", decode[models.ResultRow](t, rec).Cell(models.CategoryEvent))

	rec = s.do(t, http.MethodPut, "/api/results/"+row.ID+"/cells/color", map[string]string{"text": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPut, "/api/results/missing/cells/event", map[string]string{"text": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPut, "/api/results/"+row.ID+"/cells/event", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/results/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), `filename="ocr_results.csv"`)
	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "TYPE,AWARDEE,ROLE,EVENT,DATE,LOCATION,SIGNATORIES,FILE LOCATION", lines[0])
	assert.Contains(t, lines[1], `"Summit, ""2025"""`)
	assert.True(t, strings.HasSuffix(lines[1], `"a.png"`))

	rec = s.do(t, http.MethodDelete, "/api/results", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, s.ws.Results.Len())
}

func TestViewerFlow(t *testing.T) {
	s := newTestServer(t)
	s.enqueuePNGs(t, "cert.png")
	s.runToCompletion(t)
	row := s.ws.Results.Rows()[0]

	rec := s.do(t, http.MethodPost, "/api/viewer/open", map[string]string{"rowId": row.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[viewer.State](t, rec)
	assert.True(t, st.Visible)
	assert.Equal(t, "cert.png", st.Title)

	rec = s.do(t, http.MethodPost, "/api/viewer/drag/start", map[string]interface{}{"x": 10, "y": 10, "region": "header"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/viewer/drag/move", map[string]interface{}{"x": 30, "y": 15})
	st = decode[viewer.State](t, rec)
	assert.Equal(t, viewer.Offset{X: 20, Y: 5}, st.Offset)
	s.do(t, http.MethodPost, "/api/viewer/drag/end", nil)

	rec = s.do(t, http.MethodDelete, "/api/viewer", nil)
	st = decode[viewer.State](t, rec)
	assert.False(t, st.Visible)
	assert.Equal(t, "translateX(-50%)", st.Transform)

	rec = s.do(t, http.MethodPost, "/api/viewer/open", map[string]string{"rowId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/viewer/open", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestColumnResize(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/columns/AWARDEE/resize/start", map[string]interface{}{"x": 200})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/columns/ROLE/resize/start", map[string]interface{}{"x": 0})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/columns/resize/move", map[string]interface{}{"x": 240})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resizer.DefaultWidth+40, decode[resizer.Column](t, rec).Width)

	rec = s.do(t, http.MethodPost, "/api/columns/resize/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/columns", nil)
	var body struct {
		Columns []resizer.Column `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, c := range body.Columns {
		if c.Key == "AWARDEE" {
			assert.Equal(t, resizer.DefaultWidth+40, c.Width)
		} else {
			assert.Equal(t, resizer.DefaultWidth, c.Width)
		}
	}

	rec = s.do(t, http.MethodPost, "/api/columns/NOPE/resize/start", map[string]interface{}{"x": 0})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/columns/resize/move", map[string]interface{}{"x": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
