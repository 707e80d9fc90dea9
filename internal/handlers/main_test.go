package handlers_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarlab/paper-web-ui/internal/handlers"
	"github.com/scholarlab/paper-web-ui/internal/models"
	"github.com/scholarlab/paper-web-ui/internal/ragclient"
	"github.com/scholarlab/paper-web-ui/internal/services"
)

type mockBackend struct {
	uploadFn  func(filename string) (ragclient.UploadResult, error)
	summaryFn func(paperID string) (models.Summary, error)
	chatFn    func(paperID, query string) (ragclient.ChatResult, error)
}

func (m mockBackend) UploadPDF(_ context.Context, filename string, _ io.Reader) (ragclient.UploadResult, error) {
	return m.uploadFn(filename)
}

func (m mockBackend) Summary(_ context.Context, paperID string) (models.Summary, error) {
	return m.summaryFn(paperID)
}

func (m mockBackend) Chat(_ context.Context, paperID, query string) (ragclient.ChatResult, error) {
	return m.chatFn(paperID, query)
}

type fixture struct {
	main  *handlers.Main
	store services.BoltDB
	srv   *httptest.Server
}

func newFixture(t *testing.T, backend mockBackend) fixture {
	t.Helper()

	dataDir := t.TempDir()
	store, err := services.NewBoltDB(filepath.Join(dataDir, "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := handlers.NewMain(backend, store, dataDir, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Get("/", m.HandleHome)
	r.Post("/papers", m.HandleUpload)
	r.Get("/papers/{id}", m.HandlePaper)
	r.Get("/papers/{id}/pdf", m.HandlePaperPDF)
	r.Post("/chats", m.HandleChats)
	r.Post("/reset", m.HandleReset)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return fixture{main: m, store: store, srv: srv}
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func pdfUploadRequest(t *testing.T, url, filename, contentType string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = io.WriteString(part, "%PDF-1.4 fake")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleHome(t *testing.T) {
	f := newFixture(t, mockBackend{})

	require.NoError(t, f.store.AddPaper(context.Background(), models.Paper{
		ID:       "p1",
		Filename: "transformers.pdf",
	}))

	resp, err := http.Get(f.srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "Chat with a research paper")
	assert.Contains(t, string(body), "transformers.pdf")
}

func TestHandleUpload(t *testing.T) {
	backend := mockBackend{
		uploadFn: func(filename string) (ragclient.UploadResult, error) {
			if filename == "broken.pdf" {
				return ragclient.UploadResult{}, &ragclient.APIError{
					StatusCode: http.StatusBadRequest,
					Detail:     "bad file",
				}
			}
			return ragclient.UploadResult{
				PaperID: "p1",
				Summary: models.Summary{Title: "X"},
			}, nil
		},
	}

	tests := []struct {
		name         string
		filename     string
		contentType  string
		wantStatus   int
		wantBody     string
		wantLocation string
	}{
		{
			name:         "valid pdf redirects to workspace",
			filename:     "paper.pdf",
			contentType:  "application/pdf",
			wantStatus:   http.StatusSeeOther,
			wantLocation: "/papers/p1",
		},
		{
			name:        "non-pdf rejected inline",
			filename:    "notes.txt",
			contentType: "text/plain",
			wantStatus:  http.StatusOK,
			wantBody:    "Only PDF files allowed",
		},
		{
			name:        "backend detail error shown inline",
			filename:    "broken.pdf",
			contentType: "application/pdf",
			wantStatus:  http.StatusOK,
			wantBody:    "bad file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, backend)

			req := pdfUploadRequest(t, f.srv.URL+"/papers", tt.filename, tt.contentType)
			resp, err := noRedirectClient().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, resp.Header.Get("Location"))
			}
			if tt.wantBody != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), tt.wantBody)
			}
		})
	}
}

func TestHandleUploadMissingFile(t *testing.T) {
	f := newFixture(t, mockBackend{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/papers", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandlePaper(t *testing.T) {
	backend := mockBackend{
		summaryFn: func(paperID string) (models.Summary, error) {
			return models.Summary{Title: "X", Abstract: "About X."}, nil
		},
	}
	f := newFixture(t, backend)

	pdfPath := filepath.Join(t.TempDir(), "p1.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 fake"), 0o644))
	require.NoError(t, f.store.AddPaper(context.Background(), models.Paper{
		ID:       "p1",
		Filename: "paper.pdf",
		PDFPath:  pdfPath,
	}))

	resp, err := http.Get(f.srv.URL + "/papers/p1")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "X")
	assert.Contains(t, string(body), "About X.")

	// The summary fetch made p1 current and synthesized the greeting.
	snap := f.main.Session().Snapshot()
	assert.Equal(t, "p1", snap.CurrentPaperID)
	require.Len(t, snap.Messages, 1)
}

func TestHandlePaperNotFound(t *testing.T) {
	f := newFixture(t, mockBackend{})

	resp, err := http.Get(f.srv.URL + "/papers/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlePaperPDF(t *testing.T) {
	f := newFixture(t, mockBackend{})

	pdfPath := filepath.Join(t.TempDir(), "p1.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4 fake"), 0o644))
	require.NoError(t, f.store.AddPaper(context.Background(), models.Paper{
		ID:      "p1",
		PDFPath: pdfPath,
	}))

	resp, err := http.Get(f.srv.URL + "/papers/p1/pdf")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4 fake", string(body))
}

func TestHandleChats(t *testing.T) {
	backend := mockBackend{
		chatFn: func(paperID, query string) (ragclient.ChatResult, error) {
			return ragclient.ChatResult{
				Answer:  "Y",
				Sources: []models.Source{{Section: "intro", Index: 1}},
			}, nil
		},
	}

	tests := []struct {
		name       string
		form       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing message",
			form:       "paper_id=p1",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing paper id",
			form:       "message=hello",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "successful exchange",
			form:       "message=What%20is%20X%3F&paper_id=p1",
			wantStatus: http.StatusOK,
			wantBody:   "Y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, backend)

			resp, err := http.Post(f.srv.URL+"/chats",
				"application/x-www-form-urlencoded", strings.NewReader(tt.form))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), tt.wantBody)
			}
		})
	}
}

func TestHandleChatsFailureKeepsTranscript(t *testing.T) {
	backend := mockBackend{
		chatFn: func(string, string) (ragclient.ChatResult, error) {
			return ragclient.ChatResult{}, &ragclient.APIError{
				StatusCode: http.StatusServiceUnavailable,
				Detail:     "model unavailable",
			}
		},
	}
	f := newFixture(t, backend)

	resp, err := http.Post(f.srv.URL+"/chats",
		"application/x-www-form-urlencoded", strings.NewReader("message=q&paper_id=p1"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	snap := f.main.Session().Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "model unavailable", snap.Messages[1].Text)
}

func TestHandleReset(t *testing.T) {
	f := newFixture(t, mockBackend{})

	resp, err := noRedirectClient().Post(f.srv.URL+"/reset",
		"application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}
