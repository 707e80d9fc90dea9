// Package ragclient binds the three HTTP endpoints of the external RAG
// backend: PDF upload, cached summary retrieval, and retrieval-augmented
// chat. The backend's parsing, embedding, and LLM work is opaque to this
// package; it only shapes requests and normalizes errors.
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/scholarlab/paper-web-ui/internal/models"
)

// DefaultTimeout bounds a single backend call. Uploads trigger server-side
// PDF parsing and summarization, which can take well over a minute.
const DefaultTimeout = 120 * time.Second

// Client provides access to the RAG backend over HTTP. All methods are safe
// for concurrent use.
type Client struct {
	baseURL string

	httpClient *http.Client
	logger     *slog.Logger
}

// UploadResult is the backend's response to a PDF upload: the token that
// keys all later requests for the paper, plus the initial summary.
type UploadResult struct {
	PaperID string         `json:"paper_id"`
	Summary models.Summary `json:"summary"`
}

// ChatResult is the backend's answer to a question, with the optional
// citation sources the answer was grounded in.
type ChatResult struct {
	Answer  string          `json:"answer"`
	Sources []models.Source `json:"sources,omitempty"`
}

// APIError is a non-2xx backend response. Detail carries the structured
// error message when the body contained one.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}

// New creates a Client for the backend at baseURL. A timeout of zero means
// DefaultTimeout.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(slog.String("module", "ragclient")),
	}
}

// UploadPDF posts the PDF as the multipart field "file" and returns the
// backend-assigned paper token together with the initial summary.
func (c Client) UploadPDF(ctx context.Context, filename string, pdf io.Reader) (UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// The backend rejects parts without a PDF content type, so the part
	// header is built by hand instead of CreateFormFile.
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", "application/pdf")
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return UploadResult{}, fmt.Errorf("failed to buffer pdf: %w", err)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/pdf", &body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res UploadResult
	if err := c.do(req, &res); err != nil {
		return UploadResult{}, err
	}

	c.logger.Debug("Uploaded pdf",
		slog.String("filename", filename),
		slog.String("paperID", res.PaperID))

	return res, nil
}

// Summary fetches the cached structured summary for a paper.
func (c Client) Summary(ctx context.Context, paperID string) (models.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/summary/"+url.PathEscape(paperID), nil)
	if err != nil {
		return models.Summary{}, fmt.Errorf("failed to create request: %w", err)
	}

	var res models.Summary
	if err := c.do(req, &res); err != nil {
		return models.Summary{}, err
	}
	return res, nil
}

// Chat posts a question about a paper and returns the answer with its
// citation sources.
func (c Client) Chat(ctx context.Context, paperID, query string) (ChatResult, error) {
	payload, err := json.Marshal(struct {
		PaperID string `json:"paper_id"`
		Query   string `json:"query"`
	}{PaperID: paperID, Query: query})
	if err != nil {
		return ChatResult{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat", bytes.NewReader(payload))
	if err != nil {
		return ChatResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res ChatResult
	if err := c.do(req, &res); err != nil {
		return ChatResult{}, err
	}
	return res, nil
}

// do executes the request and decodes the JSON response into out. It is the
// sole error-normalization point: a non-2xx body carrying a "detail" string
// surfaces as an *APIError with that string, anything else keeps the
// transport or status error as-is. No retries.
func (c Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apiError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func apiError(status int, body []byte) *APIError {
	var payload struct {
		Detail string `json:"detail"`
	}
	// A malformed error body still yields a usable status error.
	_ = json.Unmarshal(body, &payload)

	return &APIError{StatusCode: status, Detail: payload.Detail}
}
