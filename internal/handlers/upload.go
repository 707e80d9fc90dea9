package handlers

import (
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadBytes = 64 << 20

// HandleUpload accepts a PDF from the drop-zone form, keeps a local copy
// for the preview pane, and drives the session's upload operation. On
// success the browser is redirected to the new paper's workspace; on
// failure the landing page is re-rendered with the inline error.
func (m *Main) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		m.logger.Error("Missing upload file", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "A PDF file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !isPDF(header) {
		m.renderHome(w, homePageData{Err: "Only PDF files allowed"})
		return
	}

	localPath, err := m.savePDF(file)
	if err != nil {
		m.logger.Error("Failed to store uploaded pdf",
			slog.String("filename", header.Filename),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pdf, err := os.Open(localPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer pdf.Close()

	paperID, err := m.session.UploadPDF(r.Context(), header.Filename, pdf, localPath)
	if err != nil {
		m.logger.Error("Upload failed",
			slog.String("filename", header.Filename),
			slog.String(errLoggerKey, err.Error()))
		// The local copy is useless without a paper ID to key it.
		if rmErr := os.Remove(localPath); rmErr != nil {
			m.logger.Error("Failed to remove orphaned pdf",
				slog.String("path", localPath),
				slog.String(errLoggerKey, rmErr.Error()))
		}
		m.renderHome(w, homePageData{Err: err.Error()})
		return
	}

	http.Redirect(w, r, "/papers/"+paperID, http.StatusSeeOther)
}

// savePDF writes the uploaded file under the data directory and returns its
// path. The name is a fresh UUID since the backend's paper ID isn't known
// yet.
func (m *Main) savePDF(file multipart.File) (string, error) {
	dir := filepath.Join(m.dataDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, uuid.NewString()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return "", err
	}
	if err := dst.Close(); err != nil {
		return "", err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return path, nil
}

func isPDF(header *multipart.FileHeader) bool {
	if header.Header.Get("Content-Type") == "application/pdf" {
		return true
	}
	return strings.EqualFold(filepath.Ext(header.Filename), ".pdf")
}
