package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scholarlab/paper-web-ui/internal/models"
)

type homePageData struct {
	Papers []models.Paper
	Err    string
}

type paperPageData struct {
	Paper    models.Paper
	Messages []messageView
	State    stateView
}

// HandleHome renders the landing page: the upload drop-zone plus the list
// of previously uploaded papers.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	papers, err := m.store.Papers(r.Context())
	if err != nil {
		m.logger.Error("Failed to list papers",
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.renderHome(w, homePageData{Papers: papers, Err: m.session.Snapshot().Err})
}

func (m *Main) renderHome(w http.ResponseWriter, data homePageData) {
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandlePaper renders the workspace for one paper: the chat transcript, the
// collapsible summary drawer, and the embedded PDF viewer. Navigating to a
// paper that isn't the current one switches the session to it and fetches
// its cached summary from the backend.
func (m *Main) HandlePaper(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")

	paper, err := m.store.Paper(r.Context(), paperID)
	if err != nil {
		m.logger.Error("Failed to load paper",
			slog.String("paperID", paperID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if paper.ID == "" {
		http.Error(w, "paper not found", http.StatusNotFound)
		return
	}

	if m.session.Snapshot().CurrentPaperID != paperID {
		m.session.SetPaperContext(r.Context(), paperID, paper.PDFPath)
		if _, err := m.session.FetchSummary(r.Context(), paperID); err != nil {
			// The failure is already recorded in session state and shows up
			// inline; the workspace still renders.
			m.logger.Error("Failed to fetch summary",
				slog.String("paperID", paperID),
				slog.String(errLoggerKey, err.Error()))
		}
	}

	snap := m.session.Snapshot()
	data := paperPageData{
		Paper:    paper,
		Messages: m.messageViews(snap.Messages),
		State:    newStateView(snap),
	}
	if err := m.templates.ExecuteTemplate(w, "paper.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandlePaperPDF serves the locally stored copy of the uploaded PDF for the
// preview pane.
func (m *Main) HandlePaperPDF(w http.ResponseWriter, r *http.Request) {
	paperID := chi.URLParam(r, "id")

	paper, err := m.store.Paper(r.Context(), paperID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if paper.PDFPath == "" {
		http.Error(w, "no pdf stored for paper", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, paper.PDFPath)
}
