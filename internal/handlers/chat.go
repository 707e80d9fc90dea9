package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/scholarlab/paper-web-ui/internal/models"
)

// HandleChats processes a chat submission for the current paper. It expects
// "message" and "paper_id" form fields. The session appends the user
// message and a pending assistant placeholder immediately; both reach the
// browser over SSE before the backend answers. The handler then waits for
// the answer so the final assistant message is also the response body.
//
// The backend call runs on a background context: navigating away must not
// cancel an exchange in flight, and the resolved answer is still applied to
// (and persisted for) its paper.
func (m *Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.FormValue("message")
	if query == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	paperID := r.FormValue("paper_id")
	if paperID == "" {
		m.logger.Error("Paper id is required")
		http.Error(w, "Paper id is required", http.StatusBadRequest)
		return
	}

	final, err := m.session.AskQuestion(context.Background(), paperID, query)
	if err != nil {
		// The placeholder has already been rewritten with the error text
		// and published; the status code is for the submitting client.
		m.logger.Error("Chat exchange failed",
			slog.String("paperID", paperID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	view := m.messageViews([]models.Message{final})[0]
	if err := m.templates.ExecuteTemplate(w, "chat_message", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleReset clears all paper-scoped session state and sends the user back
// to the landing page.
func (m *Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.session.Reset()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
