package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tmaxmax/go-sse"

	"github.com/scholarlab/paper-web-ui/internal/models"
	"github.com/scholarlab/paper-web-ui/internal/session"
)

// messageView is a transcript entry prepared for template rendering, with
// the markdown already converted to HTML.
type messageView struct {
	ID        string
	Role      string
	HTML      template.HTML
	Sources   []models.Source
	Pending   bool
	Timestamp string
}

// stateView feeds the workspace status region: the summary drawer, the
// loading indicators, and the inline error.
type stateView struct {
	PaperID  string
	Sections []models.SummarySection
	Title    string
	Authors  string

	IsLoadingUpload  bool
	IsLoadingSummary bool
	IsLoadingChat    bool

	Err string
}

// HandleSSE hands the connection to the SSE server, which keeps it open and
// streams transcript and state updates.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// forwardEvents drains the session event queue and republishes each change
// to connected clients. It is the only goroutine that publishes updates, so
// clients see state changes in mutation order.
func (m *Main) forwardEvents() {
	for {
		select {
		case <-m.quit:
			return
		case ev := <-m.events:
			m.publishUpdate(ev)
		}
	}
}

func (m *Main) publishUpdate(ev session.Event) {
	snap := m.session.Snapshot()

	transcript, err := m.renderTranscript(snap)
	if err != nil {
		m.logger.Error("Failed to render transcript",
			slog.String(errLoggerKey, err.Error()))
		return
	}
	msg := &sse.Message{Type: messagesSSEType}
	msg.AppendData(transcript)
	if err := m.sseSrv.Publish(msg, updatesSSETopic); err != nil {
		m.logger.Error("Failed to publish messages",
			slog.String(errLoggerKey, err.Error()))
	}

	state, err := m.renderState(snap)
	if err != nil {
		m.logger.Error("Failed to render state",
			slog.String(errLoggerKey, err.Error()))
		return
	}
	stMsg := &sse.Message{Type: stateSSEType}
	stMsg.AppendData(state)
	if err := m.sseSrv.Publish(stMsg, updatesSSETopic); err != nil {
		m.logger.Error("Failed to publish state",
			slog.String(errLoggerKey, err.Error()))
	}

	if ev.Kind == session.EventReset {
		reset := &sse.Message{Type: sse.Type("reset")}
		reset.AppendData("cleared")
		_ = m.sseSrv.Publish(reset, updatesSSETopic)
	}
}

func (m *Main) renderTranscript(snap session.Snapshot) (string, error) {
	var sb strings.Builder
	for _, mv := range m.messageViews(snap.Messages) {
		if err := m.templates.ExecuteTemplate(&sb, "chat_message", mv); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}

func (m *Main) renderState(snap session.Snapshot) (string, error) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "workspace_state", newStateView(snap)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (m *Main) messageViews(messages []models.Message) []messageView {
	views := make([]messageView, len(messages))
	for i, msg := range messages {
		views[i] = messageView{
			ID:        msg.ID,
			Role:      string(msg.Role),
			HTML:      m.renderMarkdown(msg.Text),
			Sources:   msg.Sources,
			Pending:   msg.Pending,
			Timestamp: msg.Timestamp.Format("15:04"),
		}
	}
	return views
}

func (m *Main) renderMarkdown(text string) template.HTML {
	var sb strings.Builder
	if err := m.markdown.Convert([]byte(text), &sb); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(sb.String())
}

func newStateView(snap session.Snapshot) stateView {
	return stateView{
		PaperID:          snap.CurrentPaperID,
		Sections:         snap.Summary.Sections(),
		Title:            snap.Summary.Title,
		Authors:          snap.Summary.Authors,
		IsLoadingUpload:  snap.IsLoadingUpload,
		IsLoadingSummary: snap.IsLoadingSummary,
		IsLoadingChat:    snap.IsLoadingChat,
		Err:              snap.Err,
	}
}
