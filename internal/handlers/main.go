package handlers

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"time"

	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"

	paperwebui "github.com/scholarlab/paper-web-ui"
	"github.com/scholarlab/paper-web-ui/internal/models"
	"github.com/scholarlab/paper-web-ui/internal/session"
)

// Store is the persistence surface the handlers need: everything the
// session writes through, plus paper lookup for the workspace routes.
type Store interface {
	session.Store

	Paper(ctx context.Context, paperID string) (models.Paper, error)
}

// Main handles the core functionality of the paper workspace, managing
// server-sent events, HTML templates, and the interactions between the
// session store, the RAG backend, and persistence.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	markdown  goldmark.Markdown

	session *session.Session
	store   Store
	dataDir string

	events chan session.Event
	quit   chan struct{}

	logger *slog.Logger
}

const (
	updatesSSETopic = "updates"

	errLoggerKey = "err"
)

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	stateSSEType    = sse.Type("state")
)

// NewMain creates a new Main instance wired to the given backend and store.
// It parses the embedded HTML templates, initializes the SSE server, and
// starts the session command loop plus the goroutine that forwards session
// events to connected clients. dataDir is where uploaded PDFs are kept for
// the preview pane.
func NewMain(backend session.Backend, store Store, dataDir string, logger *slog.Logger) (*Main, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			highlighting.NewHighlighting(highlighting.WithStyle("github")),
		),
	)

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": func(text string) template.HTML {
			var buf bytes.Buffer
			if err := md.Convert([]byte(text), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(text))
			}
			return template.HTML(buf.String())
		},
	}).ParseFS(
		paperwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, err
	}

	m := &Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, updatesSSETopic},
				}, true
			},
		},
		templates: tmpl,
		markdown:  md,
		store:     store,
		dataDir:   dataDir,
		events:    make(chan session.Event, 64),
		quit:      make(chan struct{}),
		logger:    logger.With(slog.String("module", "handlers")),
	}
	m.session = session.New(backend, store, m.queueEvent, logger)

	go m.forwardEvents()

	return m, nil
}

// Session exposes the underlying state store, mainly for tests.
func (m *Main) Session() *session.Session {
	return m.session
}

// queueEvent hands a session event to the forwarding goroutine. It is
// called from inside the session's command loop and must never block, so a
// full queue drops the event; the next one re-renders the full state
// anyway.
func (m *Main) queueEvent(ev session.Event) {
	select {
	case m.events <- ev:
	default:
	}
}

// Shutdown gracefully terminates the Main instance. It stops the session
// loop and the event forwarder, broadcasts a close message to all connected
// clients, and waits up to 5 seconds for connections to terminate.
func (m *Main) Shutdown(ctx context.Context) error {
	m.session.Close()
	close(m.quit)

	e := &sse.Message{Type: sse.Type("close")}
	// The SSE spec requires data on every event, even a goodbye.
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
