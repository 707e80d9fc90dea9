// Package session owns the application state for the paper workspace: the
// current paper, its summary, the chat transcript, and the loading/error
// flags the view renders. All state lives behind a single-writer command
// loop; every mutation is a closure handled sequentially by one goroutine,
// so no locking is needed anywhere else.
package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scholarlab/paper-web-ui/internal/models"
	"github.com/scholarlab/paper-web-ui/internal/ragclient"
)

// Backend is the slice of the RAG backend the session drives. It is
// satisfied by ragclient.Client.
type Backend interface {
	UploadPDF(ctx context.Context, filename string, pdf io.Reader) (ragclient.UploadResult, error)
	Summary(ctx context.Context, paperID string) (models.Summary, error)
	Chat(ctx context.Context, paperID, query string) (ragclient.ChatResult, error)
}

// Store persists papers and transcripts so a workspace can be reopened
// after a restart. Persistence is write-through and best-effort: a failed
// write is logged but never fails the user-facing operation.
type Store interface {
	Papers(ctx context.Context) ([]models.Paper, error)
	AddPaper(ctx context.Context, paper models.Paper) error

	Messages(ctx context.Context, paperID string) ([]models.Message, error)
	AddMessage(ctx context.Context, paperID string, message models.Message) error
	UpdateMessage(ctx context.Context, paperID string, message models.Message) error
	DeleteMessages(ctx context.Context, paperID string) error
}

// EventKind classifies a state-change notification.
type EventKind string

const (
	// EventState signals a change to the summary, loading flags, or error.
	EventState EventKind = "state"
	// EventMessageAdded signals a new transcript entry.
	EventMessageAdded EventKind = "message-added"
	// EventMessageUpdated signals a pending placeholder being resolved.
	EventMessageUpdated EventKind = "message-updated"
	// EventReset signals the session returning to its initial state.
	EventReset EventKind = "reset"
)

// Event is emitted from inside the command loop after each applied
// mutation, in mutation order.
type Event struct {
	Kind      EventKind
	MessageID string
}

// Snapshot is a consistent copy of the session state for rendering.
type Snapshot struct {
	CurrentPaperID string
	PDFPath        string
	Summary        models.Summary
	Messages       []models.Message

	IsLoadingUpload  bool
	IsLoadingSummary bool
	IsLoadingChat    bool

	Err string
}

type state struct {
	currentPaperID string
	pdfPath        string
	summary        models.Summary
	messages       []models.Message

	isLoadingUpload  bool
	isLoadingSummary bool
	isLoadingChat    bool

	err string
}

// Session is the process-wide state store. The zero value is not usable;
// create one with New and release it with Close.
type Session struct {
	backend Backend
	store   Store
	notify  func(Event)
	logger  *slog.Logger

	cmds chan func(*state)
	quit chan struct{}
}

// New creates a Session and starts its command loop. The notify callback is
// invoked from the loop goroutine after every mutation; it must not call
// back into the session. A nil notify disables events.
func New(backend Backend, store Store, notify func(Event), logger *slog.Logger) *Session {
	if notify == nil {
		notify = func(Event) {}
	}
	s := &Session{
		backend: backend,
		store:   store,
		notify:  notify,
		logger:  logger.With(slog.String("module", "session")),
		cmds:    make(chan func(*state)),
		quit:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	st := &state{}
	for {
		select {
		case fn := <-s.cmds:
			fn(st)
		case <-s.quit:
			return
		}
	}
}

// Close stops the command loop. Operations in flight after Close become
// no-ops.
func (s *Session) Close() {
	close(s.quit)
}

// apply runs fn inside the command loop and waits for it to complete.
func (s *Session) apply(fn func(*state)) {
	done := make(chan struct{})
	select {
	case s.cmds <- func(st *state) {
		fn(st)
		close(done)
	}:
		<-done
	case <-s.quit:
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	s.apply(func(st *state) {
		snap = Snapshot{
			CurrentPaperID:   st.currentPaperID,
			PDFPath:          st.pdfPath,
			Summary:          st.summary,
			Messages:         append([]models.Message(nil), st.messages...),
			IsLoadingUpload:  st.isLoadingUpload,
			IsLoadingSummary: st.isLoadingSummary,
			IsLoadingChat:    st.isLoadingChat,
			Err:              st.err,
		}
	})
	return snap
}

// UploadPDF sends the PDF to the backend and, on success, makes the new
// paper current: the returned summary is stored, the transcript restarts
// with a greeting synthesized from the summary, and pdfPath becomes the
// local preview reference. Returns the backend-assigned paper ID. On
// failure the error text is recorded in state and the error returned.
func (s *Session) UploadPDF(ctx context.Context, filename string, pdf io.Reader, pdfPath string) (string, error) {
	s.apply(func(st *state) {
		st.isLoadingUpload = true
		st.err = ""
		s.notify(Event{Kind: EventState})
	})

	res, err := s.backend.UploadPDF(ctx, filename, pdf)
	if err != nil {
		s.recordError(err, func(st *state) { st.isLoadingUpload = false })
		return "", err
	}

	greeting := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Text:      res.Summary.Greeting(),
		Timestamp: time.Now(),
	}

	s.apply(func(st *state) {
		st.currentPaperID = res.PaperID
		st.pdfPath = pdfPath
		st.summary = res.Summary
		st.messages = []models.Message{greeting}
		st.isLoadingUpload = false
		s.notify(Event{Kind: EventState})
		s.notify(Event{Kind: EventMessageAdded, MessageID: greeting.ID})
	})

	s.persistPaper(ctx, models.Paper{
		ID:         res.PaperID,
		Filename:   filename,
		PDFPath:    pdfPath,
		UploadedAt: time.Now(),
	})
	s.persistAdd(ctx, res.PaperID, greeting)

	return res.PaperID, nil
}

// FetchSummary retrieves the cached summary for paperID and stores it. A
// greeting is synthesized only when the transcript is still empty, so
// repeated fetches never duplicate it.
func (s *Session) FetchSummary(ctx context.Context, paperID string) (models.Summary, error) {
	s.apply(func(st *state) {
		st.isLoadingSummary = true
		st.err = ""
		s.notify(Event{Kind: EventState})
	})

	sum, err := s.backend.Summary(ctx, paperID)
	if err != nil {
		s.recordError(err, func(st *state) { st.isLoadingSummary = false })
		return models.Summary{}, err
	}

	var greeting *models.Message
	s.apply(func(st *state) {
		st.summary = sum
		st.isLoadingSummary = false
		if len(st.messages) == 0 && !sum.IsZero() {
			msg := models.Message{
				ID:        uuid.NewString(),
				Role:      models.RoleAssistant,
				Text:      sum.Greeting(),
				Timestamp: time.Now(),
			}
			st.messages = append(st.messages, msg)
			greeting = &msg
		}
		s.notify(Event{Kind: EventState})
		if greeting != nil {
			s.notify(Event{Kind: EventMessageAdded, MessageID: greeting.ID})
		}
	})

	if greeting != nil {
		s.persistAdd(ctx, paperID, *greeting)
	}

	return sum, nil
}

// AskQuestion appends the user's question and a pending assistant
// placeholder immediately, then asks the backend. On success the
// placeholder, matched by its ID which never changes, is resolved into
// the answer and its sources. On failure the placeholder text is rewritten
// with the error message and the error is both recorded and returned. A
// late answer whose placeholder is gone (the paper was switched or the
// session reset) is dropped.
func (s *Session) AskQuestion(ctx context.Context, paperID, query string) (models.Message, error) {
	userMsg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Text:      query,
		Timestamp: time.Now(),
	}
	placeholder := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Text:      models.PendingAnswerText,
		Pending:   true,
		Timestamp: time.Now(),
	}

	s.apply(func(st *state) {
		st.isLoadingChat = true
		st.err = ""
		st.messages = append(st.messages, userMsg, placeholder)
		s.notify(Event{Kind: EventState})
		s.notify(Event{Kind: EventMessageAdded, MessageID: userMsg.ID})
		s.notify(Event{Kind: EventMessageAdded, MessageID: placeholder.ID})
	})

	s.persistAdd(ctx, paperID, userMsg)
	s.persistAdd(ctx, paperID, placeholder)

	res, err := s.backend.Chat(ctx, paperID, query)
	if err != nil {
		failed := placeholder
		failed.Text = err.Error()
		failed.Pending = false

		var applied bool
		s.apply(func(st *state) {
			st.isLoadingChat = false
			st.err = err.Error()
			applied = resolvePlaceholder(st, failed)
			s.notify(Event{Kind: EventState})
			if applied {
				s.notify(Event{Kind: EventMessageUpdated, MessageID: failed.ID})
			}
		})
		if applied {
			s.persistUpdate(ctx, paperID, failed)
		}
		return models.Message{}, err
	}

	final := placeholder
	final.Text = res.Answer
	final.Sources = res.Sources
	final.Pending = false

	var applied bool
	s.apply(func(st *state) {
		st.isLoadingChat = false
		applied = resolvePlaceholder(st, final)
		s.notify(Event{Kind: EventState})
		if applied {
			s.notify(Event{Kind: EventMessageUpdated, MessageID: final.ID})
		}
	})

	if !applied {
		s.logger.Warn("Dropping answer for superseded question",
			slog.String("paperID", paperID),
			slog.String("messageID", final.ID))
		return final, nil
	}

	s.persistUpdate(ctx, paperID, final)

	return final, nil
}

// Reset returns the session to its initial state. Persisted papers and
// transcripts are untouched; only the live workspace is cleared.
func (s *Session) Reset() {
	s.apply(func(st *state) {
		*st = state{}
		s.notify(Event{Kind: EventReset})
	})
}

// SetPaperContext makes paperID the current paper without consulting the
// backend, used when navigating straight to a workspace route. Switching
// away from another paper swaps in that paper's persisted transcript and
// clears the stale summary; re-setting the current paper leaves both
// untouched.
func (s *Session) SetPaperContext(ctx context.Context, paperID, pdfPath string) {
	var persisted []models.Message
	if s.store != nil {
		msgs, err := s.store.Messages(ctx, paperID)
		if err != nil {
			s.logger.Error("Failed to load persisted transcript",
				slog.String("paperID", paperID),
				slog.String(errLoggerKey, err.Error()))
		} else {
			persisted = msgs
		}
	}

	s.apply(func(st *state) {
		if st.currentPaperID == paperID {
			if pdfPath != "" {
				st.pdfPath = pdfPath
			}
			return
		}
		st.currentPaperID = paperID
		st.pdfPath = pdfPath
		st.summary = models.Summary{}
		st.messages = persisted
		st.err = ""
		s.notify(Event{Kind: EventState})
	})
}

const errLoggerKey = "err"

// recordError stores the normalized error text and runs extra flag
// cleanup, all in one mutation.
func (s *Session) recordError(err error, clear func(*state)) {
	s.apply(func(st *state) {
		clear(st)
		st.err = err.Error()
		s.notify(Event{Kind: EventState})
	})
}

// resolvePlaceholder swaps the message with final's ID for final. Reports
// whether the placeholder was still present.
func resolvePlaceholder(st *state, final models.Message) bool {
	for i := range st.messages {
		if st.messages[i].ID == final.ID {
			st.messages[i] = final
			return true
		}
	}
	return false
}

func (s *Session) persistPaper(ctx context.Context, paper models.Paper) {
	if s.store == nil {
		return
	}
	if err := s.store.AddPaper(ctx, paper); err != nil {
		s.logger.Error("Failed to persist paper",
			slog.String("paperID", paper.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (s *Session) persistAdd(ctx context.Context, paperID string, msg models.Message) {
	if s.store == nil {
		return
	}
	if err := s.store.AddMessage(ctx, paperID, msg); err != nil {
		s.logger.Error("Failed to persist message",
			slog.String("paperID", paperID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (s *Session) persistUpdate(ctx context.Context, paperID string, msg models.Message) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateMessage(ctx, paperID, msg); err != nil {
		s.logger.Error("Failed to persist message update",
			slog.String("paperID", paperID),
			slog.String(errLoggerKey, err.Error()))
	}
}
