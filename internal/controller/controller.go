// Package controller orchestrates the send-message lifecycle and all
// session CRUD against the remote store: optimistic local edits first,
// remote persistence second, then a wholesale refresh from remote
// truth. It is the only component allowed to mutate the session store
// apart from the stream ingestor's last-message folds.
package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/domain"
	"github.com/jmwagner/plausch/internal/search"
	"github.com/jmwagner/plausch/internal/service"
	"github.com/jmwagner/plausch/internal/share"
	"github.com/jmwagner/plausch/internal/store"
	"github.com/jmwagner/plausch/internal/stream"
)

// RemoteStore is the durable session store collaborator. Every write is
// scoped by session id and owner id.
type RemoteStore interface {
	SelectByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Session, error)
	Insert(ctx context.Context, owner uuid.UUID, title string, state domain.TitleState) (*domain.Session, error)
	UpdateMessages(ctx context.Context, id, owner uuid.UUID, messages []domain.Message, spend decimal.Decimal) error
	UpdateTitle(ctx context.Context, id, owner uuid.UUID, title string, state domain.TitleState) error
	UpdateTitleIfPlaceholder(ctx context.Context, id, owner uuid.UUID, title string) (bool, error)
	UpdateShare(ctx context.Context, id, owner uuid.UUID, isPublic bool) error
	Delete(ctx context.Context, id, owner uuid.UUID) error
}

// Streamer opens an incremental completion stream for a chat history.
type Streamer interface {
	ChatStream(ctx context.Context, messages []service.ChatMessage, temperature *float64) (io.ReadCloser, error)
}

// Titler produces a session title from the first user message.
type Titler interface {
	Synthesize(ctx context.Context, text string) string
}

type Controller struct {
	cfg      *config.Config
	store    *store.Store
	repo     RemoteStore
	llm      Streamer
	titles   Titler
	clip     share.Clipboard
	ingestor *stream.Ingestor

	mu       sync.Mutex
	owner    uuid.UUID
	inflight map[uuid.UUID]struct{}

	titleWG sync.WaitGroup
	refresh singleflight.Group
}

// Deps contains everything required to construct a Controller. Clip and
// Titles may be nil; the corresponding features degrade gracefully.
type Deps struct {
	Cfg    *config.Config
	Store  *store.Store
	Repo   RemoteStore
	LLM    Streamer
	Titles Titler
	Clip   share.Clipboard
}

func New(deps Deps) *Controller {
	return &Controller{
		cfg:      deps.Cfg,
		store:    deps.Store,
		repo:     deps.Repo,
		llm:      deps.LLM,
		titles:   deps.Titles,
		clip:     deps.Clip,
		ingestor: stream.NewIngestor(deps.Store),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// SetOwner switches the current session owner and reloads from remote.
// A zero owner clears the collection.
func (c *Controller) SetOwner(ctx context.Context, owner uuid.UUID) error {
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()

	if owner == uuid.Nil {
		c.store.ReplaceAll(nil)
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Controller) ownerID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

// Loading reports whether a send is in flight for the given session.
func (c *Controller) Loading(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[id]
	return ok
}

// Search runs a query over the current collection.
func (c *Controller) Search(query string) []*domain.Session {
	return search.Search(c.store.List(), query)
}

// Wait blocks until background title synthesis has settled. Intended
// for shutdown and tests.
func (c *Controller) Wait() {
	c.titleWG.Wait()
}

// SendMessage runs the full send lifecycle against the active session:
// optimistic user/assistant append, title kick-off on a first message,
// streaming fold, remote persist, refresh. Empty input, the absence of
// an active session and an already in-flight send are silent no-ops.
// Stream and persist failures are recovered into the conversation as a
// visible error marker; nothing propagates to the caller.
func (c *Controller) SendMessage(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	owner := c.ownerID()
	if owner == uuid.Nil {
		return
	}
	active, ok := c.store.Active()
	if !ok {
		return
	}
	// The target is bound now; a mid-stream switch of the active
	// session must not redirect deltas.
	id := active.ID

	c.mu.Lock()
	if _, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[id] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}()

	isFirst := len(active.Messages) == 0

	c.store.AppendMessages(id,
		domain.Message{Role: domain.RoleUser, Text: text},
		domain.Message{Role: domain.RoleAssistant, Text: ""},
	)
	c.refreshSearchText(id)

	if isFirst && active.TitleState == domain.TitlePlaceholder && c.titles != nil {
		// Fire and forget; the send flow never blocks on titling.
		titleCtx := context.WithoutCancel(ctx)
		c.titleWG.Add(1)
		go func() {
			defer c.titleWG.Done()
			c.applyAutoTitle(titleCtx, id, owner, text)
		}()
	}

	history := c.buildHistory(id)

	body, err := c.llm.ChatStream(ctx, history, &c.cfg.Temperature)
	if err != nil {
		c.failSend(id, fmt.Errorf("open stream: %w", err))
		return
	}
	res, streamErr := c.ingestor.Consume(id, body)
	body.Close()
	if streamErr != nil {
		c.failSend(id, streamErr)
		return
	}

	// Finalize: the assistant message must never end up empty.
	final := res.Text
	if final == "" {
		if s, present := c.store.Get(id); present {
			if last := s.LastMessage(); last != nil && last.Role == domain.RoleAssistant {
				final = last.Text
			}
		}
	}
	if final == "" {
		final = " "
	}
	c.store.ReplaceLastMessage(id, domain.Message{Role: domain.RoleAssistant, Text: final})
	if res.Cost.IsPositive() {
		c.store.AddSpend(id, res.Cost)
	}
	c.refreshSearchText(id)

	s, present := c.store.Get(id)
	if !present {
		// Session deleted mid-stream; nothing left to persist.
		return
	}
	if err := c.repo.UpdateMessages(ctx, id, owner, s.Messages, s.Spend); err != nil {
		c.failSend(id, fmt.Errorf("persist messages: %w", err))
		return
	}

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("post-persist refresh failed", "error", err, "session_id", id)
	}
}

// failSend writes the error marker into the trailing assistant message.
// No retry; the session list stays intact.
func (c *Controller) failSend(id uuid.UUID, err error) {
	slog.Error("send failed", "error", err, "session_id", id)
	c.store.ReplaceLastMessage(id, domain.Message{
		Role: domain.RoleAssistant,
		Text: config.AssistantErrorText,
	})
	c.refreshSearchText(id)
}

// buildHistory maps stored messages to the model request shape,
// dropping empty turns and prefixing the system instruction when none
// is present.
func (c *Controller) buildHistory(id uuid.UUID) []service.ChatMessage {
	var history []service.ChatMessage
	if s, ok := c.store.Get(id); ok {
		for _, m := range s.Messages {
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			history = append(history, service.ChatMessage{Role: string(m.Role), Content: m.Text})
		}
	}
	if len(history) == 0 || history[0].Role != string(domain.RoleSystem) {
		history = append([]service.ChatMessage{
			{Role: string(domain.RoleSystem), Content: config.SystemPrompt},
		}, history...)
	}
	return history
}

// applyAutoTitle resolves a synthesized title and applies it under the
// monotonic first-legitimate-write-wins guard: only a session still in
// its placeholder state accepts it, locally and remotely. The remote
// write carries the same condition, so a rename that lands in between
// is never overwritten.
func (c *Controller) applyAutoTitle(ctx context.Context, id, owner uuid.UUID, firstText string) {
	t := c.titles.Synthesize(ctx, firstText)
	if !c.store.SetTitleIfPlaceholder(id, t) {
		return
	}
	c.refreshSearchText(id)
	applied, err := c.repo.UpdateTitleIfPlaceholder(ctx, id, owner, t)
	if err != nil {
		slog.Warn("persist auto title failed", "error", err, "session_id", id)
		return
	}
	if !applied {
		slog.Debug("auto title dropped, session renamed", "session_id", id)
	}
}

// CreateSession inserts a placeholder-titled session remotely and, only
// on success, prepends it locally and makes it active.
func (c *Controller) CreateSession(ctx context.Context) (*domain.Session, error) {
	owner := c.ownerID()
	if owner == uuid.Nil {
		return nil, domain.ErrOwnerRequired
	}

	s, err := c.repo.Insert(ctx, owner, config.PlaceholderTitle, domain.TitlePlaceholder)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.SearchText = search.BuildSearchText(s, config.SearchTail)
	c.store.Upsert(s)
	c.store.SetActive(s.ID)

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("post-create refresh failed", "error", err)
	}
	return s.Clone(), nil
}

// RenameSession sets a user-chosen title. Empty titles are rejected;
// remote write first, local update second.
func (c *Controller) RenameSession(ctx context.Context, id uuid.UUID, newTitle string) error {
	name := strings.TrimSpace(newTitle)
	if name == "" {
		return domain.ErrEmptyTitle
	}
	owner := c.ownerID()
	if owner == uuid.Nil {
		return domain.ErrOwnerRequired
	}

	if err := c.repo.UpdateTitle(ctx, id, owner, name, domain.TitleUserSet); err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	c.store.SetTitle(id, name, domain.TitleUserSet)
	c.refreshSearchText(id)

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("post-rename refresh failed", "error", err)
	}
	return nil
}

// DeleteSession removes a session remotely then locally. If it was
// active, activation falls to the next remaining session.
func (c *Controller) DeleteSession(ctx context.Context, id uuid.UUID) error {
	owner := c.ownerID()
	if owner == uuid.Nil {
		return domain.ErrOwnerRequired
	}

	if err := c.repo.Delete(ctx, id, owner); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	c.store.Remove(id)

	if err := c.Refresh(ctx); err != nil {
		slog.Warn("post-delete refresh failed", "error", err)
	}
	return nil
}

// ToggleShare flips a session's public flag. On a session without
// sharing support it fails with ErrSharingUnavailable instead of
// crashing. When sharing is enabled the public link is returned and
// copied to the clipboard on a best-effort basis.
func (c *Controller) ToggleShare(ctx context.Context, id uuid.UUID) (string, error) {
	owner := c.ownerID()
	if owner == uuid.Nil {
		return "", domain.ErrOwnerRequired
	}
	s, ok := c.store.Get(id)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	if s.Share == nil {
		return "", domain.ErrSharingUnavailable
	}

	next := !s.Share.IsPublic
	if err := c.repo.UpdateShare(ctx, id, owner, next); err != nil {
		return "", fmt.Errorf("toggle share: %w", err)
	}
	c.store.SetShare(id, next)

	if !next {
		return "", nil
	}
	link := share.Link(c.cfg.ShareBaseURL, s.Share.PublicID)
	if c.clip != nil {
		if err := c.clip.Write(link); err != nil {
			slog.Debug("clipboard write failed", "error", err)
		}
	}
	return link, nil
}

// Refresh fetches the owner's sessions from the remote store and
// wholesale-replaces the local collection; remote truth wins over any
// optimistic divergence. Concurrent calls collapse into one fetch.
func (c *Controller) Refresh(ctx context.Context) error {
	owner := c.ownerID()
	if owner == uuid.Nil {
		return domain.ErrOwnerRequired
	}

	_, err, _ := c.refresh.Do("refresh", func() (interface{}, error) {
		sessions, err := c.repo.SelectByOwner(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("refresh sessions: %w", err)
		}
		for _, s := range sessions {
			normalizeRemote(s)
		}
		c.store.ReplaceAll(sessions)
		return nil, nil
	})
	return err
}

func (c *Controller) refreshSearchText(id uuid.UUID) {
	if s, ok := c.store.Get(id); ok {
		c.store.SetSearchText(id, search.BuildSearchText(s, config.SearchTail))
	}
}

func normalizeRemote(s *domain.Session) {
	if s.Messages == nil {
		s.Messages = []domain.Message{}
	}
	if s.Title == "" {
		s.Title = config.PlaceholderTitle
		s.TitleState = domain.TitlePlaceholder
	}
	s.SearchText = search.BuildSearchText(s, config.SearchTail)
}
