// Package store holds the canonical in-memory session collection. It is
// the single owner of visible chat state between remote syncs; the
// remote store wins on any conflict at refresh time.
package store

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jmwagner/plausch/internal/config"
	"github.com/jmwagner/plausch/internal/domain"
)

// Store is a mutex-guarded ordered collection of sessions plus the
// active session id. Order is recency, most recent first. All mutations
// are synchronous and total: messages never stay nil and titles never
// stay empty. The store holds no derived-data policy — search text is
// computed by callers and only stored here.
type Store struct {
	mu       sync.RWMutex
	order    []uuid.UUID
	byID     map[uuid.UUID]*domain.Session
	activeID uuid.UUID

	onChange func()
}

func New() *Store {
	return &Store{byID: make(map[uuid.UUID]*domain.Session)}
}

// OnChange registers a callback invoked after every mutation, outside
// the store lock. Used by the UI layer to re-render on each fold.
func (st *Store) OnChange(fn func()) {
	st.mu.Lock()
	st.onChange = fn
	st.mu.Unlock()
}

func (st *Store) notify() {
	st.mu.RLock()
	fn := st.onChange
	st.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Get returns a deep copy of the session, or false if absent.
func (st *Store) Get(id uuid.UUID) (*domain.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.byID[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// List returns deep copies of all sessions in recency order.
func (st *Store) List() []*domain.Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*domain.Session, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.byID[id].Clone())
	}
	return out
}

// Len returns the number of sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.order)
}

// ActiveID returns the active session id, or false if none is active.
func (st *Store) ActiveID() (uuid.UUID, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.activeID == uuid.Nil {
		return uuid.Nil, false
	}
	return st.activeID, true
}

// Active returns a deep copy of the active session, or false.
func (st *Store) Active() (*domain.Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.activeID == uuid.Nil {
		return nil, false
	}
	s, ok := st.byID[st.activeID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// SetActive makes id the active session. Ignored if id is not present,
// so the active id always references an existing entry.
func (st *Store) SetActive(id uuid.UUID) bool {
	st.mu.Lock()
	_, ok := st.byID[id]
	if ok {
		st.activeID = id
	}
	st.mu.Unlock()
	if ok {
		st.notify()
	}
	return ok
}

// Upsert inserts or replaces a session. New sessions are prepended
// (most recent first); existing ones keep their position.
func (st *Store) Upsert(s *domain.Session) {
	c := normalize(s.Clone())
	st.mu.Lock()
	if _, ok := st.byID[c.ID]; !ok {
		st.order = append([]uuid.UUID{c.ID}, st.order...)
	}
	st.byID[c.ID] = c
	st.mu.Unlock()
	st.notify()
}

// Remove deletes a session. If it was active, activation falls to the
// next most-recent remaining session, or to none.
func (st *Store) Remove(id uuid.UUID) bool {
	st.mu.Lock()
	_, ok := st.byID[id]
	if !ok {
		st.mu.Unlock()
		return false
	}
	delete(st.byID, id)
	for i, oid := range st.order {
		if oid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	if st.activeID == id {
		if len(st.order) > 0 {
			st.activeID = st.order[0]
		} else {
			st.activeID = uuid.Nil
		}
	}
	st.mu.Unlock()
	st.notify()
	return true
}

// ReplaceAll swaps the whole collection for the given sessions, already
// in recency order. Used after a remote refresh: wholesale replacement,
// never a merge. The active id survives only if still present,
// otherwise it falls to the most recent session or to none.
func (st *Store) ReplaceAll(sessions []*domain.Session) {
	st.mu.Lock()
	st.order = st.order[:0]
	st.byID = make(map[uuid.UUID]*domain.Session, len(sessions))
	for _, s := range sessions {
		c := normalize(s.Clone())
		if _, dup := st.byID[c.ID]; dup {
			continue
		}
		st.order = append(st.order, c.ID)
		st.byID[c.ID] = c
	}
	if _, ok := st.byID[st.activeID]; !ok {
		if len(st.order) > 0 {
			st.activeID = st.order[0]
		} else {
			st.activeID = uuid.Nil
		}
	}
	st.mu.Unlock()
	st.notify()
}

// AppendMessages appends messages to a session. Returns false if the
// session is absent; absent-session updates are silently dropped.
func (st *Store) AppendMessages(id uuid.UUID, msgs ...domain.Message) bool {
	return st.mutate(id, func(s *domain.Session) {
		s.Messages = append(s.Messages, msgs...)
	})
}

// ReplaceLastMessage overwrites the last message of a session. No-op on
// an empty message sequence.
func (st *Store) ReplaceLastMessage(id uuid.UUID, m domain.Message) bool {
	return st.mutate(id, func(s *domain.Session) {
		if len(s.Messages) > 0 {
			s.Messages[len(s.Messages)-1] = m
		}
	})
}

// SetSearchText stores a derived search text computed by the caller.
func (st *Store) SetSearchText(id uuid.UUID, text string) bool {
	return st.mutate(id, func(s *domain.Session) {
		s.SearchText = text
	})
}

// SetTitle sets the title and its provenance tag. Empty titles fall
// back to the placeholder.
func (st *Store) SetTitle(id uuid.UUID, title string, state domain.TitleState) bool {
	return st.mutate(id, func(s *domain.Session) {
		if title == "" {
			title = config.PlaceholderTitle
			state = domain.TitlePlaceholder
		}
		s.Title = title
		s.TitleState = state
	})
}

// SetTitleIfPlaceholder applies a synthesized title only while the
// session is still placeholder-titled. The check and the write happen
// under one lock, so a user rename that lands first always wins.
func (st *Store) SetTitleIfPlaceholder(id uuid.UUID, title string) bool {
	if title == "" {
		return false
	}
	applied := false
	st.mutate(id, func(s *domain.Session) {
		if s.TitleState == domain.TitlePlaceholder {
			s.Title = title
			s.TitleState = domain.TitleAutoSet
			applied = true
		}
	})
	return applied
}

// SetShare updates the sharing state of a shareable session.
func (st *Store) SetShare(id uuid.UUID, isPublic bool) bool {
	return st.mutate(id, func(s *domain.Session) {
		if s.Share != nil {
			s.Share.IsPublic = isPublic
		}
	})
}

// AddSpend accumulates model cost onto a session.
func (st *Store) AddSpend(id uuid.UUID, amount decimal.Decimal) bool {
	return st.mutate(id, func(s *domain.Session) {
		s.Spend = s.Spend.Add(amount)
	})
}

func (st *Store) mutate(id uuid.UUID, fn func(*domain.Session)) bool {
	st.mu.Lock()
	s, ok := st.byID[id]
	if ok {
		fn(s)
	}
	st.mu.Unlock()
	if ok {
		st.notify()
	}
	return ok
}

func normalize(s *domain.Session) *domain.Session {
	if s.Messages == nil {
		s.Messages = []domain.Message{}
	}
	if s.Title == "" {
		s.Title = config.PlaceholderTitle
		s.TitleState = domain.TitlePlaceholder
	}
	if s.TitleState == "" {
		s.TitleState = domain.TitlePlaceholder
	}
	return s
}
