package app

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"askcorpus/internal/model"
)

const sessionLockStripes = 64

// ConversationService owns sessions and their append-only turn logs.
// Appends to the same session are serialized through a striped lock so
// ordinals stay dense and monotonic under concurrent writers.
type ConversationService struct {
	sessions SessionStore
	turns    TurnStore
	cache    HistoryCache
	locks    [sessionLockStripes]sync.Mutex
}

func NewConversationService(sessions SessionStore, turns TurnStore, cache HistoryCache) *ConversationService {
	return &ConversationService{
		sessions: sessions,
		turns:    turns,
		cache:    cache,
	}
}

type CreateSessionInput struct {
	UserID uint
	Title  string
}

func (s *ConversationService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New conversation"
	}

	session := &model.Session{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("create session failed: %w", err)
	}
	return session, nil
}

func (s *ConversationService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessions.ListByUserID(userID)
}

// GetSessionForUser resolves a session and enforces ownership. A session
// belonging to someone else is indistinguishable from a missing one.
func (s *ConversationService) GetSessionForUser(sessionID, userID uint) (*model.Session, error) {
	if sessionID == 0 || userID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("query session failed: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// DeleteSession removes the session, its turns and the cached history.
func (s *ConversationService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if _, err := s.GetSessionForUser(sessionID, userID); err != nil {
		return err
	}

	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.turns.DeleteBySessionID(sessionID); err != nil {
		return fmt.Errorf("delete session turns failed: %w", err)
	}
	if err := s.sessions.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.DeleteHistory(ctx, sessionID)
	}
	return nil
}

// Append persists one turn at the next free ordinal.
func (s *ConversationService) Append(ctx context.Context, turn *model.Turn) error {
	if err := validateTurn(turn); err != nil {
		return err
	}

	mu := s.lockFor(turn.SessionID)
	mu.Lock()
	defer mu.Unlock()

	return s.appendLocked(ctx, turn)
}

// AppendExchange persists a question/answer pair under one lock, so no
// other turn can land between them. Either both turns are stored or, on
// the first failure, the caller gets an error with the session log left
// as it was before the user turn (a torn pair can only happen if the
// second insert itself fails, which the error reports).
func (s *ConversationService) AppendExchange(ctx context.Context, userTurn, assistantTurn *model.Turn) error {
	if err := validateTurn(userTurn); err != nil {
		return err
	}
	if err := validateTurn(assistantTurn); err != nil {
		return err
	}
	if userTurn.SessionID != assistantTurn.SessionID {
		return ErrInvalidInput
	}

	mu := s.lockFor(userTurn.SessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.appendLocked(ctx, userTurn); err != nil {
		return err
	}
	return s.appendLocked(ctx, assistantTurn)
}

func (s *ConversationService) appendLocked(ctx context.Context, turn *model.Turn) error {
	session, err := s.sessions.GetByID(turn.SessionID)
	if err != nil {
		return fmt.Errorf("query session failed: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	count, err := s.turns.CountBySessionID(turn.SessionID)
	if err != nil {
		return fmt.Errorf("count session turns failed: %w", err)
	}
	turn.Ordinal = int(count)

	if err := s.turns.Create(turn); err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.MarkDirty(ctx, turn.SessionID)
		_ = s.cache.DeleteHistory(ctx, turn.SessionID)
	}
	return nil
}

// History returns the session's turns in chronological order, trimmed to
// the most recent maxTurns when maxTurns is positive. The full log is
// cached; cache failures fall through to the database.
func (s *ConversationService) History(ctx context.Context, sessionID uint, maxTurns int) ([]model.Turn, error) {
	if sessionID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session failed: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if turns, ok, err := s.cache.GetHistory(ctx, sessionID); err == nil && ok {
				return trimHistory(turns, maxTurns), nil
			}
		}
	}

	turns, err := s.turns.ListRecentBySessionID(sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("query session turns failed: %w", err)
	}

	if s.cache != nil {
		if dirty, err := s.cache.IsDirty(ctx, sessionID); err == nil && !dirty {
			_ = s.cache.SetHistory(ctx, sessionID, turns)
		}
	}
	return trimHistory(turns, maxTurns), nil
}

func (s *ConversationService) lockFor(sessionID uint) *sync.Mutex {
	return &s.locks[sessionID%sessionLockStripes]
}

func validateTurn(turn *model.Turn) error {
	if turn == nil || turn.SessionID == 0 || strings.TrimSpace(turn.Content) == "" {
		return ErrInvalidInput
	}
	if turn.Role != model.TurnRoleUser && turn.Role != model.TurnRoleAssistant {
		return ErrInvalidInput
	}
	return nil
}

func trimHistory(turns []model.Turn, maxTurns int) []model.Turn {
	if maxTurns > 0 && len(turns) > maxTurns {
		return turns[len(turns)-maxTurns:]
	}
	return turns
}
