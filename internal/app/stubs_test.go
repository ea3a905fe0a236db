package app

import (
	"context"
	"sort"
	"sync"

	"askcorpus/internal/ai"
	"askcorpus/internal/model"
)

// In-memory stand-ins for the gorm repositories, the redis cache and the
// LLM endpoints. They mirror the store semantics the services rely on:
// not-found reads return (nil, nil) and list reads return copies.

type memUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uint]model.User)}
}

func (s *memUserStore) Create(user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user.ID = s.nextID
	s.users[user.ID] = *user
	return nil
}

func (s *memUserStore) GetByUsername(username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username {
			out := user
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) GetByEmail(email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			out := user
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) GetByID(id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		out := user
		return &out, nil
	}
	return nil, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	nextID   uint
	sessions map[uint]model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[uint]model.Session)}
}

func (s *memSessionStore) Create(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	session.ID = s.nextID
	s.sessions[session.ID] = *session
	return nil
}

func (s *memSessionStore) GetByID(sessionID uint) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		out := session
		return &out, nil
	}
	return nil, nil
}

func (s *memSessionStore) GetByIDAndUserID(sessionID, userID uint) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok && session.UserID == userID {
		out := session
		return &out, nil
	}
	return nil, nil
}

func (s *memSessionStore) ListByUserID(userID uint) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memSessionStore) DeleteByIDAndUserID(sessionID, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok && session.UserID == userID {
		delete(s.sessions, sessionID)
	}
	return nil
}

type memTurnStore struct {
	mu        sync.Mutex
	nextID    uint
	turns     []model.Turn
	createErr error
}

func newMemTurnStore() *memTurnStore {
	return &memTurnStore{}
}

func (s *memTurnStore) Create(turn *model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	turn.ID = s.nextID
	s.turns = append(s.turns, *turn)
	return nil
}

func (s *memTurnStore) CountBySessionID(sessionID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, turn := range s.turns {
		if turn.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (s *memTurnStore) ListRecentBySessionID(sessionID uint, limit int) ([]model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Turn
	for _, turn := range s.turns {
		if turn.SessionID == sessionID {
			out = append(out, turn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memTurnStore) DeleteBySessionID(sessionID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.turns[:0]
	for _, turn := range s.turns {
		if turn.SessionID != sessionID {
			kept = append(kept, turn)
		}
	}
	s.turns = kept
	return nil
}

type memDocumentStore struct {
	mu     sync.Mutex
	nextID uint
	docs   map[uint]model.Document
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{docs: make(map[uint]model.Document)}
}

func (s *memDocumentStore) Create(doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	doc.ID = s.nextID
	s.docs[doc.ID] = *doc
	return nil
}

func (s *memDocumentStore) GetByID(id uint) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		out := doc
		return &out, nil
	}
	return nil, nil
}

func (s *memDocumentStore) GetByIDAndUserID(id, userID uint) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok && doc.UserID == userID {
		out := doc
		return &out, nil
	}
	return nil, nil
}

func (s *memDocumentStore) ListByUserID(userID uint) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, doc := range s.docs {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memDocumentStore) ListByStatus(status string) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, doc := range s.docs {
		if doc.Status == status {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memDocumentStore) UpdateStatus(id uint, status, failReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Status = status
		doc.FailReason = failReason
		s.docs[id] = doc
	}
	return nil
}

func (s *memDocumentStore) DeleteByIDAndUserID(id, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok && doc.UserID == userID {
		delete(s.docs, id)
	}
	return nil
}

type memChunkStore struct {
	mu        sync.Mutex
	nextID    uint
	chunks    []model.Chunk
	createErr error
}

func newMemChunkStore() *memChunkStore {
	return &memChunkStore{}
}

func (s *memChunkStore) CreateBatch(chunks []model.Chunk) ([]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	out := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		s.nextID++
		c.ID = s.nextID
		s.chunks = append(s.chunks, c)
		out[i] = c
	}
	return out, nil
}

func (s *memChunkStore) GetByIDs(ids []uint) ([]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Chunk
	for _, c := range s.chunks {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memChunkStore) ListByDocumentID(documentID uint) ([]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chunk
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *memChunkStore) DeleteByDocumentID(documentID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

type memHistoryCache struct {
	mu        sync.Mutex
	histories map[uint][]model.Turn
	dirty     map[uint]bool
	sets      int
	hits      int
}

func newMemHistoryCache() *memHistoryCache {
	return &memHistoryCache{
		histories: make(map[uint][]model.Turn),
		dirty:     make(map[uint]bool),
	}
}

func (c *memHistoryCache) GetHistory(_ context.Context, sessionID uint) ([]model.Turn, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns, ok := c.histories[sessionID]
	if ok {
		c.hits++
	}
	return append([]model.Turn(nil), turns...), ok, nil
}

func (c *memHistoryCache) SetHistory(_ context.Context, sessionID uint, turns []model.Turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histories[sessionID] = append([]model.Turn(nil), turns...)
	c.sets++
	return nil
}

func (c *memHistoryCache) DeleteHistory(_ context.Context, sessionID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.histories, sessionID)
	return nil
}

func (c *memHistoryCache) MarkDirty(_ context.Context, sessionID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[sessionID] = true
	return nil
}

func (c *memHistoryCache) IsDirty(_ context.Context, sessionID uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[sessionID], nil
}

// stubEmbedder returns canned vectors by exact input text, falling back
// to defaultVec for anything unmapped.
type stubEmbedder struct {
	vectors    map[string][]float32
	defaultVec []float32
	err        error
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if vec, ok := e.vectors[text]; ok {
		return append([]float32(nil), vec...), nil
	}
	return append([]float32(nil), e.defaultVec...), nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(context.Background(), text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// stubGenerator replays fixed deltas. A non-nil err is returned after
// the deltas, mimicking a stream that breaks mid-flight.
type stubGenerator struct {
	deltas []string
	err    error
}

func (g *stubGenerator) Stream(ctx context.Context, _ []ai.ChatMessage, onDelta func(delta string) error) (string, error) {
	var full string
	for _, delta := range g.deltas {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onDelta(delta); err != nil {
			return "", err
		}
		full += delta
	}
	if g.err != nil {
		return "", g.err
	}
	return full, nil
}

type stubPublisher struct {
	mu   sync.Mutex
	jobs []model.IngestJob
	err  error
}

func (p *stubPublisher) Publish(_ context.Context, job model.IngestJob) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

// runeCounter treats every rune as one token; runeSplitter adds the
// window split used by the chunker.
type runeCounter struct{}

func (runeCounter) Count(text string) int {
	return len([]rune(text))
}

type runeSplitter struct {
	runeCounter
}

func (runeSplitter) Split(text string, maxTokens int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > 0 {
		n := maxTokens
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, string(runes[:n]))
		runes = runes[n:]
	}
	return parts
}
