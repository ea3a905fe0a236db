package app

import (
	"context"

	"askcorpus/internal/model"
)

// Store contracts implemented by the gorm repositories. Services depend
// on these narrow interfaces so tests can run against in-memory stubs.

type UserStore interface {
	Create(user *model.User) error
	GetByUsername(username string) (*model.User, error)
	GetByEmail(email string) (*model.User, error)
	GetByID(id uint) (*model.User, error)
}

type SessionStore interface {
	Create(session *model.Session) error
	GetByID(sessionID uint) (*model.Session, error)
	GetByIDAndUserID(sessionID, userID uint) (*model.Session, error)
	ListByUserID(userID uint) ([]model.Session, error)
	DeleteByIDAndUserID(sessionID, userID uint) error
}

type TurnStore interface {
	Create(turn *model.Turn) error
	CountBySessionID(sessionID uint) (int64, error)
	ListRecentBySessionID(sessionID uint, limit int) ([]model.Turn, error)
	DeleteBySessionID(sessionID uint) error
}

type DocumentStore interface {
	Create(doc *model.Document) error
	GetByID(id uint) (*model.Document, error)
	GetByIDAndUserID(id, userID uint) (*model.Document, error)
	ListByUserID(userID uint) ([]model.Document, error)
	ListByStatus(status string) ([]model.Document, error)
	UpdateStatus(id uint, status, failReason string) error
	DeleteByIDAndUserID(id, userID uint) error
}

type ChunkStore interface {
	CreateBatch(chunks []model.Chunk) ([]model.Chunk, error)
	GetByIDs(ids []uint) ([]model.Chunk, error)
	ListByDocumentID(documentID uint) ([]model.Chunk, error)
	DeleteByDocumentID(documentID uint) error
}

// HistoryCache keeps session histories warm between reads; all methods
// are best effort and never block correctness.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Turn, bool, error)
	SetHistory(ctx context.Context, sessionID uint, turns []model.Turn) error
	DeleteHistory(ctx context.Context, sessionID uint) error
	MarkDirty(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

// JobPublisher enqueues ingestion work for the queue worker.
type JobPublisher interface {
	Publish(ctx context.Context, job model.IngestJob) error
}
