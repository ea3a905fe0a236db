package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"askcorpus/internal/chunker"
	"askcorpus/internal/model"
	"askcorpus/internal/parser"
	"askcorpus/internal/vectorindex"
)

const (
	embeddingBatchSize = 10
	maxFailReasonLen   = 250
)

// DocumentParser extracts plain text from an uploaded file.
type DocumentParser interface {
	Parse(raw []byte, contentType string) (string, error)
}

// TextChunker splits extracted text into retrieval units.
type TextChunker interface {
	Chunk(text string, maxTokens, overlapTokens int) []chunker.Piece
}

type IngestConfig struct {
	MaxChunkTokens int
	OverlapTokens  int
	EmbeddingModel string
}

// IngestService runs documents through parse, chunk, embed and index.
// Uploads only record a pending row and enqueue a job; the pipeline runs
// on the queue worker. A document is either fully indexed or failed with
// nothing searchable, never half visible.
type IngestService struct {
	docs     DocumentStore
	chunks   ChunkStore
	parser   DocumentParser
	chunker  TextChunker
	embedder Embedder
	index    *vectorindex.Index
	jobs     JobPublisher
	cfg      IngestConfig
}

func NewIngestService(
	docs DocumentStore,
	chunks ChunkStore,
	docParser DocumentParser,
	textChunker TextChunker,
	embedder Embedder,
	index *vectorindex.Index,
	jobs JobPublisher,
	cfg IngestConfig,
) *IngestService {
	return &IngestService{
		docs:     docs,
		chunks:   chunks,
		parser:   docParser,
		chunker:  textChunker,
		embedder: embedder,
		index:    index,
		jobs:     jobs,
		cfg:      cfg,
	}
}

type SubmitInput struct {
	UserID      uint
	Filename    string
	ContentType string
	Data        []byte
}

// Submit records a pending document and enqueues the pipeline job. The
// returned row carries the pending status callers can poll.
func (s *IngestService) Submit(ctx context.Context, input SubmitInput) (*model.Document, error) {
	if input.UserID == 0 || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}

	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		filename = "untitled"
	}

	doc := &model.Document{
		UserID:      input.UserID,
		Filename:    filename,
		ContentType: input.ContentType,
		Status:      model.DocumentStatusPending,
	}
	if err := s.docs.Create(doc); err != nil {
		return nil, fmt.Errorf("create document failed: %w", err)
	}

	job := model.IngestJob{
		DocumentID:  doc.ID,
		UserID:      input.UserID,
		ContentType: input.ContentType,
		Data:        input.Data,
	}
	if err := s.jobs.Publish(ctx, job); err != nil {
		_ = s.docs.UpdateStatus(doc.ID, model.DocumentStatusFailed, "enqueue ingest job failed")
		return nil, upstream("queue", true, err)
	}
	return doc, nil
}

// Process runs the pipeline for one queued document. Any stage failure
// marks the document failed and removes whatever was already written.
func (s *IngestService) Process(ctx context.Context, job model.IngestJob) error {
	doc, err := s.docs.GetByID(job.DocumentID)
	if err != nil {
		return fmt.Errorf("query document failed: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	text, err := s.parser.Parse(job.Data, job.ContentType)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupportedFormat) || errors.Is(err, parser.ErrCorruptFile) {
			return s.fail(doc.ID, err)
		}
		return s.fail(doc.ID, upstream("parser", false, err))
	}

	pieces := s.chunker.Chunk(text, s.cfg.MaxChunkTokens, s.cfg.OverlapTokens)
	if len(pieces) == 0 {
		return s.fail(doc.ID, errors.New("document has no extractable text"))
	}

	vectors := make([][]float32, 0, len(pieces))
	for start := 0; start < len(pieces); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		texts := make([]string, 0, end-start)
		for _, piece := range pieces[start:end] {
			texts = append(texts, piece.Text)
		}
		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return s.fail(doc.ID, upstream("embedder", true, err))
		}
		vectors = append(vectors, batch...)
	}

	rows := make([]model.Chunk, len(pieces))
	for i, piece := range pieces {
		rows[i] = model.Chunk{
			DocumentID:     doc.ID,
			Ordinal:        piece.Ordinal,
			Content:        piece.Text,
			StartOffset:    piece.StartOffset,
			EndOffset:      piece.EndOffset,
			EmbeddingModel: s.cfg.EmbeddingModel,
		}
		rows[i].SetEmbedding(vectors[i])
	}
	created, err := s.chunks.CreateBatch(rows)
	if err != nil {
		return s.fail(doc.ID, fmt.Errorf("store chunks failed: %w", err))
	}

	for i, row := range created {
		meta := vectorindex.Metadata{
			OwnerID:    doc.UserID,
			DocumentID: doc.ID,
			Ordinal:    row.Ordinal,
		}
		if err := s.index.Insert(row.ID, vectors[i], meta); err != nil {
			return s.fail(doc.ID, fmt.Errorf("index chunk failed: %w", err))
		}
	}

	if err := s.docs.UpdateStatus(doc.ID, model.DocumentStatusIndexed, ""); err != nil {
		return s.fail(doc.ID, fmt.Errorf("mark document indexed failed: %w", err))
	}
	return nil
}

// Delete removes the document, its chunk rows and its index entries.
func (s *IngestService) Delete(userID, documentID uint) error {
	doc, err := s.docs.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return fmt.Errorf("query document failed: %w", err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	s.index.DeleteByDocument(documentID)
	if err := s.chunks.DeleteByDocumentID(documentID); err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	if err := s.docs.DeleteByIDAndUserID(documentID, userID); err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}

func (s *IngestService) List(userID uint) ([]model.Document, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByUserID(userID)
}

func (s *IngestService) Get(userID, documentID uint) (*model.Document, error) {
	doc, err := s.docs.GetByIDAndUserID(documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("query document failed: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// WarmLoad replays the stored embeddings of indexed documents into the
// vector index after a restart.
func (s *IngestService) WarmLoad() (int, error) {
	docs, err := s.docs.ListByStatus(model.DocumentStatusIndexed)
	if err != nil {
		return 0, fmt.Errorf("list indexed documents failed: %w", err)
	}

	loaded := 0
	for _, doc := range docs {
		rows, err := s.chunks.ListByDocumentID(doc.ID)
		if err != nil {
			return loaded, fmt.Errorf("list chunks for document %d failed: %w", doc.ID, err)
		}
		for _, row := range rows {
			vector := row.EmbeddingVector()
			if len(vector) == 0 {
				return loaded, fmt.Errorf("chunk %d has no stored embedding", row.ID)
			}
			meta := vectorindex.Metadata{
				OwnerID:    doc.UserID,
				DocumentID: doc.ID,
				Ordinal:    row.Ordinal,
			}
			if err := s.index.Insert(row.ID, vector, meta); err != nil {
				return loaded, fmt.Errorf("reload chunk %d failed: %w", row.ID, err)
			}
			loaded++
		}
	}
	return loaded, nil
}

func (s *IngestService) fail(documentID uint, cause error) error {
	s.index.DeleteByDocument(documentID)
	_ = s.chunks.DeleteByDocumentID(documentID)

	reason := cause.Error()
	if len(reason) > maxFailReasonLen {
		reason = reason[:maxFailReasonLen]
	}
	_ = s.docs.UpdateStatus(documentID, model.DocumentStatusFailed, reason)
	return cause
}
