package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askcorpus/internal/model"
	"askcorpus/internal/vectorindex"
)

type queryFixture struct {
	svc       *QueryService
	conv      *ConversationService
	turns     *memTurnStore
	index     *vectorindex.Index
	chunks    *memChunkStore
	embedder  *stubEmbedder
	generator *stubGenerator
	tasks     *TaskRegistry
	session   *model.Session
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()

	sessions := newMemSessionStore()
	turns := newMemTurnStore()
	conv := NewConversationService(sessions, turns, newMemHistoryCache())
	session, err := conv.CreateSession(CreateSessionInput{UserID: 1, Title: "questions"})
	require.NoError(t, err)

	index, idxErr := vectorindex.New(3)
	require.NoError(t, idxErr)
	chunks := newMemChunkStore()
	embedder := &stubEmbedder{defaultVec: []float32{1, 0, 0}}
	generator := &stubGenerator{deltas: []string{"The ", "answer ", "is 42."}}
	tasks := NewTaskRegistry()

	f := &queryFixture{
		conv:      conv,
		turns:     turns,
		index:     index,
		chunks:    chunks,
		embedder:  embedder,
		generator: generator,
		tasks:     tasks,
		session:   session,
	}
	f.svc = NewQueryService(
		conv,
		NewRetriever(embedder, index, chunks, 5),
		NewContextAssembler(runeCounter{}),
		generator,
		tasks,
		time.Minute,
		20,
		4096,
	)
	return f
}

func (f *queryFixture) seedChunk(t *testing.T, content string, vec []float32) uint {
	t.Helper()
	created, err := f.chunks.CreateBatch([]model.Chunk{{DocumentID: 10, Ordinal: 0, Content: content}})
	require.NoError(t, err)
	require.NoError(t, f.index.Insert(created[0].ID, vec, vectorindex.Metadata{
		OwnerID:    1,
		DocumentID: 10,
		Ordinal:    0,
	}))
	return created[0].ID
}

func TestStreamAnswerValidation(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	_, err := f.svc.StreamAnswer(ctx, QueryInput{UserID: 1, SessionID: f.session.ID, Question: "  "}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.StreamAnswer(ctx, QueryInput{UserID: 1, SessionID: 0, Question: "q"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStreamAnswerUnknownSession(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID: 1, SessionID: 99, Question: "q",
	}, nil, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStreamAnswerSuccessPersistsExchange(t *testing.T) {
	f := newQueryFixture(t)
	chunkID := f.seedChunk(t, "relevant context", []float32{1, 0, 0})

	var taskID string
	var streamed string
	result, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "what is the answer?",
	}, func(id string) error {
		taskID = id
		return nil
	}, func(delta string) error {
		streamed += delta
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", result.Answer)
	assert.Equal(t, streamed, result.Answer)
	assert.Equal(t, taskID, result.TaskID)
	assert.Equal(t, []uint{chunkID}, result.Citations)

	stored, listErr := f.turns.ListRecentBySessionID(f.session.ID, 0)
	require.NoError(t, listErr)
	require.Len(t, stored, 2)
	assert.Equal(t, model.TurnRoleUser, stored[0].Role)
	assert.Equal(t, "what is the answer?", stored[0].Content)
	assert.Equal(t, model.TurnRoleAssistant, stored[1].Role)
	assert.Equal(t, "The answer is 42.", stored[1].Content)
	assert.Equal(t, []uint{chunkID}, stored[1].CitationIDs())

	// Finished tasks leave the registry.
	assert.ErrorIs(t, f.tasks.Cancel(taskID, 1), ErrTaskNotFound)
}

func TestStreamAnswerWorksWithEmptyCorpus(t *testing.T) {
	f := newQueryFixture(t)

	result, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "anything indexed?",
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", result.Answer)
	assert.Empty(t, result.Citations)
}

func TestStreamAnswerCancelDiscardsEverything(t *testing.T) {
	f := newQueryFixture(t)
	f.generator.deltas = []string{"partial ", "output ", "never finishes"}

	var taskID string
	deltas := 0
	_, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "will be cancelled",
	}, func(id string) error {
		taskID = id
		return nil
	}, func(delta string) error {
		deltas++
		if deltas == 1 {
			require.NoError(t, f.svc.Cancel(taskID, 1))
		}
		return nil
	})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.LessOrEqual(t, deltas, 2)

	stored, listErr := f.turns.ListRecentBySessionID(f.session.ID, 0)
	require.NoError(t, listErr)
	assert.Empty(t, stored, "a cancelled cycle must not touch the session log")
}

func TestStreamAnswerCancelAfterLastDeltaDiscardsExchange(t *testing.T) {
	f := newQueryFixture(t)
	f.generator.deltas = []string{"complete ", "answer"}

	// Cancel lands after the final delta has been forwarded, so the
	// stream finishes with a full answer but the task loses the race to
	// complete. The exchange must be discarded, not persisted.
	var taskID string
	deltas := 0
	_, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "cancelled at the wire",
	}, func(id string) error {
		taskID = id
		return nil
	}, func(delta string) error {
		deltas++
		if deltas == len(f.generator.deltas) {
			require.NoError(t, f.svc.Cancel(taskID, 1))
		}
		return nil
	})

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, len(f.generator.deltas), deltas)

	stored, listErr := f.turns.ListRecentBySessionID(f.session.ID, 0)
	require.NoError(t, listErr)
	assert.Empty(t, stored, "a cancelled cycle must not touch the session log")
}

func TestStreamAnswerGeneratorFailurePersistsNothing(t *testing.T) {
	f := newQueryFixture(t)
	f.generator.deltas = []string{"some "}
	f.generator.err = errors.New("stream broke")

	_, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "q",
	}, nil, nil)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "generator", upErr.Op)

	stored, listErr := f.turns.ListRecentBySessionID(f.session.ID, 0)
	require.NoError(t, listErr)
	assert.Empty(t, stored)
}

func TestStreamAnswerEmptyOutputFails(t *testing.T) {
	f := newQueryFixture(t)
	f.generator.deltas = nil

	_, err := f.svc.StreamAnswer(context.Background(), QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "q",
	}, nil, nil)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.False(t, upErr.Retryable)

	stored, listErr := f.turns.ListRecentBySessionID(f.session.ID, 0)
	require.NoError(t, listErr)
	assert.Empty(t, stored)
}

func TestStreamAnswerClientDisconnect(t *testing.T) {
	f := newQueryFixture(t)
	f.generator.deltas = []string{"a", "b", "c"}

	ctx, cancel := context.WithCancel(context.Background())
	deltas := 0
	_, err := f.svc.StreamAnswer(ctx, QueryInput{
		UserID:    1,
		SessionID: f.session.ID,
		Question:  "q",
	}, nil, func(delta string) error {
		deltas++
		if deltas == 1 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, ErrCancelled)
	stored, listErr := f.turns.ListRecentBySessionID(f.session.ID, 0)
	require.NoError(t, listErr)
	assert.Empty(t, stored)
}

func TestCancelUnknownTask(t *testing.T) {
	f := newQueryFixture(t)

	assert.ErrorIs(t, f.svc.Cancel("no-such-task", 1), ErrTaskNotFound)
}

func TestCancelOtherUsersTask(t *testing.T) {
	registry := NewTaskRegistry()
	task := registry.start(1, 5, func() {})

	assert.ErrorIs(t, registry.Cancel(task.ID, 2), ErrTaskNotFound)
	assert.Equal(t, TaskRunning, task.State())

	require.NoError(t, registry.Cancel(task.ID, 1))
	assert.Equal(t, TaskCancelled, task.State())
}

func TestTaskTerminalStatesAreSticky(t *testing.T) {
	registry := NewTaskRegistry()
	task := registry.start(1, 5, func() {})

	require.True(t, task.finish(TaskCompleted))
	assert.False(t, task.Cancel())
	assert.Equal(t, TaskCompleted, task.State())

	other := registry.start(1, 5, func() {})
	require.True(t, other.Cancel())
	assert.False(t, other.finish(TaskCompleted))
	assert.Equal(t, TaskCancelled, other.State())
}
