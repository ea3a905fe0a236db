package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"askcorpus/internal/model"
)

// QueryService orchestrates one answer cycle: retrieve, assemble the
// prompt, stream the completion, then persist the exchange. The user
// question and the assistant answer are written together only after the
// stream finishes; a cancelled or failed cycle leaves the session log
// untouched.
type QueryService struct {
	conversations *ConversationService
	retriever     *Retriever
	assembler     *ContextAssembler
	generator     Generator
	tasks         *TaskRegistry

	timeout          time.Duration
	maxHistoryTurns  int
	maxContextTokens int
}

func NewQueryService(
	conversations *ConversationService,
	retriever *Retriever,
	assembler *ContextAssembler,
	generator Generator,
	tasks *TaskRegistry,
	timeout time.Duration,
	maxHistoryTurns int,
	maxContextTokens int,
) *QueryService {
	return &QueryService{
		conversations:    conversations,
		retriever:        retriever,
		assembler:        assembler,
		generator:        generator,
		tasks:            tasks,
		timeout:          timeout,
		maxHistoryTurns:  maxHistoryTurns,
		maxContextTokens: maxContextTokens,
	}
}

type QueryInput struct {
	UserID    uint
	SessionID uint
	Question  string
	TopK      int
}

type QueryResult struct {
	TaskID    string
	Answer    string
	Citations []uint
	Passages  []RetrievedPassage
}

// Cancel stops the caller's running generation task.
func (s *QueryService) Cancel(taskID string, userID uint) error {
	return s.tasks.Cancel(taskID, userID)
}

// StreamAnswer runs one answer cycle. onStart receives the task id
// before the first delta so the client can cancel mid-stream; onDelta
// receives each output increment. Cancellation is checked before every
// delta is forwarded.
func (s *QueryService) StreamAnswer(ctx context.Context, input QueryInput, onStart func(taskID string) error, onDelta func(delta string) error) (*QueryResult, error) {
	question := strings.TrimSpace(input.Question)
	if input.UserID == 0 || input.SessionID == 0 || question == "" {
		return nil, ErrInvalidInput
	}

	if _, err := s.conversations.GetSessionForUser(input.SessionID, input.UserID); err != nil {
		return nil, err
	}

	passages, err := s.retriever.Retrieve(ctx, input.UserID, question, input.TopK)
	if err != nil {
		return nil, err
	}

	history, err := s.conversations.History(ctx, input.SessionID, s.maxHistoryTurns)
	if err != nil {
		return nil, err
	}

	messages := s.assembler.Assemble(passages, history, question, s.maxContextTokens)

	var genCtx context.Context
	var cancel context.CancelFunc
	if s.timeout > 0 {
		genCtx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		genCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	task := s.tasks.start(input.UserID, input.SessionID, cancel)
	defer s.tasks.remove(task.ID)

	if onStart != nil {
		if err := onStart(task.ID); err != nil {
			task.finish(TaskFailed)
			return nil, err
		}
	}

	answer, genErr := s.generator.Stream(genCtx, messages, func(delta string) error {
		if task.State() == TaskCancelled {
			return ErrCancelled
		}
		if onDelta != nil {
			return onDelta(delta)
		}
		return nil
	})
	if genErr != nil {
		if errors.Is(genErr, ErrCancelled) || task.State() == TaskCancelled {
			return nil, ErrCancelled
		}
		if errors.Is(genCtx.Err(), context.Canceled) {
			// client went away mid-stream
			task.Cancel()
			return nil, ErrCancelled
		}
		task.finish(TaskFailed)
		return nil, upstream("generator", true, genErr)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		if !task.finish(TaskFailed) {
			return nil, ErrCancelled
		}
		return nil, upstream("generator", false, errors.New("model produced no output"))
	}

	citations := make([]uint, len(passages))
	for i, p := range passages {
		citations[i] = p.ChunkID
	}

	userTurn := &model.Turn{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      model.TurnRoleUser,
		Content:   question,
	}
	assistantTurn := &model.Turn{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      model.TurnRoleAssistant,
		Content:   answer,
	}
	assistantTurn.SetCitationIDs(citations)

	// Claim completion before persisting: a cancel racing the end of the
	// stream must either win here (exchange discarded) or lose and see a
	// completed task, never observe the exchange written after a cancel.
	if !task.finish(TaskCompleted) {
		return nil, ErrCancelled
	}

	if err := s.conversations.AppendExchange(ctx, userTurn, assistantTurn); err != nil {
		return nil, err
	}

	return &QueryResult{
		TaskID:    task.ID,
		Answer:    answer,
		Citations: citations,
		Passages:  passages,
	}, nil
}
