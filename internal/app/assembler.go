package app

import (
	"fmt"
	"strings"

	"askcorpus/internal/ai"
	"askcorpus/internal/model"
)

// TokenCounter measures prompt text against the context budget.
type TokenCounter interface {
	Count(text string) int
}

const answerInstructions = "You are a question answering assistant. Answer using only the " +
	"numbered context passages below. Cite the passages you used with their bracketed " +
	"numbers, like [1]. If the passages do not contain the answer, say you do not know."

const noContextInstructions = "You are a question answering assistant. No relevant context " +
	"was found for this question. Say so if you cannot answer from general knowledge."

// ContextAssembler builds the bounded prompt for one answer cycle:
// instructions plus retrieved passages, prior turns oldest first, then
// the question. When the budget is tight history goes first, oldest
// turns dropped before newer ones; passages are only shed, lowest rank
// first, when they alone exceed the budget.
type ContextAssembler struct {
	counter TokenCounter
}

func NewContextAssembler(counter TokenCounter) *ContextAssembler {
	return &ContextAssembler{counter: counter}
}

func (a *ContextAssembler) Assemble(passages []RetrievedPassage, history []model.Turn, question string, maxContextTokens int) []ai.ChatMessage {
	questionTokens := a.counter.Count(question)

	kept := passages
	systemText := a.renderSystem(kept)
	if maxContextTokens > 0 {
		for len(kept) > 0 && a.counter.Count(systemText)+questionTokens > maxContextTokens {
			kept = kept[:len(kept)-1]
			systemText = a.renderSystem(kept)
		}
	}

	messages := []ai.ChatMessage{{Role: "system", Content: systemText}}

	remaining := 0
	if maxContextTokens > 0 {
		remaining = maxContextTokens - a.counter.Count(systemText) - questionTokens
	}

	// walk history newest to oldest, keep what fits, restore order
	var retained []model.Turn
	for i := len(history) - 1; i >= 0; i-- {
		cost := a.counter.Count(history[i].Content)
		if maxContextTokens > 0 && cost > remaining {
			break
		}
		retained = append(retained, history[i])
		remaining -= cost
	}
	for i := len(retained) - 1; i >= 0; i-- {
		messages = append(messages, ai.ChatMessage{
			Role:    retained[i].Role,
			Content: retained[i].Content,
		})
	}

	messages = append(messages, ai.ChatMessage{Role: "user", Content: question})
	return messages
}

func (a *ContextAssembler) renderSystem(passages []RetrievedPassage) string {
	if len(passages) == 0 {
		return noContextInstructions
	}

	var b strings.Builder
	b.WriteString(answerInstructions)
	b.WriteString("\n\nContext passages:\n")
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, p.Content)
	}
	return b.String()
}
