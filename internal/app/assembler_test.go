package app

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askcorpus/internal/ai"
	"askcorpus/internal/model"
)

func messageTokens(messages []ai.ChatMessage) int {
	var total int
	for _, m := range messages {
		total += runeCounter{}.Count(m.Content)
	}
	return total
}

func TestAssembleNoPassages(t *testing.T) {
	a := NewContextAssembler(runeCounter{})

	messages := a.Assemble(nil, nil, "what is up?", 0)

	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, noContextInstructions, messages[0].Content)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "what is up?", messages[1].Content)
}

func TestAssembleNumbersPassages(t *testing.T) {
	a := NewContextAssembler(runeCounter{})
	passages := []RetrievedPassage{
		{ChunkID: 1, Content: "alpha facts", Rank: 1},
		{ChunkID: 2, Content: "beta facts", Rank: 2},
	}

	messages := a.Assemble(passages, nil, "question", 0)

	require.NotEmpty(t, messages)
	system := messages[0].Content
	assert.Contains(t, system, "[1] alpha facts")
	assert.Contains(t, system, "[2] beta facts")
	assert.Equal(t, "question", messages[len(messages)-1].Content)
	assert.Equal(t, "user", messages[len(messages)-1].Role)
}

func TestAssembleIncludesHistoryInOrder(t *testing.T) {
	a := NewContextAssembler(runeCounter{})
	history := []model.Turn{
		{Role: model.TurnRoleUser, Content: "first question", Ordinal: 0},
		{Role: model.TurnRoleAssistant, Content: "first answer", Ordinal: 1},
	}

	messages := a.Assemble(nil, history, "followup", 0)

	require.Len(t, messages, 4)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "first question", messages[1].Content)
	assert.Equal(t, "assistant", messages[2].Role)
	assert.Equal(t, "first answer", messages[2].Content)
	assert.Equal(t, "followup", messages[3].Content)
}

func TestAssembleNeverExceedsBudget(t *testing.T) {
	a := NewContextAssembler(runeCounter{})

	var passages []RetrievedPassage
	for i := 0; i < 5; i++ {
		passages = append(passages, RetrievedPassage{
			ChunkID: uint(i + 1),
			Content: strings.Repeat("x", 200),
			Rank:    i + 1,
		})
	}
	var history []model.Turn
	for i := 0; i < 10; i++ {
		role := model.TurnRoleUser
		if i%2 == 1 {
			role = model.TurnRoleAssistant
		}
		history = append(history, model.Turn{
			Role:    role,
			Content: fmt.Sprintf("turn %d %s", i, strings.Repeat("y", 100)),
			Ordinal: i,
		})
	}

	budget := 1200
	messages := a.Assemble(passages, history, "the question", budget)

	assert.LessOrEqual(t, messageTokens(messages), budget)
	assert.Equal(t, "the question", messages[len(messages)-1].Content)
}

func TestAssembleDropsLowestRankedPassagesFirst(t *testing.T) {
	a := NewContextAssembler(runeCounter{})
	passages := []RetrievedPassage{
		{ChunkID: 1, Content: strings.Repeat("a", 100), Rank: 1},
		{ChunkID: 2, Content: strings.Repeat("b", 100), Rank: 2},
		{ChunkID: 3, Content: strings.Repeat("c", 100), Rank: 3},
	}

	// Room for the instructions and roughly two passages only.
	budget := runeCounter{}.Count(answerInstructions) + 280
	messages := a.Assemble(passages, nil, "q", budget)

	system := messages[0].Content
	assert.Contains(t, system, strings.Repeat("a", 100))
	assert.NotContains(t, system, strings.Repeat("c", 100))
}

func TestAssembleDropsOldestHistoryFirst(t *testing.T) {
	a := NewContextAssembler(runeCounter{})
	history := []model.Turn{
		{Role: model.TurnRoleUser, Content: strings.Repeat("o", 300), Ordinal: 0},
		{Role: model.TurnRoleAssistant, Content: "recent answer", Ordinal: 1},
	}

	budget := runeCounter{}.Count(noContextInstructions) + runeCounter{}.Count("q") + 50
	messages := a.Assemble(nil, history, "q", budget)

	var contents []string
	for _, m := range messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "recent answer")
	assert.NotContains(t, contents, strings.Repeat("o", 300))
}

func TestAssembleKeepsQuestionEvenWhenTight(t *testing.T) {
	a := NewContextAssembler(runeCounter{})
	passages := []RetrievedPassage{
		{ChunkID: 1, Content: strings.Repeat("z", 500), Rank: 1},
	}

	messages := a.Assemble(passages, nil, "the question", 40)

	require.NotEmpty(t, messages)
	last := messages[len(messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, "the question", last.Content)
}
