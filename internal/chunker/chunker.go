package chunker

import "strings"

const (
	defaultMaxTokens = 512
)

// Piece is a chunk candidate cut from one document. Offsets are byte
// positions into the source text, so Text == source[StartOffset:EndOffset].
type Piece struct {
	Ordinal     int
	Text        string
	StartOffset int
	EndOffset   int
	Tokens      int
}

// Chunker splits document text into overlapping, token-bounded pieces.
// Boundaries prefer sentence and paragraph ends; a span with no boundary
// inside maxTokens is cut on hard token windows. Output is deterministic
// for identical input and parameters, which keeps re-ingestion idempotent.
type Chunker struct {
	tokenizer Tokenizer
}

func New(tokenizer Tokenizer) *Chunker {
	return &Chunker{tokenizer: tokenizer}
}

// segment is a contiguous source span; segments tile the text exactly.
type segment struct {
	start  int
	end    int
	tokens int
}

func (c *Chunker) Chunk(text string, maxTokens, overlapTokens int) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	if overlapTokens >= maxTokens {
		overlapTokens = maxTokens / 2
	}

	segs := c.segments(text, maxTokens)
	if len(segs) == 0 {
		return nil
	}

	var pieces []Piece
	prevStart := 0
	newStart := 0
	for newStart < len(segs) {
		start := newStart
		tokens := 0

		// Repeat the tail of the previous piece up to overlapTokens.
		if len(pieces) > 0 && overlapTokens > 0 {
			for start > prevStart {
				cand := segs[start-1]
				if tokens+cand.tokens > overlapTokens {
					break
				}
				tokens += cand.tokens
				start--
			}
		}

		end := newStart
		for end < len(segs) {
			segTok := segs[end].tokens
			if end == newStart {
				// The first fresh segment is always taken; shed overlap
				// from the front if it would blow the budget.
				for tokens+segTok > maxTokens && start < newStart {
					tokens -= segs[start].tokens
					start++
				}
			} else if tokens+segTok > maxTokens {
				break
			}
			tokens += segTok
			end++
		}

		startOff := segs[start].start
		endOff := segs[end-1].end
		pieceText := text[startOff:endOff]
		pieces = append(pieces, Piece{
			Ordinal:     len(pieces),
			Text:        pieceText,
			StartOffset: startOff,
			EndOffset:   endOff,
			Tokens:      c.tokenizer.Count(pieceText),
		})

		prevStart = start
		newStart = end
	}
	return pieces
}

// segments tiles the text into sentence/paragraph spans, then hard-splits
// any span whose token count exceeds maxTokens.
func (c *Chunker) segments(text string, maxTokens int) []segment {
	bounds := boundaryOffsets(text)

	var segs []segment
	start := 0
	for _, end := range bounds {
		if end <= start {
			continue
		}
		span := text[start:end]
		if strings.TrimSpace(span) == "" && len(segs) > 0 {
			// Fold pure whitespace (blank lines) into the previous span.
			segs[len(segs)-1].end = end
			start = end
			continue
		}
		segs = append(segs, c.splitOversized(text, segment{start: start, end: end}, maxTokens)...)
		start = end
	}

	for i := range segs {
		if segs[i].tokens == 0 {
			segs[i].tokens = c.tokenizer.Count(text[segs[i].start:segs[i].end])
		}
	}
	return segs
}

func (c *Chunker) splitOversized(text string, seg segment, maxTokens int) []segment {
	span := text[seg.start:seg.end]
	if c.tokenizer.Count(span) <= maxTokens {
		return []segment{seg}
	}
	parts := c.tokenizer.Split(span, maxTokens)
	out := make([]segment, 0, len(parts))
	pos := seg.start
	for _, p := range parts {
		out = append(out, segment{start: pos, end: pos + len(p), tokens: c.tokenizer.Count(p)})
		pos += len(p)
	}
	// Token windows reconstruct the span byte for byte; pin the last end
	// to guard against a lossy tokenizer.
	out[len(out)-1].end = seg.end
	return out
}

// boundaryOffsets returns byte offsets just after each sentence terminator
// (".", "!", "?" followed by whitespace or end of text) and each newline,
// always ending with len(text).
func boundaryOffsets(text string) []int {
	var bounds []int
	runes := []rune(text)
	pos := 0
	for i, r := range runes {
		size := len(string(r))
		switch {
		case r == '\n':
			bounds = append(bounds, pos+size)
		case r == '.' || r == '!' || r == '?':
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' {
				bounds = append(bounds, pos+size)
			}
		}
		pos += size
	}
	if len(bounds) == 0 || bounds[len(bounds)-1] != len(text) {
		bounds = append(bounds, len(text))
	}
	return bounds
}
