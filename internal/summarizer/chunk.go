package summarizer

import (
	"math"
	"strings"

	"github.com/samber/lo"
)

// Budget bounds how much text a single model call may receive.
type Budget struct {
	MaxTokens     int
	TokensPerWord float64
}

// Estimate returns the approximate token count of words words.
func (b Budget) Estimate(words int) int {
	// The epsilon keeps 1000*1.3 from rounding up to 1301.
	return int(math.Ceil(float64(words)*b.TokensPerWord - 1e-9))
}

func (b Budget) Fits(words int) bool {
	return b.Estimate(words) <= b.MaxTokens
}

// wordsPerPiece is the longest run of words that still fits the budget.
func (b Budget) wordsPerPiece() int {
	if b.TokensPerWord <= 0 {
		return max(b.MaxTokens, 1)
	}
	return max(int(math.Floor(float64(b.MaxTokens)/b.TokensPerWord+1e-9)), 1)
}

// Span is the half-open word range [StartWord, EndWord) of the normalized text.
type Span struct {
	StartWord int
	EndWord   int
}

type Chunk struct {
	Index int
	Span  Span
	Text  string
}

func (c Chunk) Words() int {
	return c.Span.EndWord - c.Span.StartWord
}

// SplitSentences splits text after words ending in '.', '!' or '?'.
// Whitespace is collapsed and punctuation is kept.
func SplitSentences(text string) []string {
	var sentences []string
	var current []string
	for _, word := range strings.Fields(text) {
		current = append(current, word)
		if endsSentence(word) {
			sentences = append(sentences, strings.Join(current, " "))
			current = current[:0]
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, strings.Join(current, " "))
	}
	return sentences
}

func endsSentence(word string) bool {
	word = strings.TrimRight(word, `"')]”’`)
	return strings.HasSuffix(word, ".") || strings.HasSuffix(word, "!") || strings.HasSuffix(word, "?")
}

// ChunkText groups whole sentences into chunks that fit budget. A sentence
// longer than the budget is cut into word runs. Joining the chunk texts with
// single spaces gives back the whitespace-normalized input.
func ChunkText(text string, budget Budget) []Chunk {
	var chunks []Chunk
	var current []string
	start := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Span:  Span{StartWord: start, EndWord: start + len(current)},
			Text:  strings.Join(current, " "),
		})
		start += len(current)
		current = nil
	}

	for _, sentence := range SplitSentences(text) {
		words := strings.Fields(sentence)
		if !budget.Fits(len(words)) {
			flush()
			for _, piece := range lo.Chunk(words, budget.wordsPerPiece()) {
				current = piece
				flush()
			}
			continue
		}
		if !budget.Fits(len(current) + len(words)) {
			flush()
		}
		current = append(current, words...)
	}
	flush()
	return chunks
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// TruncateWords keeps the first n words of text.
func TruncateWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:max(n, 0)], " ")
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
