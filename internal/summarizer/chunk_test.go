package summarizer

import (
	"fmt"
	"strings"
	"testing"
)

// sentences returns n sentences of wordsEach words. Words are unique so
// coverage checks catch reordering.
func sentences(n, wordsEach int) string {
	var b strings.Builder
	w := 0
	for i := 0; i < n; i++ {
		for j := 0; j < wordsEach; j++ {
			if w > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "w%d", w)
			w++
			if j == wordsEach-1 {
				b.WriteByte('.')
			}
		}
	}
	return b.String()
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("  Hello there.  How are\nyou? Fine!  \"Quoted.\" trailing words ")
	want := []string{"Hello there.", "How are you?", "Fine!", "\"Quoted.\"", "trailing words"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := SplitSentences("   "); len(got) != 0 {
		t.Fatalf("expected no sentences, got %q", got)
	}
}

func TestChunkTextNineThousandWordsInThreeChunks(t *testing.T) {
	text := sentences(900, 10)
	chunks := ChunkText(text, Budget{MaxTokens: 3000, TokensPerWord: 1})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Words() != 3000 || c.Index != i {
			t.Fatalf("chunk %d: %d words, index %d", i, c.Words(), c.Index)
		}
	}
}

func TestChunkTextCoversInputExactly(t *testing.T) {
	inputs := []string{
		sentences(37, 13),
		sentences(5, 400),
		sentences(1, 2501) + " " + sentences(3, 7),
		"no terminal punctuation at all but many words " + strings.Repeat("filler ", 300),
	}
	budgets := []Budget{
		{MaxTokens: 100, TokensPerWord: 1.3},
		{MaxTokens: 1024, TokensPerWord: 1.3},
		{MaxTokens: 3000, TokensPerWord: 1},
		{MaxTokens: 7, TokensPerWord: 2},
	}
	for _, text := range inputs {
		want := strings.Join(strings.Fields(text), " ")
		for _, b := range budgets {
			chunks := ChunkText(text, b)
			texts := make([]string, len(chunks))
			next := 0
			for i, c := range chunks {
				texts[i] = c.Text
				if c.Span.StartWord != next {
					t.Fatalf("budget %+v: chunk %d starts at %d, want %d", b, i, c.Span.StartWord, next)
				}
				if c.Words() != WordCount(c.Text) {
					t.Fatalf("budget %+v: chunk %d span does not match text", b, i)
				}
				if c.Words() > 1 && !b.Fits(c.Words()) {
					t.Fatalf("budget %+v: chunk %d is over budget with %d words", b, i, c.Words())
				}
				next = c.Span.EndWord
			}
			if got := strings.Join(texts, " "); got != want {
				t.Fatalf("budget %+v: chunks do not reproduce the input", b)
			}
		}
	}
}

func TestChunkTextKeepsSentencesWhole(t *testing.T) {
	chunks := ChunkText("One two three. Four five six. Seven eight nine.", Budget{MaxTokens: 7, TokensPerWord: 1})
	got := make([]string, len(chunks))
	for i, c := range chunks {
		got[i] = c.Text
	}
	want := "One two three. Four five six.|Seven eight nine."
	if strings.Join(got, "|") != want {
		t.Fatalf("got %q", got)
	}
}

func TestBudgetEstimate(t *testing.T) {
	b := Budget{MaxTokens: 1300, TokensPerWord: 1.3}
	if got := b.Estimate(1000); got != 1300 {
		t.Fatalf("Estimate(1000) = %d", got)
	}
	if !b.Fits(1000) || b.Fits(1001) {
		t.Fatal("1000 words should be the largest fit")
	}
	if got := b.wordsPerPiece(); got != 1000 {
		t.Fatalf("wordsPerPiece() = %d", got)
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords(" a  b c d ", 2); got != "a b" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateWords("a b", 5); got != "a b" {
		t.Fatalf("got %q", got)
	}
}
