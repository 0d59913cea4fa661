package summarizer

import (
	"context"
	"strings"
	"sync"
)

// Model produces an abstractive summary of text of roughly minWords to maxWords words.
type Model interface {
	Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error)
}

type ModelFunc func(ctx context.Context, text string, minWords, maxWords int) (string, error)

func (f ModelFunc) Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error) {
	return f(ctx, text, minWords, maxWords)
}

const extractiveSentences = 3

// Extractive returns the leading sentences of text, capped at maxWords words.
// It needs no model and never fails.
type Extractive struct{}

func (Extractive) Summarize(_ context.Context, text string, _, maxWords int) (string, error) {
	return extract(text, maxWords), nil
}

func extract(text string, maxWords int) string {
	sentences := SplitSentences(text)
	if len(sentences) > extractiveSentences {
		sentences = sentences[:extractiveSentences]
	}
	return TruncateWords(strings.Join(sentences, " "), maxWords)
}

// Lazy builds its Model on first use and shares it afterwards. A failed build
// is remembered and returned from every call.
type Lazy struct {
	build func(ctx context.Context) (Model, error)

	once  sync.Once
	model Model
	err   error
}

func NewLazy(build func(ctx context.Context) (Model, error)) *Lazy {
	return &Lazy{build: build}
}

func (l *Lazy) Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error) {
	model, err := l.Model(ctx)
	if err != nil {
		return "", err
	}
	return model.Summarize(ctx, text, minWords, maxWords)
}

func (l *Lazy) Model(ctx context.Context) (Model, error) {
	l.once.Do(func() {
		// The handle outlives the request that happened to build it.
		l.model, l.err = l.build(context.WithoutCancel(ctx))
	})
	return l.model, l.err
}
