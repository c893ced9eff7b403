// Package search answers timeline queries: structured filters, then an
// all-tokens-present lexical match, then semantic ranking when vectors are
// available.
package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/rewind/embedder"
	"github.com/hazyhaar/rewind/observability"
	"github.com/hazyhaar/rewind/timeline/internal/store"
)

// Source supplies the candidate set, newest first.
type Source interface {
	GetAll(ctx context.Context) ([]*store.Entry, error)
}

// Config for an Engine.
type Config struct {
	Embedder embedder.Embedder // nil means no semantic ranking
	Location *time.Location    // date/time filters, default time.Local
	Now      func() time.Time  // default time.Now
	Logger   *slog.Logger
	Metrics  observability.Recorder // optional
}

// Engine runs searches against a Source.
type Engine struct {
	src Source
	cfg Config
}

func New(src Source, cfg Config) *Engine {
	if cfg.Embedder == nil {
		cfg.Embedder = embedder.Noop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{src: src, cfg: cfg}
}

// Search parses raw and returns matching entries, best first. An empty
// query returns no results.
func (e *Engine) Search(ctx context.Context, raw string) ([]*store.Entry, error) {
	start := time.Now()
	q := ParseQuery(raw, e.cfg.Now().In(e.cfg.Location))
	if q.Empty() {
		return []*store.Entry{}, nil
	}

	all, err := e.src.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(q.Text)
	want := Tokenize(text)
	out := make([]*store.Entry, 0, len(all))
	for _, ent := range all {
		if len(want) > 0 && !containsAll(entryTokens(ent), want) {
			continue
		}
		if !e.matchFilters(ent, q.Filters) {
			continue
		}
		out = append(out, ent)
	}

	out = e.rank(ctx, text, out)

	if e.cfg.Metrics != nil {
		e.cfg.Metrics.RecordSimple(observability.MetricSearchDurationMs, float64(time.Since(start).Milliseconds()), "ms")
	}
	e.cfg.Logger.Debug("search: done", "query", raw, "results", len(out), "duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

func entryTokens(ent *store.Entry) map[string]struct{} {
	return Tokenize(strings.Join([]string{ent.Text, ent.App, ent.Title, ent.PageURL}, " "))
}

func (e *Engine) matchFilters(ent *store.Entry, f Filters) bool {
	at := time.Unix(ent.Timestamp, 0).In(e.cfg.Location)
	if f.Date != nil && dateOf(at) != *f.Date {
		return false
	}
	if f.Time != nil && !f.Time.match(clockOf(at)) {
		return false
	}
	if f.Title != "" && (ent.Title == "" || !strings.Contains(strings.ToLower(ent.Title), f.Title)) {
		return false
	}
	if f.URL != "" && !strings.Contains(domainOf(ent.PageURL), f.URL) {
		return false
	}
	return true
}

func byRecency(a, b *store.Entry) int {
	return cmp.Compare(b.Timestamp, a.Timestamp)
}

// rank orders candidates. Without free text or without any vectored
// candidate the order is newest first. Otherwise vectored entries come
// first by cosine similarity to the query, then the rest newest first. A
// failed or all-zero query vector orders the vectored entries by recency
// too.
func (e *Engine) rank(ctx context.Context, text string, cands []*store.Entry) []*store.Entry {
	var withVec, without []*store.Entry
	for _, c := range cands {
		if len(c.Embedding) > 0 {
			withVec = append(withVec, c)
		} else {
			without = append(without, c)
		}
	}
	if text == "" || len(withVec) == 0 {
		slices.SortStableFunc(cands, byRecency)
		return cands
	}
	slices.SortStableFunc(without, byRecency)

	qv, err := e.cfg.Embedder.Embed(ctx, text)
	if err != nil {
		e.cfg.Logger.Warn("search: query embedding failed", "error", err)
	}
	if err != nil || embedder.IsZero(qv) {
		slices.SortStableFunc(withVec, byRecency)
		return append(withVec, without...)
	}

	sims := make(map[*store.Entry]float64, len(withVec))
	for _, c := range withVec {
		sims[c] = embedder.Cosine(qv, c.Embedding)
	}
	slices.SortStableFunc(withVec, func(a, b *store.Entry) int {
		if c := cmp.Compare(sims[b], sims[a]); c != 0 {
			return c
		}
		return byRecency(a, b)
	})
	return append(withVec, without...)
}
