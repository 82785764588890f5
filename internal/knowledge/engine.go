// Package knowledge answers questions from an organization's stored items
// using keyword retrieval.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/bdintelligence20/triggr4-hub/internal/domain"
	"github.com/bdintelligence20/triggr4-hub/internal/shared"
)

// DefaultMaxSources bounds how many items are cited per answer.
const DefaultMaxSources = 3

const (
	titleWeight    = 2.0
	maxAnswerRunes = 600
)

// ItemLister is the subset of the store the engine reads from.
type ItemLister interface {
	ListKnowledgeItems(ctx context.Context, organizationID, category string) ([]*domain.KnowledgeItem, error)
}

// ProgressFunc receives stage updates while a question is answered.
type ProgressFunc func(stage, message string)

// Question is one retrieval request.
type Question struct {
	Text string
	// Category is a category display name; empty searches every category.
	Category string
	// History is the newline-joined transcript sent by the client.
	History string
}

// Answer is the retrieval result. An empty Response means nothing matched.
type Answer struct {
	Response string
	Sources  []domain.Source
}

// Engine scores items by keyword overlap with the question.
type Engine struct {
	items      ItemLister
	maxSources int
	logger     *slog.Logger
}

// NewEngine creates an engine reading from items.
func NewEngine(items ItemLister, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{items: items, maxSources: DefaultMaxSources, logger: logger}
}

type scored struct {
	item  *domain.KnowledgeItem
	score float64
}

// Answer retrieves the items that best match q. progress may be nil.
func (e *Engine) Answer(ctx context.Context, organizationID string, q Question, progress ProgressFunc) (*Answer, error) {
	if progress == nil {
		progress = func(string, string) {}
	}

	terms := keywords(q.Text)
	if len(terms) == 0 {
		// Follow-ups like "and then?" borrow the previous user turn.
		terms = keywords(lastUserTurn(q.History))
	}

	items, err := e.items.ListKnowledgeItems(ctx, organizationID, q.Category)
	if err != nil {
		return nil, fmt.Errorf("list knowledge items: %w", err)
	}
	progress(domain.StageSearching, searchingMessage(len(items), q.Category))

	if len(terms) == 0 || len(items) == 0 {
		progress(domain.StageDone, "No matching items")
		return &Answer{}, nil
	}

	matches := lo.FilterMap(items, func(item *domain.KnowledgeItem, _ int) (scored, bool) {
		s := score(item, terms)
		return scored{item: item, score: s}, s > 0
	})
	progress(domain.StageRanking, fmt.Sprintf("Ranking %d matching items", len(matches)))

	slices.SortStableFunc(matches, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})
	if len(matches) > e.maxSources {
		matches = matches[:e.maxSources]
	}

	answer := &Answer{
		Sources: lo.Map(matches, func(m scored, _ int) domain.Source {
			return domain.Source{ID: m.item.ID, RelevanceScore: math.Round(m.score*1000) / 1000}
		}),
	}
	if len(matches) > 0 {
		best := matches[0].item
		answer.Response = compose(best, terms)
	}

	e.logger.Debug("Knowledge query answered",
		"organization_id", organizationID, "category", q.Category,
		"candidates", len(items), "sources", len(answer.Sources))
	progress(domain.StageDone, fmt.Sprintf("Found %d sources", len(answer.Sources)))
	return answer, nil
}

func searchingMessage(n int, category string) string {
	if category == "" {
		return fmt.Sprintf("Searching %d items", n)
	}
	return fmt.Sprintf("Searching %d items in %s", n, category)
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "can": {}, "do": {}, "does": {}, "for": {},
	"how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "the": {}, "then": {}, "to": {}, "we": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "why": {}, "with": {}, "you": {},
	"about": {}, "tell": {}, "there": {}, "that": {}, "this": {}, "be": {}, "any": {},
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// keywords returns the distinct non-stopword terms of s.
func keywords(s string) []string {
	return lo.Uniq(lo.Filter(tokenize(s), func(t string, _ int) bool {
		_, stop := stopwords[t]
		return !stop && len([]rune(t)) > 1
	}))
}

func lastUserTurn(history string) string {
	lines := strings.Split(history, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if rest, ok := strings.CutPrefix(lines[i], "User: "); ok {
			return rest
		}
	}
	return ""
}

// score is the weighted share of terms found in the item, in [0, 1].
func score(item *domain.KnowledgeItem, terms []string) float64 {
	title := lo.SliceToMap(tokenize(item.Title), func(t string) (string, struct{}) { return t, struct{}{} })
	body := lo.SliceToMap(tokenize(item.Content), func(t string) (string, struct{}) { return t, struct{}{} })

	var hits float64
	for _, term := range terms {
		if _, ok := title[term]; ok {
			hits += titleWeight
		} else if _, ok := body[term]; ok {
			hits++
		}
	}
	return hits / (titleWeight * float64(len(terms)))
}

// compose answers with the sentence of item that mentions the most terms.
func compose(item *domain.KnowledgeItem, terms []string) string {
	sentences := splitSentences(item.Content)
	best, bestHits := "", -1
	for _, sentence := range sentences {
		words := tokenize(sentence)
		hits := lo.CountBy(terms, func(term string) bool { return lo.Contains(words, term) })
		if hits > bestHits {
			best, bestHits = sentence, hits
		}
	}
	best = shared.TruncateRunes(strings.TrimSpace(best), maxAnswerRunes)
	if best == "" {
		return item.Title
	}
	if item.Title == "" {
		return best
	}
	return item.Title + ": " + best
}

func splitSentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if part := strings.TrimSpace(s[start : i+1]); part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		out = append(out, part)
	}
	return out
}
