package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

// DefaultTopQuestions is how many questions analytics reports by default.
const DefaultTopQuestions = 10

// GetAnalytics aggregates usage across every stored session.
func (s *Service) GetAnalytics(ctx context.Context, limit int) (*domain.Analytics, error) {
	if limit <= 0 {
		limit = DefaultTopQuestions
	}

	total, err := s.store.CountSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	intents, err := s.store.CountIntents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count intents: %w", err)
	}
	contents, err := s.store.ListUserMessageContents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}

	return &domain.Analytics{
		TotalSessions: total,
		Intents:       intents,
		TopQuestions:  topQuestions(contents, limit),
	}, nil
}

func topQuestions(contents []string, limit int) []domain.QuestionCount {
	counts := make(map[string]int)
	for _, c := range contents {
		if q := normalizeQuestion(c); q != "" {
			counts[q]++
		}
	}

	top := make([]domain.QuestionCount, 0, len(counts))
	for q, n := range counts {
		top = append(top, domain.QuestionCount{Question: q, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Question < top[j].Question
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}

// normalizeQuestion lower-cases text, drops punctuation and collapses whitespace.
func normalizeQuestion(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
