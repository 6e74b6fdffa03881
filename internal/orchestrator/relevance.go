package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hession/mentorjournal/internal/llm"
	"github.com/hession/mentorjournal/internal/mentor"
)

// ErrNoJournalSummary is returned when relevance is scored for a date the
// journaling mentor has not summarized
var ErrNoJournalSummary = errors.New("no journal summary for this date")

// maxRelevant caps the mentors picked from one journal entry
const maxRelevant = 3

// RelevantMentors asks the model which mentors fit the day's journal
// summary. The answer is free text; every catalog id it mentions counts,
// in catalog order. An answer naming no id yields an empty list.
func (s *Service) RelevantMentors(ctx context.Context, date string) ([]string, error) {
	st, err := s.engine.Registry().State(ctx, mentor.JournalingID)
	if err != nil {
		return nil, err
	}
	summary, ok := st.Summaries[date]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoJournalSummary, date)
	}

	var b strings.Builder
	b.WriteString(s.prompts.RelevanceRule)
	b.WriteString("\n\nJournal summary:\n'''\n")
	b.WriteString(summary)
	b.WriteString("\n'''\n\nMentors:\n")
	candidates := make([]string, 0)
	for _, def := range s.Catalog().All() {
		fmt.Fprintf(&b, "- %s: %s\n", def.ID, def.SystemPrompt)
		if def.ID != mentor.JournalingID {
			candidates = append(candidates, def.ID)
		}
	}

	answer, err := llm.Text(ctx, s.llm, llm.Request{
		Tier:     llm.Tier(s.prompts.Tiers.Relevance),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	})
	if err != nil {
		return nil, fmt.Errorf("score relevance for %s: %w", date, err)
	}

	ids := matchMentorIDs(answer, candidates, maxRelevant)
	if len(ids) == 0 {
		s.logger.Warn("relevance answer named no mentor", "date", date, "answer", answer)
	}
	return ids, nil
}

// matchMentorIDs returns up to limit candidates that occur in text
func matchMentorIDs(text string, candidates []string, limit int) []string {
	ids := []string{}
	for _, id := range candidates {
		if len(ids) == limit {
			break
		}
		if strings.Contains(text, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateAgentsRelevantToToday scores the mentors relevant to date and
// stores them on the day's chat
func (s *Service) CreateAgentsRelevantToToday(ctx context.Context, date string) ([]string, error) {
	sess, err := s.Session(ctx, date)
	if err != nil {
		return nil, err
	}
	ids, err := s.RelevantMentors(ctx, date)
	if err != nil {
		return nil, err
	}
	if err := sess.SetAgentsRelevantToToday(ctx, ids); err != nil {
		return nil, err
	}
	s.logger.Info("relevant mentors stored", "date", date, "mentors", ids)
	return ids, nil
}
