package postgres

import (
	"context"

	"github.com/Sebdysart/hustlexp-engine/internal/domain"
)

// questSource adapts the repository to the QuestSource interface the
// engine boots from.
type questSource struct {
	repo Repository
}

// NewQuestSource returns the marketplace-side quest view backed by the
// quests table.
func NewQuestSource(repo Repository) domain.QuestSource {
	return &questSource{repo: repo}
}

func (q *questSource) ListOpenQuests(ctx context.Context) ([]*domain.Quest, error) {
	return q.repo.ListQuestsByState(ctx, domain.QuestOpen, 10_000)
}

func (q *questSource) GetQuest(ctx context.Context, id string) (*domain.Quest, error) {
	return q.repo.GetQuest(ctx, id)
}

func (q *questSource) ExpireQuest(ctx context.Context, id string) error {
	return q.repo.UpdateQuestState(ctx, id, domain.QuestExpired)
}
