package memory

import (
	"context"
	"sync"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// RatingRepository is an in-memory implementation of repository.RatingRepository.
type RatingRepository struct {
	mu       sync.RWMutex
	keys     map[domain.RatingKey]struct{}
	received map[string][]*domain.Rating
}

var _ repository.RatingRepository = (*RatingRepository)(nil)

// NewRatingRepository creates an empty rating repository.
func NewRatingRepository() *RatingRepository {
	return &RatingRepository{
		keys:     make(map[domain.RatingKey]struct{}),
		received: make(map[string][]*domain.Rating),
	}
}

func (r *RatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rating.Key()
	if _, ok := r.keys[key]; ok {
		return repository.ErrDuplicate
	}
	r.keys[key] = struct{}{}
	stored := *rating
	r.received[rating.ToUserID] = append(r.received[rating.ToUserID], &stored)
	return nil
}

func (r *RatingRepository) GetByToUserID(ctx context.Context, userID string) ([]*domain.Rating, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ratings := r.received[userID]
	result := make([]*domain.Rating, 0, len(ratings))
	for _, rating := range ratings {
		out := *rating
		result = append(result, &out)
	}
	return result, nil
}
