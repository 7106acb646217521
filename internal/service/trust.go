package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusride/internal/domain"
	"campusride/internal/events"
	"campusride/internal/lock"
	"campusride/internal/logging"
	"campusride/internal/metrics"
	"campusride/internal/redis"
	"campusride/internal/repository"
)

const (
	minTrustScore = 0.0
	maxTrustScore = 5.0
	trustLockTTL  = 5 * time.Second
)

// TrustScoreAggregator records ratings and derives trust scores from them.
type TrustScoreAggregator struct {
	ratings   repository.RatingRepository
	profiles  repository.ProfileRepository
	rides     repository.RideRepository
	cache     redis.TrustCacheInterface // optional
	locker    lock.Locker
	publisher events.Publisher
	logger    *zap.Logger
	backoff   Backoff
	now       func() time.Time
}

// NewTrustScoreAggregator creates a new TrustScoreAggregator. cache may be nil.
func NewTrustScoreAggregator(
	ratings repository.RatingRepository,
	profiles repository.ProfileRepository,
	rides repository.RideRepository,
	cache redis.TrustCacheInterface,
	locker lock.Locker,
	publisher events.Publisher,
	logger *zap.Logger,
	backoff Backoff,
) *TrustScoreAggregator {
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &TrustScoreAggregator{
		ratings:   ratings,
		profiles:  profiles,
		rides:     rides,
		cache:     cache,
		locker:    locker,
		publisher: publisher,
		logger:    logging.OrNop(logger),
		backoff:   backoff,
		now:       time.Now,
	}
}

// SubmitRatingRequest contains the parameters for rating a co-traveller.
type SubmitRatingRequest struct {
	FromUserID string
	ToUserID   string
	RideID     string
	Stars      int
	ReviewText string
}

// SubmitRating appends an immutable rating and recomputes the rated user's
// trust score.
func (s *TrustScoreAggregator) SubmitRating(ctx context.Context, req SubmitRatingRequest) (*domain.Rating, error) {
	const op = "submit rating"

	if req.FromUserID == "" || req.ToUserID == "" || req.RideID == "" {
		return nil, validationError(op, "rating", "from user, to user and ride are required")
	}
	if req.FromUserID == req.ToUserID {
		return nil, validationError(op, "rating", "users cannot rate themselves")
	}
	if req.Stars < domain.MinStars || req.Stars > domain.MaxStars {
		return nil, validationError(op, "rating",
			fmt.Sprintf("stars must be between %d and %d", domain.MinStars, domain.MaxStars))
	}

	for _, id := range []string{req.FromUserID, req.ToUserID} {
		if _, err := s.profiles.GetByID(ctx, id); err != nil {
			return nil, wrapStore(op, "profile", id, err)
		}
	}
	if _, err := s.rides.GetByID(ctx, req.RideID); err != nil {
		return nil, wrapStore(op, "ride", req.RideID, err)
	}

	rating := &domain.Rating{
		ID:         uuid.New().String(),
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		RideID:     req.RideID,
		Stars:      req.Stars,
		ReviewText: strings.TrimSpace(req.ReviewText),
		CreatedAt:  s.now(),
	}
	if err := s.ratings.Create(ctx, rating); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(ErrDuplicateRating, op, "rating", req.RideID,
				fmt.Sprintf("%s already rated %s for this ride", req.FromUserID, req.ToUserID))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RatingsSubmitted.Inc()

	score, err := s.recompute(ctx, req.ToUserID)
	if err != nil {
		// The rating is stored; drop the cached score so the next read derives it.
		s.logger.Warn("recompute trust score", zap.String("user_id", req.ToUserID), zap.Error(err))
		s.invalidate(ctx, req.ToUserID)
	} else {
		s.logger.Info("trust score updated",
			zap.String("user_id", req.ToUserID),
			zap.Float64("trust_score", score),
		)
	}

	if err := s.publisher.Publish(ctx, events.New(events.RatingSubmitted, req.ToUserID, map[string]any{
		"from_user_id": req.FromUserID,
		"ride_id":      req.RideID,
		"stars":        req.Stars,
	})); err != nil {
		s.logger.Warn("publish event", zap.String("type", string(events.RatingSubmitted)), zap.Error(err))
	}

	return rating, nil
}

// recompute derives the score from every rating received and stores it.
// Holding the user's trust section keeps a slower recompute from overwriting
// a newer one.
func (s *TrustScoreAggregator) recompute(ctx context.Context, userID string) (float64, error) {
	var score float64
	err := retryContention(ctx, s.backoff, func() error {
		key := lock.TrustPrefix + userID
		token, ok, err := s.locker.Acquire(ctx, key, trustLockTTL)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrContention, "recompute trust score", "profile", userID, "trust section is busy")
		}
		defer func() { _ = s.locker.Release(context.WithoutCancel(ctx), key, token) }()

		score, err = s.derive(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.profiles.UpdateTrustScore(ctx, userID, score); err != nil {
			return err
		}
		if s.cache != nil {
			if err := s.cache.SetTrustScore(ctx, userID, score); err != nil {
				s.logger.Warn("cache trust score", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return nil
	})
	return score, err
}

func (s *TrustScoreAggregator) derive(ctx context.Context, userID string) (float64, error) {
	received, err := s.ratings.GetByToUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	stars := make([]int, len(received))
	for i, r := range received {
		stars[i] = r.Stars
	}
	return TrustScoreOf(stars), nil
}

// TrustScoreOf is the arithmetic mean of stars rounded to one decimal and
// clamped to [0, 5]. No ratings score 0.
func TrustScoreOf(stars []int) float64 {
	if len(stars) == 0 {
		return minTrustScore
	}
	sum := 0
	for _, st := range stars {
		sum += st
	}
	mean := float64(sum) / float64(len(stars))
	rounded := math.Round(mean*10) / 10
	return math.Min(maxTrustScore, math.Max(minTrustScore, rounded))
}

// TrustScore returns a user's current score, from cache when possible.
func (s *TrustScoreAggregator) TrustScore(ctx context.Context, userID string) (float64, error) {
	if _, err := s.profiles.GetByID(ctx, userID); err != nil {
		return 0, wrapStore("trust score", "profile", userID, err)
	}
	scores, err := s.TrustScores(ctx, []string{userID})
	if err != nil {
		return 0, err
	}
	return scores[userID], nil
}

// TrustScores returns the scores of many users in one pass. Cache misses are
// derived from ratings and written back only where the cache is still empty,
// so a score a concurrent recompute stored is never replaced by an older
// derivation. Unknown users score 0.
func (s *TrustScoreAggregator) TrustScores(ctx context.Context, userIDs []string) (map[string]float64, error) {
	result := make(map[string]float64, len(userIDs))
	missing := userIDs

	if s.cache != nil && len(userIDs) > 0 {
		cached, miss, err := s.cache.GetTrustScores(ctx, userIDs)
		if err != nil {
			s.logger.Warn("read trust cache", zap.Error(err))
		} else {
			for id, score := range cached {
				result[id] = score
			}
			missing = miss
		}
	}

	derived := make(map[string]float64, len(missing))
	for _, id := range missing {
		if _, done := result[id]; done {
			continue
		}
		score, err := s.derive(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("trust score of %s: %w", id, err)
		}
		result[id] = score
		derived[id] = score
	}

	if s.cache != nil && len(derived) > 0 {
		if err := s.cache.FillTrustScores(ctx, derived); err != nil {
			s.logger.Warn("write trust cache", zap.Error(err))
		}
	}
	return result, nil
}

// RatingsFor returns the ratings a user has received.
func (s *TrustScoreAggregator) RatingsFor(ctx context.Context, userID string) ([]*domain.Rating, error) {
	if _, err := s.profiles.GetByID(ctx, userID); err != nil {
		return nil, wrapStore("list ratings", "profile", userID, err)
	}
	return s.ratings.GetByToUserID(ctx, userID)
}

func (s *TrustScoreAggregator) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTrustScore(ctx, userID); err != nil {
		s.logger.Warn("invalidate trust score", zap.String("user_id", userID), zap.Error(err))
	}
}
