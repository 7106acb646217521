package postgres

import (
	"context"
	"database/sql"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// RatingRepository is a PostgreSQL implementation of repository.RatingRepository.
type RatingRepository struct {
	q Querier
}

var _ repository.RatingRepository = (*RatingRepository)(nil)

// NewRatingRepository creates a new PostgreSQL rating repository.
func NewRatingRepository(db *sql.DB) *RatingRepository {
	return &RatingRepository{q: db}
}

// Create persists a rating. The (from, to, ride) unique constraint enforces
// one rating per pair and ride.
func (r *RatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	query := `
		INSERT INTO ratings (id, from_user_id, to_user_id, ride_id, stars, review_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.q.ExecContext(ctx, query,
		rating.ID,
		rating.FromUserID,
		rating.ToUserID,
		rating.RideID,
		rating.Stars,
		rating.ReviewText,
		rating.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByToUserID retrieves the ratings a user has received.
func (r *RatingRepository) GetByToUserID(ctx context.Context, userID string) ([]*domain.Rating, error) {
	query := `
		SELECT id, from_user_id, to_user_id, ride_id, stars, review_text, created_at
		FROM ratings
		WHERE to_user_id = $1
		ORDER BY created_at, id`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ratings []*domain.Rating
	for rows.Next() {
		var rating domain.Rating
		err := rows.Scan(
			&rating.ID,
			&rating.FromUserID,
			&rating.ToUserID,
			&rating.RideID,
			&rating.Stars,
			&rating.ReviewText,
			&rating.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, &rating)
	}
	return ratings, rows.Err()
}
