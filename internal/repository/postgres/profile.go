package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

const profileColumns = `id, name, email, gender, role, trust_score, wallet_balance, vehicle_model, license_plate, created_at`

// ProfileRepository is a PostgreSQL implementation of repository.ProfileRepository.
type ProfileRepository struct {
	q Querier
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new PostgreSQL profile repository.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{q: db}
}

// NewProfileRepositoryWithTx creates a profile repository using a transaction.
func NewProfileRepositoryWithTx(tx *sql.Tx) *ProfileRepository {
	return &ProfileRepository{q: tx}
}

// Create adds a new profile.
func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	query := `INSERT INTO profiles (` + profileColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var model, plate sql.NullString
	if p.Vehicle != nil {
		model = nullString(p.Vehicle.Model)
		plate = nullString(p.Vehicle.LicensePlate)
	}

	_, err := r.q.ExecContext(ctx, query,
		p.ID,
		p.Name,
		p.Email,
		p.Gender,
		p.Role,
		p.TrustScore,
		p.WalletBalance,
		model,
		plate,
		p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a profile by ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return p, err
}

// GetAll retrieves all profiles.
func (r *ProfileRepository) GetAll(ctx context.Context) ([]*domain.Profile, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateRole switches the role a user acts in.
func (r *ProfileRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return r.update(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`, id, role)
}

// UpdateTrustScore refreshes the cached trust score.
func (r *ProfileRepository) UpdateTrustScore(ctx context.Context, id string, score float64) error {
	return r.update(ctx, `UPDATE profiles SET trust_score = $2 WHERE id = $1`, id, score)
}

// UpdateWalletBalance refreshes the cached balance.
func (r *ProfileRepository) UpdateWalletBalance(ctx context.Context, id string, balance int64) error {
	return r.update(ctx, `UPDATE profiles SET wallet_balance = $2 WHERE id = $1`, id, balance)
}

func (r *ProfileRepository) update(ctx context.Context, query, id string, value any) error {
	result, err := r.q.ExecContext(ctx, query, id, value)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanProfile(s scanner) (*domain.Profile, error) {
	var p domain.Profile
	var model, plate sql.NullString
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Gender,
		&p.Role,
		&p.TrustScore,
		&p.WalletBalance,
		&model,
		&plate,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if model.Valid || plate.Valid {
		p.Vehicle = &domain.Vehicle{Model: model.String, LicensePlate: plate.String}
	}
	return &p, nil
}
