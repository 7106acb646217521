package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"campusride/internal/domain"
	"campusride/internal/repository"
)

// ProfileRepository is an in-memory implementation of repository.ProfileRepository.
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
	byEmail  map[string]string
}

var _ repository.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates an empty profile repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		profiles: make(map[string]*domain.Profile),
		byEmail:  make(map[string]string),
	}
}

func (r *ProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(profile.Email)
	if _, ok := r.byEmail[email]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := r.profiles[profile.ID]; ok {
		return repository.ErrDuplicate
	}
	r.profiles[profile.ID] = cloneProfile(profile)
	r.byEmail[email] = profile.ID
	return nil
}

func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneProfile(profile), nil
}

func (r *ProfileRepository) GetAll(ctx context.Context) ([]*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, cloneProfile(p))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *ProfileRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	return r.update(id, func(p *domain.Profile) { p.Role = role })
}

func (r *ProfileRepository) UpdateTrustScore(ctx context.Context, id string, score float64) error {
	return r.update(id, func(p *domain.Profile) { p.TrustScore = score })
}

func (r *ProfileRepository) UpdateWalletBalance(ctx context.Context, id string, balance int64) error {
	return r.update(id, func(p *domain.Profile) { p.WalletBalance = balance })
}

func (r *ProfileRepository) update(id string, fn func(*domain.Profile)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(profile)
	return nil
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	out := *p
	if p.Vehicle != nil {
		vehicle := *p.Vehicle
		out.Vehicle = &vehicle
	}
	return &out
}
