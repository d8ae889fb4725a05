package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"amora/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var (
	_ domain.UserRepository = (*UserRepo)(nil)
	_ domain.ProfileStore   = (*UserRepo)(nil)
)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, hashed_password, display_name, avatar_url, age, country, is_active, is_online, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, u.ID, u.Username, u.Email, u.HashedPassword, u.DisplayName, u.AvatarURL, u.Age, u.Country, u.IsActive, u.IsOnline)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, username, email, hashed_password, display_name, avatar_url, age, country, is_active, is_online, created_at, last_seen`

func (r *UserRepo) getBy(ctx context.Context, where string, arg any) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.HashedPassword,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Age,
		&u.Country,
		&u.IsActive,
		&u.IsOnline,
		&u.CreatedAt,
		&u.LastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, "id = ?", id)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getBy(ctx, "username = ?", username)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, "email = ?", email)
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_online = ?, last_seen = CURRENT_TIMESTAMP WHERE id = ?
	`, isOnline, id)
	if err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

// GetProfile resolves the public profile of a user. A row with a null or
// empty display name is reported as malformed rather than defaulted.
func (r *UserRepo) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p           domain.Profile
		displayName sql.NullString
		avatarURL   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, avatar_url, age, country FROM users WHERE id = ?
	`, userID).Scan(&p.ID, &displayName, &avatarURL, &p.Age, &p.Country)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if !displayName.Valid || displayName.String == "" {
		return nil, fmt.Errorf("%w: user %s has no display name", domain.ErrMalformedRow, userID)
	}
	p.DisplayName = displayName.String
	if avatarURL.Valid {
		p.AvatarURL = avatarURL.String
	}
	return &p, nil
}
