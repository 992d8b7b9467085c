package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"cmc-connect/internal/models"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrSubscriptionNotFound = errors.New("push subscription not found")
)

// UserRepository is the read-mostly view of the identity subsystem the chat
// core consumes, plus push-subscription storage.
type UserRepository interface {
	Get(ctx context.Context, userID int) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, string, error)
	List(ctx context.Context) ([]models.User, error)
	SaveSubscription(ctx context.Context, sub models.PushSubscription) error
	GetSubscription(ctx context.Context, userID int) (models.PushSubscription, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Get fetches one user.
func (r *UserRepo) Get(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT id, first_name, last_name, email, role, photo, created_at
         FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetByEmail returns the user and their password hash for login checks.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (models.User, string, error) {
	var row struct {
		models.User
		PasswordHash string `db:"password_hash"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT id, first_name, last_name, email, role, photo, created_at, password_hash
         FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, "", ErrUserNotFound
	}
	return row.User, row.PasswordHash, err
}

// List returns every user, for the new-conversation picker.
func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, first_name, last_name, email, role, photo, created_at
         FROM users ORDER BY first_name, last_name`)
	return users, err
}

// SaveSubscription upserts the user's web-push subscription.
func (r *UserRepo) SaveSubscription(ctx context.Context, sub models.PushSubscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth) VALUES ($1, $2, $3, $4)
         ON CONFLICT (user_id) DO UPDATE SET endpoint=EXCLUDED.endpoint,
             p256dh=EXCLUDED.p256dh, auth=EXCLUDED.auth`,
		sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth)
	return err
}

// GetSubscription fetches the stored subscription for a user.
func (r *UserRepo) GetSubscription(ctx context.Context, userID int) (models.PushSubscription, error) {
	var sub models.PushSubscription
	err := r.db.GetContext(ctx, &sub,
		`SELECT user_id, endpoint, p256dh, auth, created_at
         FROM push_subscriptions WHERE user_id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PushSubscription{}, ErrSubscriptionNotFound
	}
	return sub, err
}
