package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julianstephens/habitnudge/internal/constants"
	"github.com/julianstephens/habitnudge/internal/errors"
	"github.com/julianstephens/habitnudge/internal/models"
)

const userColumns = `user_id, timezone, subscription_tier, reminder_enabled, default_reminder_last_sent_at, created_at`

func (s *Store) AddUser(ctx context.Context, user models.UserAccount) error {
	if user.UserID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if user.Timezone == "" {
		user.Timezone = constants.DefaultTimezone
	}
	if user.SubscriptionTier == "" {
		user.SubscriptionTier = models.TierFree
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.UserID, user.Timezone, string(user.SubscriptionTier), user.ReminderEnabled,
		user.DefaultReminderLastSentAt, user.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.UserAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, userID)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return models.UserAccount{}, fmt.Errorf("user %s: %w", userID, errors.ErrNotFound)
	}
	if err != nil {
		return models.UserAccount{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.UserAccount, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
}

func (s *Store) ListFreeUsersWithRemindersEnabled(ctx context.Context) ([]models.UserAccount, error) {
	// Unknown tiers count as free, matching models.ParseTier
	return s.queryUsers(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE reminder_enabled
		  AND lower(subscription_tier) NOT IN ($1, $2)
		ORDER BY user_id
	`, string(models.TierBasic), string(models.TierCoach))
}

func (s *Store) UpdateDefaultReminderSent(ctx context.Context, userID string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET default_reminder_last_sent_at = $1 WHERE user_id = $2`,
		at.UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update default_reminder_last_sent_at: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, errors.ErrNotFound)
	}
	return nil
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...interface{}) ([]models.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.UserAccount
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func scanUser(row rowScanner) (models.UserAccount, error) {
	var user models.UserAccount
	var tier string
	var lastSent sql.NullTime

	if err := row.Scan(&user.UserID, &user.Timezone, &tier, &user.ReminderEnabled, &lastSent, &user.CreatedAt); err != nil {
		return models.UserAccount{}, err
	}

	user.SubscriptionTier = models.ParseTier(tier)
	user.DefaultReminderLastSentAt = timePtr(lastSent)
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
