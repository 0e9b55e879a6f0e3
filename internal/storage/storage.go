package storage

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/habitnudge/internal/models"
)

// NewID returns a fresh row identifier
func NewID() string {
	return uuid.NewString()
}

// IsPostgresConnString reports whether the config value selects the Postgres store
func IsPostgresConnString(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://") || strings.Contains(s, "host=")
}

// HasEmbeddedCredentials reports whether a Postgres URL or DSN carries a password.
func HasEmbeddedCredentials(connStr string) bool {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return false
		}
		_, isSet := u.User.Password()
		return isSet
	}
	for _, pair := range strings.Fields(connStr) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[0]), "password") {
			return true
		}
	}
	return false
}

// WeekdayTokens converts days to their stored tokens, dropping duplicates.
func WeekdayTokens(wds []models.Weekday) []string {
	return models.NewWeekdaySet(wds...).Tokens()
}
