package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habitnudge/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is found in the keyring
	ErrNotFound = errors.New("secret not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// Secret names one entry stored under the application's keyring service.
type Secret string

const (
	ConnectionString Secret = constants.DefaultKeyringUser
	BotToken         Secret = constants.BotTokenKeyringUser
)

// ParseSecret accepts the CLI names of the stored secrets.
func ParseSecret(name string) (Secret, error) {
	switch name {
	case "db", "database", string(ConnectionString):
		return ConnectionString, nil
	case "bot", "telegram", string(BotToken):
		return BotToken, nil
	default:
		return "", fmt.Errorf("unknown secret %q (expected db or bot)", name)
	}
}

func (s Secret) Label() string {
	if s == BotToken {
		return "Telegram bot token"
	}
	return "database connection string"
}

// Get retrieves a secret. Returns ErrNotFound if nothing is stored.
func Get(s Secret) (string, error) {
	value, err := keyring.Get(constants.AppName, string(s))
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return value, nil
}

func Set(s Secret, value string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", s.Label())
	}
	if err := keyring.Set(constants.AppName, string(s), value); err != nil {
		return fmt.Errorf("failed to store %s in keyring: %w", s.Label(), err)
	}
	return nil
}

func Delete(s Secret) error {
	err := keyring.Delete(constants.AppName, string(s))
	if err != nil {
		if err == keyring.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete %s from keyring: %w", s.Label(), err)
	}
	return nil
}

// GetConnectionString retrieves the database connection string from the OS keyring.
func GetConnectionString() (string, error) {
	return Get(ConnectionString)
}

// GetBotToken retrieves the Telegram bot token from the OS keyring.
func GetBotToken() (string, error) {
	return Get(BotToken)
}

// IsAvailable checks if the OS keyring is available on the current system.
// This is a best-effort check and may not catch all failure scenarios.
func IsAvailable() bool {
	_, err := keyring.Get(constants.AppName, "test-availability")
	return err == nil || err == keyring.ErrNotFound
}
