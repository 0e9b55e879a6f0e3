package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianstephens/habitnudge/internal/config"
	"github.com/julianstephens/habitnudge/internal/delivery"
	"github.com/julianstephens/habitnudge/internal/keyring"
	"github.com/julianstephens/habitnudge/internal/lease"
	"github.com/julianstephens/habitnudge/internal/logger"
	"github.com/julianstephens/habitnudge/internal/storage"
)

type Context struct {
	Store     storage.Provider
	Config    config.Config
	ConfigDir string
	// Out receives command output; nil means stdout
	Out io.Writer
}

func (c *Context) Stdout() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.Stdout(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.Stdout(), args...)
}

// Locker builds the configured lease backend. The returned close func is never nil.
func (c *Context) Locker() (lease.Locker, func() error, error) {
	noClose := func() error { return nil }

	switch c.Config.LeaseBackend {
	case config.LeaseNone:
		return lease.Noop{}, noClose, nil
	case config.LeaseRedis:
		client := lease.NewRedisClient(c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)
		r := lease.NewRedis(client)
		return r, r.Close, nil
	case config.LeaseFile, "":
		dir := c.Config.LeaseDir
		if dir == "" {
			dir = filepath.Join(c.ConfigDir, "leases")
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, nil, fmt.Errorf("failed to create lease directory: %w", err)
		}
		return lease.NewFile(dir), noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown lease backend %q", c.Config.LeaseBackend)
	}
}

// Dispatcher builds the configured delivery transport. The returned close func is never nil.
func (c *Context) Dispatcher() (delivery.Dispatcher, func() error, error) {
	noClose := func() error { return nil }

	switch c.Config.Transport {
	case config.TransportDryRun:
		return delivery.NewDryRun(c.Stdout()), noClose, nil
	case config.TransportAMQP:
		pub, err := delivery.DialAMQP(c.Config.AMQPURL, c.Config.OutboundQueue)
		if err != nil {
			return nil, nil, err
		}
		return pub, pub.Close, nil
	case config.TransportTelegram, "":
		token, err := c.botToken()
		if err != nil {
			return nil, nil, err
		}
		return delivery.NewTelegram(c.Config.TelegramBaseURL, token), noClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", c.Config.Transport)
	}
}

func (c *Context) botToken() (string, error) {
	if token := strings.TrimSpace(c.Config.BotToken); token != "" {
		return token, nil
	}

	token, err := keyring.GetBotToken()
	if err == nil {
		return token, nil
	}
	if errors.Is(err, keyring.ErrNotFound) {
		return "", errors.New("no Telegram bot token configured. Set HABITNUDGE_TELEGRAM_TOKEN or run 'habitnudge keyring set bot <token>'")
	}
	logger.Warn("Keyring lookup for bot token failed", "error", err)
	return "", fmt.Errorf("failed to read bot token: %w", err)
}
