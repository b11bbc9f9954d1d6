package ops

import (
	stderrors "errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"

	"tradebot/pkg/exception"
)

const (
	EnvBotToken    = "BOT_TOKEN"
	EnvBotGroupID  = "BOT_GROUP_ID"
	EnvDatabaseURL = "DATABASE_URL"
	EnvRelayURL    = "RELAY_URL"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if stderrors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errors.Wrapf(err, "load %s", p)
		}
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func ApplyEnv(l *Loaded) error {
	return applyEnv(l, os.LookupEnv)
}

func applyEnv(l *Loaded, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBotToken); ok && v != "" {
		l.Transport.VK.Token = v
	}
	if v, ok := lookup(EnvBotGroupID); ok && v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return errors.Wrapf(exception.ErrInvalidConfig, "%s: invalid group id %q", EnvBotGroupID, v)
		}
		l.Transport.VK.GroupID = id
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		l.Store.Driver = StorePostgres
		l.Store.Postgres.ConnString = v
	}
	if v, ok := lookup(EnvRelayURL); ok && v != "" {
		l.Transport.Relay.URL = v
	}
	return nil
}
