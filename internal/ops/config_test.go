package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebot/internal/poller"
	"tradebot/internal/round"
	"tradebot/pkg/exception"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultLoaded(t *testing.T) {
	l := DefaultLoaded()

	assert.Equal(t, StoreMemory, l.Store.Driver)
	assert.True(t, l.Store.Migrate)
	assert.Equal(t, TransportRelay, l.Transport.Kind)
	assert.Equal(t, DefaultRelayURL, l.Transport.Relay.URL)
	assert.True(t, l.Game.StartingCash.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, round.DefaultFinalRound, l.Game.FinalRound)
	assert.Equal(t, poller.DefaultReplyTimeout, l.Poller.ReplyTimeout)
	assert.Equal(t, poller.DefaultFailureReply, l.Poller.FailureReply)

	require.Len(t, l.Catalog.Listings, 2)
	assert.Equal(t, "APPLE", l.Catalog.Listings[0].Code)
	require.Len(t, l.Catalog.Events, 4)
	diffs := make([]string, 0, 4)
	for _, ev := range l.Catalog.Events {
		diffs = append(diffs, ev.Diff.String())
	}
	assert.Equal(t, []string{"1.1", "0.9", "1.4", "0.7"}, diffs)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"store": {"driver": "postgres", "migrate": false, "postgres": {"host": "db", "port": 6432, "database": "game"}},
		"transport": {"kind": "vk", "vk": {"token": "t", "groupId": 77, "wait": "10s"}},
		"game": {"startingCash": 500, "finalRound": 4, "seed": 42},
		"catalog": {
			"securities": [{"code": "tsla", "description": "tesla", "price": "12.345"}],
			"events": [{"text": "rally", "diff": 1.5}]
		},
		"poller": {"replyTimeout": "3s", "backoff": {"min": "1s", "max": "9s"}},
		"profiling": {"enabled": true}
	}`)

	l, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, l.Store.Driver)
	assert.False(t, l.Store.Migrate)
	assert.Equal(t, "db", l.Store.Postgres.Host)
	assert.Equal(t, 6432, l.Store.Postgres.Port)

	assert.Equal(t, TransportVK, l.Transport.Kind)
	assert.Equal(t, "t", l.Transport.VK.Token)
	assert.Equal(t, int64(77), l.Transport.VK.GroupID)
	assert.Equal(t, 10*time.Second, l.Transport.VK.Wait)

	assert.True(t, l.Game.StartingCash.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 4, l.Game.FinalRound)
	assert.Equal(t, uint64(42), l.Game.Seed)

	require.Len(t, l.Catalog.Listings, 1)
	assert.Equal(t, "TSLA", l.Catalog.Listings[0].Code)
	assert.Equal(t, "12.35", l.Catalog.Listings[0].Price.StringFixed(2))
	require.Len(t, l.Catalog.Events, 1)
	assert.Equal(t, "rally", l.Catalog.Events[0].Text)

	assert.Equal(t, 3*time.Second, l.Poller.ReplyTimeout)
	assert.Equal(t, time.Second, l.Poller.Backoff.Min)
	assert.Equal(t, 9*time.Second, l.Poller.Backoff.Max)
	assert.Equal(t, 2.0, l.Poller.Backoff.Factor)

	assert.True(t, l.Profiling.Enabled)
	assert.Equal(t, DefaultPyroscopeAddr, l.Profiling.ServerAddress)
	assert.Equal(t, DefaultApplicationKey, l.Profiling.ApplicationName)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"driver":         `{"store": {"driver": "mongo"}}`,
		"transport":      `{"transport": {"kind": "irc"}}`,
		"duration":       `{"poller": {"replyTimeout": "soon"}}`,
		"empty code":     `{"catalog": {"securities": [{"code": " ", "price": 1}]}}`,
		"duplicate code": `{"catalog": {"securities": [{"code": "A", "price": 1}, {"code": "a", "price": 2}]}}`,
		"zero price":     `{"catalog": {"securities": [{"code": "A", "price": 0}]}}`,
		"negative diff":  `{"catalog": {"events": [{"text": "x", "diff": -1}]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, exception.ErrInvalidConfig)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	_, err = Load(writeConfig(t, `{not json`))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvBotToken:    "token",
		EnvBotGroupID:  "123",
		EnvDatabaseURL: "postgres://bot@db/game",
		EnvRelayURL:    "ws://relay/ws",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	l := DefaultLoaded()
	require.NoError(t, applyEnv(&l, lookup))
	assert.Equal(t, "token", l.Transport.VK.Token)
	assert.Equal(t, int64(123), l.Transport.VK.GroupID)
	assert.Equal(t, StorePostgres, l.Store.Driver)
	assert.Equal(t, "postgres://bot@db/game", l.Store.Postgres.ConnString)
	assert.Equal(t, "ws://relay/ws", l.Transport.Relay.URL)

	env[EnvBotGroupID] = "abc"
	assert.ErrorIs(t, applyEnv(&l, lookup), exception.ErrInvalidConfig)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "TRADEBOT_DOTENV_PROBE"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv(key))
}
