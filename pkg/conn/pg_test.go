package conn

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionDSN(t *testing.T) {
	testCases := []struct {
		desc     string
		opt      Option
		expected string
	}{
		{
			"defaults",
			Option{},
			"postgres://localhost:5432?sslmode=disable",
		},
		{
			"full",
			Option{Host: "db", Port: 6432, User: "bot", Password: "p@ss", Database: "game", SSLMode: "require"},
			"postgres://bot:p%40ss@db:6432/game?sslmode=require",
		},
		{
			"params",
			Option{User: "bot", Database: "game", Params: map[string]string{"application_name": "tradebot", "": "skip"}},
			"postgres://bot@localhost:5432/game?application_name=tradebot&sslmode=disable",
		},
		{
			"conn string wins",
			Option{Host: "ignored", ConnString: "postgres://x/y"},
			"postgres://x/y",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			dsn, err := tc.opt.DSN()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, dsn)
		})
	}

	_, err := Option{Port: 70000}.DSN()
	assert.Error(t, err)
}

func TestNewWithDialector(t *testing.T) {
	c, err := New(Option{Dialector: sqlite.Open(filepath.Join(t.TempDir(), "conn.db"))})
	require.NoError(t, err)
	require.NotNil(t, c.DB())
	require.NoError(t, c.DB().Exec("SELECT 1").Error)
	require.NoError(t, c.Close())

	var nilClient *Client
	assert.Nil(t, nilClient.DB())
	assert.NoError(t, nilClient.Close())
}
