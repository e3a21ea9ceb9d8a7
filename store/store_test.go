package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/quick-forms/config"
	"github.com/mbolis/quick-forms/database"
	"github.com/mbolis/quick-forms/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(config.Config{
		DBDriver: database.SQLite,
		DBUrl:    filepath.Join(t.TempDir(), "qforms.sqlite"),
	})
	require.NoError(t, err)

	s := New(db)
	s.Accounts.HashCost = bcrypt.MinCost
	t.Cleanup(func() { s.Close() })
	return s
}

func mustRegister(t *testing.T, s *Store, username string, role model.Role) model.Account {
	t.Helper()
	a, err := s.Accounts.Register(context.Background(), NewAccount{
		Username: username,
		Email:    username + "@x.com",
		Password: "pw-" + username,
		Role:     role,
	})
	require.NoError(t, err)
	return a
}

func doc(raw string) model.Document {
	return model.Document(raw)
}
