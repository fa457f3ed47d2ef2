package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Krchnk/valutatrade-wallet/internal/domain"
	"github.com/Krchnk/valutatrade-wallet/internal/storages"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(
		filepath.Join(dir, "users.json"),
		filepath.Join(dir, "portfolios.json"),
		filepath.Join(dir, "session.json"),
	), dir
}

func TestStore_CreateUserAssignsIncrementingIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	alice, err := s.CreateUser(ctx, "alice", "h1", "s1", now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.UserID)

	bob, err := s.CreateUser(ctx, "bob", "h2", "s2", now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bob.UserID)

	_, err = s.CreateUser(ctx, "alice", "h3", "s3", now)
	assert.ErrorIs(t, err, domain.ErrUserExists)

	got, err := s.GetUserByName(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob, got)

	_, err = s.GetUserByName(ctx, "carol")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestStore_UserIDFollowsMaxExisting(t *testing.T) {
	s, dir := newTestStore(t)
	seed := `[{"user_id": 5, "username": "old", "hashed_password": "x", "salt": "y", "registration_date": "2024-01-01T00:00:00Z"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.json"), []byte(seed), 0o644))

	u, err := s.CreateUser(context.Background(), "new", "h", "s", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(6), u.UserID)
}

func TestStore_RenameUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "alice", "h", "s", time.Now())
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "bob", "h", "s", time.Now())
	require.NoError(t, err)

	assert.ErrorIs(t, s.RenameUser(ctx, 1, ""), domain.ErrValidation)
	assert.ErrorIs(t, s.RenameUser(ctx, 1, "bob"), domain.ErrUserExists)
	assert.ErrorIs(t, s.RenameUser(ctx, 9, "zed"), domain.ErrUserNotFound)
	require.NoError(t, s.RenameUser(ctx, 1, "alicia"))

	u, err := s.GetUserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.Username)
}

func TestStore_PortfolioRoundTripAndDocumentShape(t *testing.T) {
	s, dir := newTestStore(t)
	ctx := context.Background()

	empty, err := s.LoadPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, empty.Wallets)

	p := domain.NewPortfolio(1)
	require.NoError(t, p.Credit("BTC", decimal.RequireFromString("0.5")))
	require.NoError(t, p.Credit("USD", decimal.RequireFromString("100.25")))
	require.NoError(t, s.SavePortfolio(ctx, p))

	other := domain.NewPortfolio(2)
	require.NoError(t, s.SavePortfolio(ctx, other))

	loaded, err := s.LoadPortfolio(ctx, 1)
	require.NoError(t, err)
	assert.True(t, loaded.Balance("BTC").Equal(decimal.RequireFromString("0.5")))
	assert.True(t, loaded.Balance("USD").Equal(decimal.RequireFromString("100.25")))

	raw, err := os.ReadFile(filepath.Join(dir, "portfolios.json"))
	require.NoError(t, err)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &docs))
	require.Len(t, docs, 2)
	wallets := docs[0]["wallets"].(map[string]any)
	btc := wallets["BTC"].(map[string]any)
	assert.Equal(t, "BTC", btc["currency_code"])
	assert.Equal(t, 0.5, btc["balance"])
}

func TestStore_SessionMarker(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m, err := s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, m.UserID)

	id := int64(3)
	require.NoError(t, s.SaveSession(ctx, storages.SessionMarker{UserID: &id, Username: "carol", LoggedAt: time.Now().UTC()}))
	m, err = s.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, m.UserID)
	assert.Equal(t, int64(3), *m.UserID)

	require.NoError(t, s.ClearSession(ctx))
	m, err = s.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, m.UserID)
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")
	require.NoError(t, WriteAtomic(path, map[string]int{"a": 1}))
	require.NoError(t, WriteAtomic(path, map[string]int{"a": 2}))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got map[string]int
	ok, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, got["a"])
}

func TestReadJSON_MissingFile(t *testing.T) {
	var v []int
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v)
	require.NoError(t, err)
	assert.False(t, ok)
}
