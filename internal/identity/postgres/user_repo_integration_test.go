//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centledger/centledger/internal/identity/user"
	"github.com/centledger/centledger/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewIdentityDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	os.Exit(code)
}

func setupTest(t *testing.T) (*UserRepository, context.Context) {
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))
	return NewUserRepository(testDB.Pool), ctx
}

func newUser(email string) *user.User {
	now := time.Now()
	return &user.User{
		ID:           uuid.New(),
		Email:        email,
		FirstName:    "Alice",
		LastName:     "Smith",
		PasswordHash: "$2a$10$fakehashfakehashfakehash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	repo, ctx := setupTest(t)

	u := newUser("alice@example.com")
	require.NoError(t, repo.Create(ctx, u))

	byID, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)
	assert.Nil(t, byID.LastLoginAt)

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	repo, ctx := setupTest(t)

	require.NoError(t, repo.Create(ctx, newUser("alice@example.com")))

	err := repo.Create(ctx, newUser("alice@example.com"))
	assert.ErrorIs(t, err, user.ErrEmailConflict)
}

func TestUserRepository_NotFound(t *testing.T) {
	repo, ctx := setupTest(t)

	_, err := repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, user.ErrNotFound)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), user.ErrNotFound)
}

func TestUserRepository_Update(t *testing.T) {
	repo, ctx := setupTest(t)

	u := newUser("alice@example.com")
	require.NoError(t, repo.Create(ctx, u))

	u.FirstName = "Alicia"
	u.UpdateLastLogin()
	require.NoError(t, repo.Update(ctx, u))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", got.FirstName)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, time.Now(), *got.LastLoginAt, time.Minute)
}

func TestUserRepository_UpdateEmailConflict(t *testing.T) {
	repo, ctx := setupTest(t)

	require.NoError(t, repo.Create(ctx, newUser("alice@example.com")))
	bob := newUser("bob@example.com")
	require.NoError(t, repo.Create(ctx, bob))

	bob.Email = "alice@example.com"
	assert.ErrorIs(t, repo.Update(ctx, bob), user.ErrEmailConflict)
}

func TestUserRepository_ListAndDelete(t *testing.T) {
	repo, ctx := setupTest(t)

	a := newUser("alice@example.com")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, newUser("bob@example.com")))

	users, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	require.NoError(t, repo.Delete(ctx, a.ID))

	users, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
