package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-admin-server/internal/models"
	"user-admin-server/internal/repo"
	"user-admin-server/internal/testutil"
)

func strPtr(s string) *string { return &s }

func setupRepo(t *testing.T) *repo.UserRepo {
	return repo.NewUserRepo(testutil.NewDB(t), 5*time.Second)
}

func newUser(email string) *models.User {
	return &models.User{
		Email:        email,
		PasswordHash: "$2a$10$fakehash",
		FirstName:    "First",
		LastName:     "Last",
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	first := newUser("a@x.com")
	require.NoError(t, r.Create(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.IsAdmin)

	err := r.Create(ctx, newUser("a@x.com"))
	assert.ErrorIs(t, err, repo.ErrDuplicateEmail)

	users, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestGetByEmailAndID(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	u := newUser("b@x.com")
	require.NoError(t, r.Create(ctx, u))

	byEmail, err := r.GetByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := r.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.com", byID.Email)

	_, err = r.GetByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = r.GetByID(ctx, u.ID+100)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdate_PartialFields(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	u := newUser("c@x.com")
	u.Avatar = strPtr("/uploads/old.png")
	require.NoError(t, r.Create(ctx, u))

	updated, err := r.Update(ctx, u.ID, repo.UserChanges{FirstName: strPtr("X")})
	require.NoError(t, err)

	assert.Equal(t, "X", updated.FirstName)
	assert.Equal(t, u.LastName, updated.LastName)
	assert.Equal(t, u.Email, updated.Email)
	assert.Equal(t, u.PasswordHash, updated.PasswordHash)
	require.NotNil(t, updated.Avatar)
	assert.Equal(t, "/uploads/old.png", *updated.Avatar)
}

func TestUpdate_Errors(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	first := newUser("d@x.com")
	second := newUser("e@x.com")
	require.NoError(t, r.Create(ctx, first))
	require.NoError(t, r.Create(ctx, second))

	_, err := r.Update(ctx, second.ID, repo.UserChanges{Email: strPtr("d@x.com")})
	assert.ErrorIs(t, err, repo.ErrDuplicateEmail)

	_, err = r.Update(ctx, 9999, repo.UserChanges{FirstName: strPtr("X")})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	unchanged, err := r.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "e@x.com", unchanged.Email)
}

func TestDelete_IDNotReused(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	u := newUser("f@x.com")
	require.NoError(t, r.Create(ctx, u))

	deleted, err := r.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	next := newUser("g@x.com")
	require.NoError(t, r.Create(ctx, next))
	assert.Greater(t, next.ID, u.ID)
}

func TestCreateIfAbsent(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	created, err := r.CreateIfAbsent(ctx, newUser("h@x.com"))
	require.NoError(t, err)
	assert.True(t, created)

	again := newUser("h@x.com")
	again.FirstName = "Other"
	created, err = r.CreateIfAbsent(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := r.GetByEmail(ctx, "h@x.com")
	require.NoError(t, err)
	assert.Equal(t, "First", stored.FirstName)
}

func TestList_InsertionOrder(t *testing.T) {
	t.Parallel()

	r := setupRepo(t)
	ctx := context.Background()

	for _, email := range []string{"z@x.com", "a@x.com", "m@x.com"} {
		require.NoError(t, r.Create(ctx, newUser(email)))
	}

	users, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "z@x.com", users[0].Email)
	assert.Equal(t, "a@x.com", users[1].Email)
	assert.Equal(t, "m@x.com", users[2].Email)
}
