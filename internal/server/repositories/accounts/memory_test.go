package accounts

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.Account{Email: "Ann@Example.com", PasswordlessKey: "pk"})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	assert.Equal(t, "ann@example.com", a.Email)

	byEmail, err := r.FindByEmail(ctx, "ANN@EXAMPLE.COM")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)

	byKey, err := r.FindByKey(ctx, models.PasswordlessKey, "pk")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byKey.ID)

	byID, err := r.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Email, byID.Email)

	_, err = r.Create(ctx, &models.Account{Email: "ann@example.com "})
	require.ErrorIs(t, err, common.ErrEmailTaken)

	_, err = r.FindByKey(ctx, models.OneTimeAuthenticationKey, "")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemoryRepository_LastMatchWins(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	first, err := r.Create(ctx, &models.Account{Email: "a@b.com", PasswordResetKey: "shared"})
	require.NoError(t, err)
	second, err := r.Create(ctx, &models.Account{Email: "c@d.com", PasswordResetKey: "shared"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	got, err := r.FindByKey(ctx, models.PasswordResetKey, "shared")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.Account{Email: "a@b.com", FirstName: "Ann"})
	require.NoError(t, err)
	a.FirstName = "changed"

	got, err := r.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FirstName)
}

func TestMemoryRepository_Update(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	joined := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a, err := r.Create(ctx, &models.Account{Email: "a@b.com", LastName: "Lee", DateJoined: joined})
	require.NoError(t, err)
	_, err = r.Create(ctx, &models.Account{Email: "taken@b.com"})
	require.NoError(t, err)

	first := "Ann"
	require.NoError(t, r.Update(ctx, a.ID, Changes{FirstName: &first}))

	got, err := r.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FirstName)
	assert.Equal(t, "Lee", got.LastName)
	assert.Equal(t, joined, got.DateJoined)

	email := "New@B.com"
	require.NoError(t, r.Update(ctx, a.ID, Changes{Email: &email}))
	got, err = r.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "new@b.com", got.Email)

	taken := "TAKEN@b.com"
	require.ErrorIs(t, r.Update(ctx, a.ID, Changes{Email: &taken}), common.ErrEmailTaken)

	require.ErrorIs(t, r.Update(ctx, "missing", Changes{FirstName: &first}), common.ErrorNotFound)
}

func TestMemoryRepository_UpdateLeavesKeysAlone(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.Account{Email: "a@b.com", PasswordlessKey: "pk", OneTimeAuthenticationKey: "otk1"})
	require.NoError(t, err)

	won, err := r.RotateKey(ctx, a.ID, models.OneTimeAuthenticationKey, "otk1", "otk2")
	require.NoError(t, err)
	require.True(t, won)

	hash := "h"
	active := false
	require.NoError(t, r.Update(ctx, a.ID, Changes{PasswordHash: &hash, IsActive: &active}))

	got, err := r.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "otk2", got.OneTimeAuthenticationKey)
	assert.Equal(t, "pk", got.PasswordlessKey)
	assert.Equal(t, "h", got.PasswordHash)
	assert.False(t, got.IsActive)
}

func TestMemoryRepository_KeyExistsAndRotate(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.Account{Email: "a@b.com", OneTimeAuthenticationKey: "old"})
	require.NoError(t, err)

	exists, err := r.KeyExists(ctx, models.OneTimeAuthenticationKey, "old")
	require.NoError(t, err)
	assert.True(t, exists)

	won, err := r.RotateKey(ctx, a.ID, models.OneTimeAuthenticationKey, "old", "new")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = r.RotateKey(ctx, a.ID, models.OneTimeAuthenticationKey, "old", "other")
	require.NoError(t, err)
	assert.False(t, won)

	exists, err = r.KeyExists(ctx, models.OneTimeAuthenticationKey, "old")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = r.KeyExists(ctx, models.KeyField("email"), "x")
	require.Error(t, err)
}

func TestMemoryRepository_ConcurrentRotationHasOneWinner(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	a, err := r.Create(ctx, &models.Account{Email: "a@b.com", OneTimeAuthenticationKey: "old"})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := r.RotateKey(ctx, a.ID, models.OneTimeAuthenticationKey, "old", string(rune('a'+i)))
			if err == nil && won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
