package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/store"
)

func newTestService(t *testing.T, ttl time.Duration) *Service {
	t.Helper()
	st, err := store.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, "test-secret", ttl)
}

func TestLoginAndVerify(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "correct horse", store.RoleEditor)
	require.NoError(t, err)

	token, identity, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, store.RoleEditor, identity.Role)

	verified, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, identity, verified)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "correct horse", store.RoleEditor)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	wrongPass := err
	assert.Equal(t, cerrors.KindUnauthenticated, cerrors.KindOf(err))

	_, _, err = svc.Login(ctx, "mallory", "wrong")
	assert.Equal(t, cerrors.KindUnauthenticated, cerrors.KindOf(err))
	assert.Equal(t, wrongPass.Error(), err.Error(), "unknown user and bad password are indistinguishable")
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t, -time.Minute)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "correct horse", store.RoleEditor)
	require.NoError(t, err)

	token, _, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.Equal(t, cerrors.KindUnauthenticated, cerrors.KindOf(err))
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "alice", "correct horse", store.RoleEditor)
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "alice", "correct horse")
	require.NoError(t, err)

	otherKey := NewService(svc.store, "different-secret", time.Hour)
	_, err = otherKey.Verify(token)
	assert.Equal(t, cerrors.KindUnauthenticated, cerrors.KindOf(err))
}

func TestCreateUserValidation(t *testing.T) {
	svc := newTestService(t, time.Hour)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "", "longenough", store.RoleViewer)
	assert.Equal(t, cerrors.KindInvalidInput, cerrors.KindOf(err))

	_, err = svc.CreateUser(ctx, "bob", "short", store.RoleViewer)
	assert.Equal(t, cerrors.KindInvalidInput, cerrors.KindOf(err))

	_, err = svc.CreateUser(ctx, "bob", "longenough", "superuser")
	assert.Equal(t, cerrors.KindInvalidInput, cerrors.KindOf(err))

	_, err = svc.CreateUser(ctx, "bob", "longenough", store.RoleViewer)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "bob", "longenough", store.RoleViewer)
	assert.Equal(t, cerrors.KindStateConflict, cerrors.KindOf(err))
}

func TestRoleHelpers(t *testing.T) {
	assert.True(t, Identity{Role: store.RoleAdmin}.IsAdmin())
	assert.True(t, Identity{Role: store.RoleAdmin}.CanEdit())
	assert.True(t, Identity{Role: store.RoleEditor}.CanEdit())
	assert.False(t, Identity{Role: store.RoleViewer}.CanEdit())
	assert.False(t, Identity{Role: store.RoleViewer}.IsAdmin())
}
