package deps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
)

func newTestService(t *testing.T) (*Service, *gitrepo.Gateway) {
	t.Helper()
	gw := gitrepo.NewGateway(t.TempDir(), nil)
	require.NoError(t, gw.Init(context.Background()))
	st, err := store.New(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, snapshot.NewReader(gw)), gw
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Register(ctx, RegisterInput{Consumer: " ", Env: "dev", Domain: "d", Key: "k"})
	assert.Equal(t, cerrors.KindInvalidInput, cerrors.KindOf(err))

	err = svc.Register(ctx, RegisterInput{Consumer: "svc", Env: "qa", Domain: "d", Key: "k"})
	assert.Equal(t, cerrors.KindInvalidInput, cerrors.KindOf(err))

	err = svc.Register(ctx, RegisterInput{Consumer: "svc", Env: "dev", Domain: "", Key: "k"})
	assert.Equal(t, cerrors.KindInvalidInput, cerrors.KindOf(err))

	require.NoError(t, svc.Register(ctx, RegisterInput{
		Consumer: "checkout-svc", Env: "prod", Domain: "pricing", Key: "default"}))
}

func TestImpactReport(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{
		Consumer: "checkout-svc", Env: "prod", Domain: "pricing", Key: "default",
		Contact: "team-payments"}))
	require.NoError(t, svc.Register(ctx, RegisterInput{
		Consumer: "billing-svc", Env: "prod", Domain: "pricing", Key: "default"}))
	require.NoError(t, svc.Register(ctx, RegisterInput{
		Consumer: "other-svc", Env: "dev", Domain: "pricing", Key: "default"}))

	// Key does not exist yet: impact still reports the consumers.
	report, err := svc.Impact(ctx, gitrepo.EnvProd, "pricing", "default")
	require.NoError(t, err)
	assert.False(t, report.KeyExists)
	assert.Len(t, report.Consumers, 2, "only consumers in the requested environment")

	require.NoError(t, gw.WithRepo(ctx, "seed", func(s *gitrepo.Session) error {
		require.NoError(t, s.Checkout(gitrepo.EnvProd.Branch()))
		dir := filepath.Join(s.Root(), "config", "pricing")
		require.NoError(t, os.MkdirAll(dir, 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("rate: 0.1\n"), 0o640))
		require.NoError(t, s.StageAll())
		_, err := s.Commit("seed", false)
		return err
	}))

	report, err = svc.Impact(ctx, gitrepo.EnvProd, "pricing", "default")
	require.NoError(t, err)
	assert.True(t, report.KeyExists)
}

func TestMarkStale(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{
		Consumer: "checkout-svc", Env: "prod", Domain: "pricing", Key: "default"}))

	flagged, err := svc.MarkStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, flagged, "fresh registrations stay")

	flagged, err = svc.MarkStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, flagged)
}
