package rollback

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/promotion"
)

func newTestEngine(t *testing.T) (*Engine, *gitrepo.Gateway) {
	t.Helper()
	gw := gitrepo.NewGateway(t.TempDir(), nil)
	require.NoError(t, gw.Init(context.Background()))
	return NewEngine(gw), gw
}

func commitFiles(t *testing.T, gw *gitrepo.Gateway, env gitrepo.Env, message string, files map[string]string) string {
	t.Helper()
	var sha string
	require.NoError(t, gw.WithRepo(context.Background(), "seed", func(s *gitrepo.Session) error {
		require.NoError(t, s.Checkout(env.Branch()))
		for rel, content := range files {
			path := filepath.Join(s.Root(), rel)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
			require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
		}
		require.NoError(t, s.StageAll())
		var err error
		sha, err = s.Commit(message, false)
		return err
	}))
	return sha
}

func readOnBranch(t *testing.T, gw *gitrepo.Gateway, env gitrepo.Env, rel string) (string, bool) {
	t.Helper()
	var content string
	var found bool
	require.NoError(t, gw.WithRepo(context.Background(), "probe", func(s *gitrepo.Session) error {
		require.NoError(t, s.Checkout(env.Branch()))
		if data, err := os.ReadFile(filepath.Join(s.Root(), rel)); err == nil {
			content = string(data)
			found = true
		}
		return nil
	}))
	return content, found
}

func headMessage(t *testing.T, gw *gitrepo.Gateway, env gitrepo.Env) string {
	t.Helper()
	var message string
	require.NoError(t, gw.WithRepo(context.Background(), "probe", func(s *gitrepo.Session) error {
		require.NoError(t, s.Checkout(env.Branch()))
		head, err := s.HeadCommit()
		require.NoError(t, err)
		message = head.Message
		return nil
	}))
	return strings.TrimSpace(message)
}

func TestRollbackFileRestoresOldContent(t *testing.T) {
	engine, gw := newTestEngine(t)
	ctx := context.Background()

	v1 := commitFiles(t, gw, gitrepo.EnvDev, "v1", map[string]string{
		"config/pricing/default.yaml": "rate: 0.1\n",
	})
	commitFiles(t, gw, gitrepo.EnvDev, "v2", map[string]string{
		"config/pricing/default.yaml": "rate: 0.2\n",
	})

	sha, err := engine.RollbackFile(ctx, gitrepo.EnvDev, "pricing", "default", v1, "bad rate")
	require.NoError(t, err)
	assert.NotEmpty(t, sha)

	content, found := readOnBranch(t, gw, gitrepo.EnvDev, "config/pricing/default.yaml")
	require.True(t, found)
	assert.Equal(t, "rate: 0.1\n", content)

	message := headMessage(t, gw, gitrepo.EnvDev)
	assert.Equal(t, "rollback: pricing/default in dev to "+v1[:7]+" — bad rate", message)
}

func TestRollbackFileUnknownCommit(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.RollbackFile(context.Background(), gitrepo.EnvDev, "pricing", "default",
		"deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", "nope")
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))
}

func TestRollbackFileNotPresentAtCommit(t *testing.T) {
	engine, gw := newTestEngine(t)
	sha := commitFiles(t, gw, gitrepo.EnvDev, "seed", map[string]string{
		"config/pricing/default.yaml": "rate: 0.1\n",
	})

	_, err := engine.RollbackFile(context.Background(), gitrepo.EnvDev, "pricing", "other", sha, "nope")
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))
}

func TestRollbackPromotionRestoresAndRemoves(t *testing.T) {
	engine, gw := newTestEngine(t)
	ctx := context.Background()

	// Staging starts with an older default; dev carries a newer default plus a
	// brand-new key.
	commitFiles(t, gw, gitrepo.EnvStaging, "staging v1", map[string]string{
		"config/pricing/default.yaml": "rate: 0.1\n",
	})
	commitFiles(t, gw, gitrepo.EnvDev, "dev v2", map[string]string{
		"config/pricing/default.yaml": "rate: 0.2\n",
		"config/pricing/premium.yaml": "rate: 0.5\n",
	})

	promo := promotion.NewEngine(gw)
	promoSha, err := promo.Execute(ctx, promotion.Request{
		ID:     "ab12cd34",
		Source: gitrepo.EnvDev,
		Target: gitrepo.EnvStaging,
		Domain: "pricing",
		Files:  []string{"default", "premium"},
	})
	require.NoError(t, err)

	sha, err := engine.RollbackPromotion(ctx, "ab12cd34", gitrepo.EnvStaging, "pricing",
		[]string{"default", "premium"}, promoSha, "regression")
	require.NoError(t, err)
	assert.NotEmpty(t, sha)

	content, found := readOnBranch(t, gw, gitrepo.EnvStaging, "config/pricing/default.yaml")
	require.True(t, found)
	assert.Equal(t, "rate: 0.1\n", content, "pre-promotion content restored")

	_, found = readOnBranch(t, gw, gitrepo.EnvStaging, "config/pricing/premium.yaml")
	assert.False(t, found, "file introduced by the promotion is removed")

	assert.Equal(t, "rollback promotion ab12cd34: regression", headMessage(t, gw, gitrepo.EnvStaging))
}

func TestRollbackPromotionRootCommit(t *testing.T) {
	engine, gw := newTestEngine(t)

	var root string
	require.NoError(t, gw.WithRepo(context.Background(), "probe", func(s *gitrepo.Session) error {
		require.NoError(t, s.Checkout(gitrepo.EnvDev.Branch()))
		var err error
		root, err = s.Head()
		return err
	}))

	_, err := engine.RollbackPromotion(context.Background(), "x", gitrepo.EnvDev, "pricing",
		[]string{"default"}, root, "nope")
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))
}
