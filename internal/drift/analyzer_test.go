package drift

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *gitrepo.Gateway) {
	t.Helper()
	gw := gitrepo.NewGateway(t.TempDir(), nil)
	require.NoError(t, gw.Init(context.Background()))
	return NewAnalyzer(gw), gw
}

func seedEnv(t *testing.T, gw *gitrepo.Gateway, env gitrepo.Env, files map[string]string) {
	t.Helper()
	require.NoError(t, gw.WithRepo(context.Background(), "seed", func(s *gitrepo.Session) error {
		require.NoError(t, s.Checkout(env.Branch()))
		for rel, content := range files {
			path := filepath.Join(s.Root(), rel)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
			require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
		}
		require.NoError(t, s.StageAll())
		_, err := s.Commit("seed", false)
		return err
	}))
}

func TestFingerprintKnownValues(t *testing.T) {
	assert.Equal(t, "0", Fingerprint(""))
	assert.Equal(t, "61", Fingerprint("a"))
	assert.Equal(t, "c21", Fingerprint("ab"))
	// The 32-bit accumulator can wrap negative; the sign is kept.
	assert.Equal(t, "-342a9777", Fingerprint("production config"))
}

func TestFingerprintStability(t *testing.T) {
	assert.Equal(t, Fingerprint("rate: 0.1\n"), Fingerprint("rate: 0.1\n"))
	assert.NotEqual(t, Fingerprint("rate: 0.1\n"), Fingerprint("rate: 0.2\n"))
}

func TestAnalyzeEmptyRepository(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Equal(t, 100, report.SyncedPercent)
	assert.Empty(t, report.Keys)
}

func TestAnalyzeClassifications(t *testing.T) {
	analyzer, gw := newTestAnalyzer(t)

	// synced: identical in all three. drifted: staging differs from prod.
	// dev-only: present only in dev. partial: dev and prod, staging missing.
	seedEnv(t, gw, gitrepo.EnvDev, map[string]string{
		"config/pricing/synced.yaml":  "rate: 0.1\n",
		"config/pricing/drifted.yaml": "rate: 0.3\n",
		"config/pricing/devonly.yaml": "flag: true\n",
		"config/pricing/partial.yaml": "v: 1\n",
	})
	seedEnv(t, gw, gitrepo.EnvStaging, map[string]string{
		"config/pricing/synced.yaml":  "rate: 0.1\n",
		"config/pricing/drifted.yaml": "rate: 0.3\n",
	})
	seedEnv(t, gw, gitrepo.EnvProd, map[string]string{
		"config/pricing/synced.yaml":  "rate: 0.1\n",
		"config/pricing/drifted.yaml": "rate: 0.2\n",
		"config/pricing/partial.yaml": "v: 1\n",
	})

	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, report.Total)

	byKey := map[string]KeyReport{}
	for _, kr := range report.Keys {
		byKey[kr.Key] = kr
	}

	assert.Equal(t, StatusSynced, byKey["synced"].Status)
	assert.Equal(t, PairSame, byKey["synced"].Pairs["dev-staging"])
	assert.Equal(t, PairSame, byKey["synced"].Pairs["staging-prod"])

	assert.Equal(t, StatusDrifted, byKey["drifted"].Status)
	assert.Equal(t, PairSame, byKey["drifted"].Pairs["dev-staging"])
	assert.Equal(t, PairDifferent, byKey["drifted"].Pairs["staging-prod"])

	assert.Equal(t, StatusDevOnly, byKey["devonly"].Status)
	assert.Equal(t, []string{"dev"}, byKey["devonly"].Environments)
	assert.Equal(t, PairMissingTarget, byKey["devonly"].Pairs["dev-staging"])
	assert.Equal(t, PairMissingSource, byKey["devonly"].Pairs["staging-prod"])

	assert.Equal(t, StatusPartial, byKey["partial"].Status)
	assert.Equal(t, PairMissingTarget, byKey["partial"].Pairs["dev-staging"])
	assert.Equal(t, PairMissingSource, byKey["partial"].Pairs["staging-prod"])

	assert.Equal(t, 1, report.Synced)
	assert.Equal(t, 1, report.Drifted)
	assert.Equal(t, 1, report.Partial)
	assert.Equal(t, 1, report.DevOnly)
	assert.Equal(t, 25, report.SyncedPercent)

	require.Contains(t, report.Domains, "pricing")
	assert.Equal(t, DomainSummary{Total: 4, Synced: 1, SyncedPercent: 25}, report.Domains["pricing"])
}

func TestAnalyzeDetectsFingerprintCollision(t *testing.T) {
	// "Aa" and "BB" hash identically under the rolling scheme. Classification
	// must still see the byte difference.
	require.Equal(t, Fingerprint("Aa"), Fingerprint("BB"))

	analyzer, gw := newTestAnalyzer(t)
	seedEnv(t, gw, gitrepo.EnvDev, map[string]string{
		"config/pricing/collide.yaml": "Aa",
	})
	seedEnv(t, gw, gitrepo.EnvStaging, map[string]string{
		"config/pricing/collide.yaml": "BB",
	})

	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Keys, 1)
	kr := report.Keys[0]
	assert.Equal(t, StatusDrifted, kr.Status)
	assert.Equal(t, PairDifferent, kr.Pairs["dev-staging"])
	assert.Equal(t, kr.Fingerprints["dev"], kr.Fingerprints["staging"])
}

func TestAnalyzePerDomainPercentages(t *testing.T) {
	analyzer, gw := newTestAnalyzer(t)
	files := map[string]string{
		"config/billing/invoice.yaml": "net: 30\n",
		"config/pricing/default.yaml": "rate: 0.1\n",
	}
	seedEnv(t, gw, gitrepo.EnvDev, files)
	seedEnv(t, gw, gitrepo.EnvStaging, files)
	seedEnv(t, gw, gitrepo.EnvProd, map[string]string{
		"config/billing/invoice.yaml": "net: 30\n",
	})

	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, report.Domains["billing"].SyncedPercent)
	assert.Equal(t, 0, report.Domains["pricing"].SyncedPercent)
	assert.Equal(t, 50, report.SyncedPercent)
}

func TestAnalyzeExcludesSentinelsAndSchema(t *testing.T) {
	analyzer, gw := newTestAnalyzer(t)
	seedEnv(t, gw, gitrepo.EnvDev, map[string]string{
		"config/pricing/default.yaml": "rate: 0.1\n",
		"config/pricing/schema.yaml":  "type: object\n",
		"config/empty/.gitkeep":       "",
	})

	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Total)
	assert.Equal(t, "default", report.Keys[0].Key)
}

func TestAnalyzeKeysSorted(t *testing.T) {
	analyzer, gw := newTestAnalyzer(t)
	seedEnv(t, gw, gitrepo.EnvDev, map[string]string{
		"config/zeta/z.yaml":  "z: 1\n",
		"config/alpha/b.yaml": "b: 1\n",
		"config/alpha/a.yaml": "a: 1\n",
	})

	report, err := analyzer.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Keys, 3)
	assert.Equal(t, "alpha", report.Keys[0].Domain)
	assert.Equal(t, "a", report.Keys[0].Key)
	assert.Equal(t, "b", report.Keys[1].Key)
	assert.Equal(t, "zeta", report.Keys[2].Domain)
}

func TestCompareBundle(t *testing.T) {
	analyzer, gw := newTestAnalyzer(t)
	seedEnv(t, gw, gitrepo.EnvDev, map[string]string{
		"config/pricing/default.yaml": "rate: 0.2\n",
	})
	seedEnv(t, gw, gitrepo.EnvStaging, map[string]string{
		"config/pricing/default.yaml": "rate: 0.1\n",
	})

	cmp, err := analyzer.Compare(context.Background(), "pricing", "default")
	require.NoError(t, err)
	require.NotNil(t, cmp.Content["dev"])
	assert.Equal(t, "rate: 0.2\n", *cmp.Content["dev"])
	require.NotNil(t, cmp.Content["staging"])
	assert.Nil(t, cmp.Content["prod"])
	assert.Equal(t, PairDifferent, cmp.Pairs["dev-staging"])
	assert.Equal(t, PairMissingTarget, cmp.Pairs["staging-prod"])
}

func TestDiffBetweenEnvironments(t *testing.T) {
	analyzer, gw := newTestAnalyzer(t)
	seedEnv(t, gw, gitrepo.EnvDev, map[string]string{
		"config/pricing/default.yaml": "rate: 0.2\n",
	})
	seedEnv(t, gw, gitrepo.EnvStaging, map[string]string{
		"config/pricing/default.yaml": "rate: 0.1\n",
	})

	pd, err := analyzer.Diff(context.Background(), "pricing", "default", gitrepo.EnvDev, gitrepo.EnvStaging)
	require.NoError(t, err)
	assert.Equal(t, PairDifferent, pd.State)
	assert.Contains(t, pd.Diff, "-rate: 0.2")
	assert.Contains(t, pd.Diff, "+rate: 0.1")
	assert.Contains(t, pd.Diff, "config/pricing/default.yaml (dev)")

	same, err := analyzer.Diff(context.Background(), "pricing", "default", gitrepo.EnvDev, gitrepo.EnvDev)
	require.NoError(t, err)
	assert.Equal(t, PairSame, same.State)
	assert.Empty(t, same.Diff)

	missing, err := analyzer.Diff(context.Background(), "pricing", "default", gitrepo.EnvStaging, gitrepo.EnvProd)
	require.NoError(t, err)
	assert.Equal(t, PairMissingTarget, missing.State)
	assert.Nil(t, missing.TargetContent)
}

func TestDiffMissingBothSides(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)
	_, err := analyzer.Diff(context.Background(), "pricing", "ghost", gitrepo.EnvDev, gitrepo.EnvProd)
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))
}

func TestCompareMissingEverywhere(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)
	_, err := analyzer.Compare(context.Background(), "pricing", "ghost")
	assert.Equal(t, cerrors.KindNotFound, cerrors.KindOf(err))
}
