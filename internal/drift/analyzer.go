// Package drift compares config content across the three environment
// branches and classifies every key's sync state.
package drift

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
)

// Key sync states.
const (
	StatusSynced  = "synced"
	StatusDrifted = "drifted"
	StatusPartial = "partial"
	StatusDevOnly = "dev-only"
)

// Adjacent-pair comparison states.
const (
	PairSame          = "same"
	PairDifferent     = "different"
	PairMissingSource = "missing-source"
	PairMissingTarget = "missing-target"
)

// KeyReport is the drift state of one domain/key across environments.
type KeyReport struct {
	Domain       string            `json:"domain"`
	Key          string            `json:"key"`
	Status       string            `json:"status"`
	Environments []string          `json:"environments"`
	Pairs        map[string]string `json:"pairs"`
	Fingerprints map[string]string `json:"fingerprints"`
}

// DomainSummary aggregates sync state per domain.
type DomainSummary struct {
	Total         int `json:"total"`
	Synced        int `json:"synced"`
	SyncedPercent int `json:"synced_percent"`
}

// Report is a full drift analysis over every key in every environment.
type Report struct {
	GeneratedAt   time.Time                `json:"generated_at"`
	Keys          []KeyReport              `json:"keys"`
	Domains       map[string]DomainSummary `json:"domains"`
	Total         int                      `json:"total"`
	Synced        int                      `json:"synced"`
	Drifted       int                      `json:"drifted"`
	Partial       int                      `json:"partial"`
	DevOnly       int                      `json:"dev_only"`
	SyncedPercent int                      `json:"synced_percent"`
}

// KeyComparison is the three-way content bundle for one key. A nil entry
// means the key is absent in that environment.
type KeyComparison struct {
	Domain  string             `json:"domain"`
	Key     string             `json:"key"`
	Content map[string]*string `json:"content"`
	Pairs   map[string]string  `json:"pairs"`
}

// PairDiff is the two-sided comparison of one key between two environments.
// Nil content means the key is absent on that side.
type PairDiff struct {
	Domain        string  `json:"domain"`
	Key           string  `json:"key"`
	Source        string  `json:"source"`
	Target        string  `json:"target"`
	SourceContent *string `json:"source_content"`
	TargetContent *string `json:"target_content"`
	State         string  `json:"state"`
	Diff          string  `json:"diff,omitempty"`
}

// Analyzer runs drift analysis under the gateway.
type Analyzer struct {
	gw *gitrepo.Gateway
}

// NewAnalyzer creates a drift analyzer over the gateway.
func NewAnalyzer(gw *gitrepo.Gateway) *Analyzer {
	return &Analyzer{gw: gw}
}

// Fingerprint hashes content to a short stable token: a signed 32-bit rolling
// hash over the UTF-8 bytes, rendered in lowercase hex. Negative values keep
// their sign. Existing stored fingerprints depend on this exact scheme.
func Fingerprint(content string) string {
	var h int32
	for _, c := range []byte(content) {
		h = h<<5 - h + int32(c)
	}
	return strconv.FormatInt(int64(h), 16)
}

type keyID struct {
	domain string
	key    string
}

// Analyze walks every environment branch once, fingerprints every key, and
// classifies each against the others.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	content, err := a.collect(ctx)
	if err != nil {
		return nil, err
	}

	union := map[keyID]bool{}
	for _, byKey := range content {
		for id := range byKey {
			union[id] = true
		}
	}
	ids := make([]keyID, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].domain != ids[j].domain {
			return ids[i].domain < ids[j].domain
		}
		return ids[i].key < ids[j].key
	})

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Keys:        []KeyReport{},
		Domains:     map[string]DomainSummary{},
	}
	for _, id := range ids {
		kr := a.classify(id, content)
		report.Keys = append(report.Keys, kr)
		report.Total++
		dom := report.Domains[id.domain]
		dom.Total++
		switch kr.Status {
		case StatusSynced:
			report.Synced++
			dom.Synced++
		case StatusDrifted:
			report.Drifted++
		case StatusPartial:
			report.Partial++
		case StatusDevOnly:
			report.DevOnly++
		}
		report.Domains[id.domain] = dom
	}
	for name, dom := range report.Domains {
		dom.SyncedPercent = syncedPercent(dom.Synced, dom.Total)
		report.Domains[name] = dom
	}
	report.SyncedPercent = syncedPercent(report.Synced, report.Total)
	return report, nil
}

// Compare returns the three-way content bundle for one key. Pair states are
// derived from exact content comparison, not fingerprints.
func (a *Analyzer) Compare(ctx context.Context, domain, key string) (*KeyComparison, error) {
	cmp := &KeyComparison{
		Domain:  domain,
		Key:     key,
		Content: map[string]*string{},
		Pairs:   map[string]string{},
	}
	relPath := gitrepo.KeyPath(domain, key)
	err := a.gw.WithRepo(ctx, "drift-compare", func(s *gitrepo.Session) error {
		for _, env := range gitrepo.Environments() {
			if err := s.Checkout(env.Branch()); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(s.Root(), relPath))
			if err != nil {
				if os.IsNotExist(err) {
					cmp.Content[string(env)] = nil
					continue
				}
				return cerrors.IOFailure(err, "read config file")
			}
			text := string(data)
			cmp.Content[string(env)] = &text
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cmp.Content[string(gitrepo.EnvDev)] == nil &&
		cmp.Content[string(gitrepo.EnvStaging)] == nil &&
		cmp.Content[string(gitrepo.EnvProd)] == nil {
		return nil, cerrors.Newf(cerrors.KindNotFound, "config %s/%s not found in any environment", domain, key)
	}
	for _, pair := range adjacentPairs() {
		cmp.Pairs[pairLabel(pair[0], pair[1])] = comparePair(
			cmp.Content[string(pair[0])], cmp.Content[string(pair[1])])
	}
	return cmp, nil
}

// Diff compares one key between two environments and renders a unified diff,
// source side first. A key missing in both environments is not_found.
func (a *Analyzer) Diff(ctx context.Context, domain, key string, source, target gitrepo.Env) (*PairDiff, error) {
	pd := &PairDiff{
		Domain: domain,
		Key:    key,
		Source: string(source),
		Target: string(target),
	}
	relPath := gitrepo.KeyPath(domain, key)
	err := a.gw.WithRepo(ctx, "drift-diff", func(s *gitrepo.Session) error {
		for _, side := range []struct {
			env     gitrepo.Env
			content **string
		}{
			{source, &pd.SourceContent},
			{target, &pd.TargetContent},
		} {
			if err := s.Checkout(side.env.Branch()); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(s.Root(), relPath))
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return cerrors.IOFailure(err, "read config file")
			}
			text := string(data)
			*side.content = &text
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pd.SourceContent == nil && pd.TargetContent == nil {
		return nil, cerrors.Newf(cerrors.KindNotFound,
			"config %s/%s not found in %s or %s", domain, key, source, target)
	}
	pd.State = comparePair(pd.SourceContent, pd.TargetContent)
	if pd.State != PairSame {
		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(deref(pd.SourceContent)),
			B:        difflib.SplitLines(deref(pd.TargetContent)),
			FromFile: relPath + " (" + string(source) + ")",
			ToFile:   relPath + " (" + string(target) + ")",
			Context:  3,
		})
		if err != nil {
			return nil, cerrors.Internal(err, "render diff")
		}
		pd.Diff = diff
	}
	return pd, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// collect reads every key file in every environment in a single session.
func (a *Analyzer) collect(ctx context.Context) (map[gitrepo.Env]map[keyID]string, error) {
	content := map[gitrepo.Env]map[keyID]string{}
	err := a.gw.WithRepo(ctx, "drift-scan", func(s *gitrepo.Session) error {
		for _, env := range gitrepo.Environments() {
			if err := s.Checkout(env.Branch()); err != nil {
				return err
			}
			byKey := map[keyID]string{}
			configDir := filepath.Join(s.Root(), gitrepo.ConfigDir)
			domains, err := os.ReadDir(configDir)
			if err != nil {
				if os.IsNotExist(err) {
					content[env] = byKey
					continue
				}
				return cerrors.IOFailure(err, "list config directory")
			}
			for _, dom := range domains {
				if !dom.IsDir() {
					continue
				}
				files, err := os.ReadDir(filepath.Join(configDir, dom.Name()))
				if err != nil {
					return cerrors.IOFailure(err, "list domain directory")
				}
				for _, f := range files {
					name := f.Name()
					if f.IsDir() || name == gitrepo.GitKeep || name == "schema.yaml" ||
						!strings.HasSuffix(name, ".yaml") {
						continue
					}
					data, err := os.ReadFile(filepath.Join(configDir, dom.Name(), name))
					if err != nil {
						return cerrors.IOFailure(err, "read config file")
					}
					byKey[keyID{dom.Name(), strings.TrimSuffix(name, ".yaml")}] = string(data)
				}
			}
			content[env] = byKey
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (a *Analyzer) classify(id keyID, content map[gitrepo.Env]map[keyID]string) KeyReport {
	kr := KeyReport{
		Domain:       id.domain,
		Key:          id.key,
		Environments: []string{},
		Pairs:        map[string]string{},
		Fingerprints: map[string]string{},
	}
	present := map[gitrepo.Env]bool{}
	for _, env := range gitrepo.Environments() {
		text, ok := content[env][id]
		if !ok {
			continue
		}
		present[env] = true
		kr.Environments = append(kr.Environments, string(env))
		kr.Fingerprints[string(env)] = Fingerprint(text)
	}

	// Equality is decided on the content bytes; fingerprints are display-only
	// and may collide.
	drifted := false
	for _, pair := range adjacentPairs() {
		source, target := pair[0], pair[1]
		var state string
		switch {
		case !present[source]:
			state = PairMissingSource
		case !present[target]:
			state = PairMissingTarget
		case content[source][id] == content[target][id]:
			state = PairSame
		default:
			state = PairDifferent
			drifted = true
		}
		kr.Pairs[pairLabel(source, target)] = state
	}

	switch {
	case present[gitrepo.EnvDev] && !present[gitrepo.EnvStaging] && !present[gitrepo.EnvProd]:
		kr.Status = StatusDevOnly
	case len(present) == 3 && !drifted:
		kr.Status = StatusSynced
	case drifted:
		kr.Status = StatusDrifted
	default:
		kr.Status = StatusPartial
	}
	return kr
}

func adjacentPairs() [][2]gitrepo.Env {
	return [][2]gitrepo.Env{
		{gitrepo.EnvDev, gitrepo.EnvStaging},
		{gitrepo.EnvStaging, gitrepo.EnvProd},
	}
}

func pairLabel(source, target gitrepo.Env) string {
	return string(source) + "-" + string(target)
}

func comparePair(source, target *string) string {
	switch {
	case source == nil:
		return PairMissingSource
	case target == nil:
		return PairMissingTarget
	case *source == *target:
		return PairSame
	default:
		return PairDifferent
	}
}

func syncedPercent(synced, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(synced) / float64(total)))
}
