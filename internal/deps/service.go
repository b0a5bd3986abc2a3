// Package deps tracks which consumer services read which config keys, so an
// impact report can answer "who breaks if this changes" before a review.
package deps

import (
	"context"
	"strings"
	"time"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
	"git.home.luguber.info/inful/confgate/internal/snapshot"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// RegisterInput declares one consumer's dependency on a config key.
type RegisterInput struct {
	Consumer string `json:"consumer"`
	Env      string `json:"env"`
	Domain   string `json:"domain"`
	Key      string `json:"key"`
	Contact  string `json:"contact,omitempty"`
}

// ImpactReport lists the consumers affected by changing one key.
type ImpactReport struct {
	Env       string              `json:"env"`
	Domain    string              `json:"domain"`
	Key       string              `json:"key"`
	KeyExists bool                `json:"key_exists"`
	Consumers []*store.Dependency `json:"consumers"`
}

// Service is the dependency registry.
type Service struct {
	store  *store.Store
	reader *snapshot.Reader
}

// NewService wires the registry over the store and snapshot reader.
func NewService(st *store.Store, reader *snapshot.Reader) *Service {
	return &Service{store: st, reader: reader}
}

// Register upserts a dependency. Registering against a key that does not
// exist yet is allowed; consumers often register before the key lands.
func (s *Service) Register(ctx context.Context, in RegisterInput) error {
	if strings.TrimSpace(in.Consumer) == "" {
		return cerrors.InvalidInput("consumer must not be empty")
	}
	env, err := gitrepo.ParseEnv(in.Env)
	if err != nil {
		return err
	}
	if in.Domain == "" || in.Key == "" {
		return cerrors.InvalidInput("domain and key must not be empty")
	}
	return s.store.UpsertDependency(ctx, &store.Dependency{
		Consumer: strings.TrimSpace(in.Consumer),
		Env:      string(env),
		Domain:   in.Domain,
		Key:      in.Key,
		Contact:  in.Contact,
	})
}

// List returns every registered dependency.
func (s *Service) List(ctx context.Context) ([]*store.Dependency, error) {
	return s.store.ListDependencies(ctx)
}

// Impact reports the consumers of one key along with whether the key
// currently exists in that environment.
func (s *Service) Impact(ctx context.Context, env gitrepo.Env, domain, key string) (*ImpactReport, error) {
	consumers, err := s.store.ConsumersOf(ctx, string(env), domain, key)
	if err != nil {
		return nil, err
	}
	report := &ImpactReport{
		Env:       string(env),
		Domain:    domain,
		Key:       key,
		Consumers: consumers,
	}
	if _, err := s.reader.Raw(ctx, env, domain, key); err == nil {
		report.KeyExists = true
	} else if !cerrors.IsKind(err, cerrors.KindNotFound) {
		return nil, err
	}
	return report, nil
}

// MarkStale flags dependencies not refreshed within the given age and returns
// how many were flagged.
func (s *Service) MarkStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.store.MarkStaleDependencies(ctx, time.Now().Add(-maxAge))
}
