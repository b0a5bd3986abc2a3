// Package snapshot is the read side of the repository gateway: current
// values, key and domain listings, historical content, and per-file history.
package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
	"git.home.luguber.info/inful/confgate/internal/gitrepo"
)

// schemaFile is reserved within a domain and excluded from key listings.
const schemaFile = "schema.yaml"

// historyLimit caps per-file history depth; pagination is deliberately not
// provided.
const historyLimit = 100

// Config is the current state of one key in one environment. Raw is always
// populated; Value is nil and ParseError set when the stored bytes do not
// parse as YAML.
type Config struct {
	Value      any    `json:"value"`
	Raw        string `json:"raw"`
	Sha        string `json:"sha"`
	ParseError string `json:"parse_error,omitempty"`
}

// HistoryEntry is one commit touching a key file.
type HistoryEntry struct {
	Sha     string    `json:"sha"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
	Type    string    `json:"type"`
}

// Reader reads configuration snapshots under the gateway lock.
type Reader struct {
	gw *gitrepo.Gateway
}

// NewReader creates a snapshot reader over the gateway.
func NewReader(gw *gitrepo.Gateway) *Reader {
	return &Reader{gw: gw}
}

// GetConfig returns the current value of a key in an environment: the parsed
// YAML value, the raw text, and the sha of the most recent commit touching
// the file. Parse failures are reported alongside the raw text, never
// swallowed.
func (r *Reader) GetConfig(ctx context.Context, env gitrepo.Env, domain, key string) (*Config, error) {
	var cfg Config
	err := r.gw.WithRepo(ctx, "get-config", func(s *gitrepo.Session) error {
		if err := s.Checkout(env.Branch()); err != nil {
			return err
		}
		raw, err := os.ReadFile(filepath.Join(s.Root(), gitrepo.ConfigDir, domain, key+".yaml"))
		if err != nil {
			if os.IsNotExist(err) {
				return cerrors.Newf(cerrors.KindNotFound, "config %s/%s not found in %s", domain, key, env)
			}
			return cerrors.IOFailure(err, "read config file")
		}
		cfg.Raw = string(raw)

		var value any
		if err := yaml.Unmarshal(raw, &value); err != nil {
			cfg.ParseError = err.Error()
		} else {
			cfg.Value = value
		}

		commits, err := s.LogFile(env.Branch(), gitrepo.KeyPath(domain, key), 1)
		if err == nil && len(commits) > 0 {
			cfg.Sha = commits[0].Sha
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Raw returns the raw bytes of a key in an environment, or not_found.
func (r *Reader) Raw(ctx context.Context, env gitrepo.Env, domain, key string) ([]byte, error) {
	var raw []byte
	err := r.gw.WithRepo(ctx, "raw-config", func(s *gitrepo.Session) error {
		if err := s.Checkout(env.Branch()); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(s.Root(), gitrepo.ConfigDir, domain, key+".yaml"))
		if err != nil {
			if os.IsNotExist(err) {
				return cerrors.Newf(cerrors.KindNotFound, "config %s/%s not found in %s", domain, key, env)
			}
			return cerrors.IOFailure(err, "read config file")
		}
		raw = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// ListKeys returns the sorted key names of a domain, excluding the .gitkeep
// sentinel and the reserved schema.yaml.
func (r *Reader) ListKeys(ctx context.Context, env gitrepo.Env, domain string) ([]string, error) {
	var keys []string
	err := r.gw.WithRepo(ctx, "list-keys", func(s *gitrepo.Session) error {
		if err := s.Checkout(env.Branch()); err != nil {
			return err
		}
		entries, err := os.ReadDir(filepath.Join(s.Root(), gitrepo.ConfigDir, domain))
		if err != nil {
			if os.IsNotExist(err) {
				return cerrors.Newf(cerrors.KindNotFound, "domain %s not found in %s", domain, env)
			}
			return cerrors.IOFailure(err, "list domain directory")
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || name == gitrepo.GitKeep || name == schemaFile {
				continue
			}
			if !strings.HasSuffix(name, ".yaml") {
				continue
			}
			keys = append(keys, strings.TrimSuffix(name, ".yaml"))
		}
		sort.Strings(keys)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// ListDomains returns the domain directory names of an environment.
func (r *Reader) ListDomains(ctx context.Context, env gitrepo.Env) ([]string, error) {
	var domains []string
	err := r.gw.WithRepo(ctx, "list-domains", func(s *gitrepo.Session) error {
		if err := s.Checkout(env.Branch()); err != nil {
			return err
		}
		entries, err := os.ReadDir(filepath.Join(s.Root(), gitrepo.ConfigDir))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return cerrors.IOFailure(err, "list config directory")
		}
		for _, entry := range entries {
			if entry.IsDir() {
				domains = append(domains, entry.Name())
			}
		}
		sort.Strings(domains)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if domains == nil {
		domains = []string{}
	}
	return domains, nil
}

// GetConfigAtCommit returns the raw file bytes at a commit via an object
// read; only the branch-restore discipline applies, no checkout.
func (r *Reader) GetConfigAtCommit(ctx context.Context, env gitrepo.Env, domain, key, sha string) ([]byte, error) {
	var raw []byte
	err := r.gw.WithRepo(ctx, "config-at-commit", func(s *gitrepo.Session) error {
		data, err := s.FileAtCommit(sha, gitrepo.KeyPath(domain, key))
		if err != nil {
			return err
		}
		raw = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// GetConfigHistory returns up to 100 most recent commits touching the key
// file, each classified by its message prefix.
func (r *Reader) GetConfigHistory(ctx context.Context, env gitrepo.Env, domain, key string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := r.gw.WithRepo(ctx, "config-history", func(s *gitrepo.Session) error {
		commits, err := s.LogFile(env.Branch(), gitrepo.KeyPath(domain, key), historyLimit)
		if err != nil {
			return err
		}
		for _, c := range commits {
			entries = append(entries, HistoryEntry{
				Sha:     c.Sha,
				Author:  c.Author,
				Date:    c.Date,
				Message: strings.TrimSpace(c.Message),
				Type:    ClassifyMessage(c.Message),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}

// ClassifyMessage derives a history entry type from a commit message prefix.
// External tooling depends on these conventions.
func ClassifyMessage(message string) string {
	msg := strings.TrimSpace(message)
	switch {
	case strings.HasPrefix(msg, "merge:") || strings.HasPrefix(msg, "merge "):
		return "merge"
	case strings.HasPrefix(msg, "promote:"):
		return "promote"
	case strings.HasPrefix(strings.ToLower(msg), "rollback"):
		return "rollback"
	default:
		return "other"
	}
}
