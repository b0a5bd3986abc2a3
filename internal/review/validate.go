package review

import (
	"regexp"

	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

// nameRe bounds domain and key names: they become directory and file names
// inside the repository, so path separators and leading dots are out.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// reserved key names that collide with repository sentinels.
var reservedKeys = map[string]bool{
	"schema":   true,
	".gitkeep": true,
}

func validateDomain(domain string) error {
	if !nameRe.MatchString(domain) {
		return cerrors.Newf(cerrors.KindInvalidInput, "invalid domain name %q", domain)
	}
	return nil
}

func validateKey(key string) error {
	if !nameRe.MatchString(key) {
		return cerrors.Newf(cerrors.KindInvalidInput, "invalid config key %q", key)
	}
	if reservedKeys[key] {
		return cerrors.Newf(cerrors.KindInvalidInput, "config key %q is reserved", key)
	}
	return nil
}
