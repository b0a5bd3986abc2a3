package gitrepo

import (
	cerrors "git.home.luguber.info/inful/confgate/internal/errors"
)

// Env is a logical environment name. The set is closed; each environment maps
// to a dedicated long-lived branch.
type Env string

const (
	EnvDev     Env = "dev"
	EnvStaging Env = "staging"
	EnvProd    Env = "prod"
)

// branchForEnv maps logical environment names to branch names.
var branchForEnv = map[Env]string{
	EnvDev:     "main",
	EnvStaging: "staging",
	EnvProd:    "production",
}

// ParseEnv validates an environment name.
func ParseEnv(s string) (Env, error) {
	e := Env(s)
	if _, ok := branchForEnv[e]; !ok {
		return "", cerrors.Newf(cerrors.KindInvalidInput, "unknown environment %q (expected dev, staging, or prod)", s)
	}
	return e, nil
}

// Branch returns the repository branch backing this environment.
func (e Env) Branch() string {
	return branchForEnv[e]
}

// Environments returns the closed environment set in promotion order.
func Environments() []Env {
	return []Env{EnvDev, EnvStaging, EnvProd}
}
