package config

import "strings"

// Domains holds the control endpoint base address of each environment.
type Domains struct {
	Dev       string
	Release   string
	CNDev     string
	CNRelease string
}

// Resolve maps an environment name to a control endpoint base.
// Names containing "prod" select the release domain (the CN release domain when
// the name also contains "cn"); names containing only "cn" select CN dev;
// everything else selects dev. Matching is case-insensitive.
func (d Domains) Resolve(environment string) string {
	env := strings.ToLower(environment)
	isProd := strings.Contains(env, "prod")
	isCN := strings.Contains(env, "cn")

	switch {
	case isProd && isCN:
		return d.CNRelease
	case isProd:
		return d.Release
	case isCN:
		return d.CNDev
	default:
		return d.Dev
	}
}
