// Fleetglass - EVE Online Fleet Activity Mirror
// Copyright 2026 Arkonor Collective
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arkonor/fleetglass

package config

import "strings"

// sectionPrefixes are the environment variable prefixes that map into config
// sections. Anything else in the environment is ignored.
var sectionPrefixes = []string{
	"SERVER_",
	"ESI_",
	"POLLER_",
	"SESSIONS_",
	"CACHE_",
	"DATABASE_",
	"SECURITY_",
	"LOGGING_",
}

// envTransform maps environment variable names to koanf paths:
//
//	ESI_USER_AGENT            -> esi.user_agent
//	SECURITY_RATE_LIMIT_REQS  -> security.rate_limit_reqs
//
// The section name is everything before the first underscore; the rest is the
// field name within that section. Returning "" skips the variable.
func envTransform(name string) string {
	matched := false
	for _, prefix := range sectionPrefixes {
		if strings.HasPrefix(name, prefix) {
			matched = true
			break
		}
	}
	if !matched {
		return ""
	}

	lower := strings.ToLower(name)
	section, field, ok := strings.Cut(lower, "_")
	if !ok || field == "" {
		return ""
	}
	return section + "." + field
}
