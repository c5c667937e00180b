package problems

import (
	"os"
	"strings"
)

// Base returns the base URL for OAuth error documentation links.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://auth.example.com/errors)
// 2. BASE_PUBLIC_URL + "/errors" (if set)
// 3. empty, meaning no error_uri is emitted
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("BASE_PUBLIC_URL"); b != "" {
		return strings.TrimRight(b, "/") + "/errors"
	}
	return ""
}

// Type builds the error_uri for an OAuth error code, or "" without a base.
func Type(code string) string {
	b := Base()
	if b == "" || code == "" {
		return ""
	}
	return b + "/" + code
}
