package utils

import (
	"strings"

	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}
	return slug.Make(text)
}

// SubjectToken turns a job id into a single NATS subject token. Dots,
// wildcards and whitespace never survive slugging, so the token cannot
// split or widen a subject.
func SubjectToken(jobID string) string {
	token := NormalizeSlug(jobID)
	if token == "" {
		return "unknown"
	}
	return token
}

// JoinSubject builds a dotted subject from tokens, skipping empty ones
func JoinSubject(tokens ...string) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ".")
}
