package models

import "strings"

// MailConfig holds the notification addresses of one job
type MailConfig struct {
	JobID       string
	From        string
	Maintainers []string
	Users       []string
	// UserContent replaces the run log in the end-user message when set
	UserContent string
}

// SplitAddresses turns a comma separated address list into trimmed, non-empty entries
func SplitAddresses(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	parts := strings.Split(list, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}
