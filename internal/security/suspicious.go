// Package security derives the login anomaly view from the login audit log.
package security

import (
	"sort"
	"time"

	"github.com/isfo/attestation-service/internal/model"
)

const (
	// Window is the trailing period scanned for failures.
	Window = 24 * time.Hour
	// FailureThreshold is the failure count at which an email is flagged.
	FailureThreshold = 3
)

// SuspiciousActivity is derived per email and never persisted.
type SuspiciousActivity struct {
	Email          string    `json:"email"`
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	IPAddresses    []string  `json:"ip_addresses"`
}

// DetectSuspicious flags every email with at least FailureThreshold failed
// attempts strictly after now-Window. Entries are ordered by failure count
// descending, ties in order of first appearance in records.
func DetectSuspicious(records []model.LoginAudit, now time.Time) []SuspiciousActivity {
	cutoff := now.Add(-Window)

	type tally struct {
		failed int
		last   time.Time
		ips    []string
		seen   map[string]struct{}
	}
	var order []string
	byEmail := make(map[string]*tally)

	for _, rec := range records {
		if rec.Success || !rec.Timestamp.After(cutoff) {
			continue
		}
		t, ok := byEmail[rec.Email]
		if !ok {
			t = &tally{last: rec.Timestamp, seen: map[string]struct{}{}}
			byEmail[rec.Email] = t
			order = append(order, rec.Email)
		}
		t.failed++
		if rec.Timestamp.After(t.last) {
			t.last = rec.Timestamp
		}
		if _, dup := t.seen[rec.IPAddress]; !dup {
			t.seen[rec.IPAddress] = struct{}{}
			t.ips = append(t.ips, rec.IPAddress)
		}
	}

	out := make([]SuspiciousActivity, 0)
	for _, email := range order {
		t := byEmail[email]
		if t.failed < FailureThreshold {
			continue
		}
		out = append(out, SuspiciousActivity{
			Email:          email,
			FailedAttempts: t.failed,
			LastAttempt:    t.last,
			IPAddresses:    t.ips,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FailedAttempts > out[j].FailedAttempts
	})
	return out
}
