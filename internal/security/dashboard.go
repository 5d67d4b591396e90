package security

import (
	"strings"
	"time"

	"github.com/mssola/useragent"

	"github.com/isfo/attestation-service/internal/model"
)

// Entry is a login audit row joined with the signer's display name.
type Entry struct {
	model.LoginAudit
	StudentFirstName string `json:"student_first_name,omitempty"`
	StudentLastName  string `json:"student_last_name,omitempty"`
	StaffName        string `json:"admin_profile_name,omitempty"`
}

// DisplayName returns whichever name the row was enriched with.
func (e Entry) DisplayName() string {
	if e.StaffName != "" {
		return e.StaffName
	}
	return strings.TrimSpace(e.StudentFirstName + " " + e.StudentLastName)
}

// Stats summarizes the scanned window.
type Stats struct {
	Total      int `json:"total_logins"`
	Successful int `json:"successful_logins"`
	Failed     int `json:"failed_logins"`
	Suspicious int `json:"suspicious_activities"`
}

// ComputeStats counts rows by outcome.
func ComputeStats(records []model.LoginAudit, suspicious []SuspiciousActivity) Stats {
	s := Stats{Total: len(records), Suspicious: len(suspicious)}
	for _, r := range records {
		if r.Success {
			s.Successful++
		}
	}
	s.Failed = s.Total - s.Successful
	return s
}

// Enrich attaches names. students maps lowercased email to {first, last};
// staff maps lowercased email to display name. Student rows only take
// student names and admin rows only take staff names.
func Enrich(records []model.LoginAudit, students map[string][2]string, staff map[string]string) []Entry {
	out := make([]Entry, len(records))
	for i, r := range records {
		e := Entry{LoginAudit: r}
		key := strings.ToLower(r.Email)
		switch r.UserType {
		case model.UserTypeStudent:
			if n, ok := students[key]; ok {
				e.StudentFirstName, e.StudentLastName = n[0], n[1]
			}
		case model.UserTypeAdmin:
			e.StaffName = staff[key]
		}
		out[i] = e
	}
	return out
}

// EmailsByType splits the distinct emails of records by user type, in first
// seen order.
func EmailsByType(records []model.LoginAudit) (students, admins []string) {
	seen := map[string]struct{}{}
	for _, r := range records {
		key := string(r.UserType) + "|" + strings.ToLower(r.Email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		switch r.UserType {
		case model.UserTypeStudent:
			students = append(students, r.Email)
		case model.UserTypeAdmin:
			admins = append(admins, r.Email)
		}
	}
	return students, admins
}

// Filter selects dashboard rows. Zero fields match everything.
type Filter struct {
	Search   string
	Date     time.Time
	UserType model.UserType
}

// Apply returns the entries that pass every set criterion.
func (f Filter) Apply(entries []Entry) []Entry {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if search != "" && !matchesSearch(e, search) {
			continue
		}
		if !f.Date.IsZero() && !sameDay(e.Timestamp, f.Date) {
			continue
		}
		if f.UserType != "" && e.UserType != f.UserType {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesSearch(e Entry, needle string) bool {
	for _, field := range []string{e.StudentFirstName, e.StudentLastName, e.StaffName, e.Email, e.IPAddress} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// DeviceInfo summarizes a user agent as "Browser version on OS".
func DeviceInfo(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "Inconnu"
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		name, _ := parsed.Browser()
		return "Bot " + name
	}
	name, version := parsed.Browser()
	if major, _, found := strings.Cut(version, "."); found {
		version = major
	}
	info := strings.TrimSpace(name + " " + version)
	if osName := parsed.OSInfo().Name; osName != "" {
		info += " on " + osName
	}
	if parsed.Mobile() {
		info += " (mobile)"
	}
	return info
}

// UserTypeLabel is the French label used in exports.
func UserTypeLabel(t model.UserType) string {
	if t == model.UserTypeStudent {
		return "Étudiant"
	}
	return "Admin"
}
