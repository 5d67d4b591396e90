package requests

import (
	"time"

	"github.com/isfo/attestation-service/internal/model"
)

// Statistics is the admin dashboard summary.
type Statistics struct {
	Total             int            `json:"total"`
	Pending           int            `json:"pending"`
	Approved          int            `json:"approved"`
	Rejected          int            `json:"rejected"`
	Today             int            `json:"today"`
	ThisWeek          int            `json:"this_week"`
	ThisMonth         int            `json:"this_month"`
	AvgProcessingDays float64        `json:"avg_processing_days"`
	ByGroup           map[string]int `json:"by_group"`
}

// ComputeStatistics counts requests relative to now. Day and month buckets
// use UTC calendar boundaries; the week bucket is the trailing 7 days.
// Processing time for approved requests is measured from creation to now.
func ComputeStatistics(reqs []model.AttestationRequest, now time.Time) Statistics {
	now = now.UTC()
	st := Statistics{Total: len(reqs), ByGroup: map[string]int{}}
	weekAgo := now.AddDate(0, 0, -7)
	var approvedDays float64

	for _, r := range reqs {
		created := r.CreatedAt.UTC()
		switch r.Status {
		case model.StatusPending:
			st.Pending++
		case model.StatusApproved:
			st.Approved++
			approvedDays += now.Sub(created).Hours() / 24
		case model.StatusRejected:
			st.Rejected++
		}
		if created.Year() == now.Year() && created.YearDay() == now.YearDay() {
			st.Today++
		}
		if !created.Before(weekAgo) {
			st.ThisWeek++
		}
		if created.Year() == now.Year() && created.Month() == now.Month() {
			st.ThisMonth++
		}
		st.ByGroup[r.Group]++
	}
	if st.Approved > 0 {
		st.AvgProcessingDays = approvedDays / float64(st.Approved)
	}
	return st
}
