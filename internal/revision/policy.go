// Package revision governs the free and paid revision cycle of a request.
package revision

import "github.com/router-for-me/CreditEngine/internal/models"

// Policy is the revision pricing in force for one decision.
type Policy struct {
	MaxFree     int
	PaidCost    int
	ResetOnPaid bool
}

// LivePolicy reads the revision policy from the service type as it is now.
// Admin edits therefore apply to revisions on requests created earlier.
// Switching to prices captured at request creation means changing only this.
func LivePolicy(st *models.ServiceType) Policy {
	if st == nil {
		return Policy{}
	}
	p := Policy{
		MaxFree:     st.MaxFreeRevisions,
		PaidCost:    st.PaidRevisionCost,
		ResetOnPaid: st.ResetFreeRevisionsOnPaid,
	}
	if p.MaxFree < 0 {
		p.MaxFree = 0
	}
	if p.PaidCost < 0 {
		p.PaidCost = 0
	}
	return p
}

// Decision is the priced outcome of requesting the next revision.
type Decision struct {
	Free      bool
	Cost      int
	NextCount int
	Reset     bool
}

// Decide prices the next revision for a request that has used count free revisions.
// When paid and not resetting, the counter stays at its exhausted value.
func Decide(count int, p Policy) Decision {
	if count < 0 {
		count = 0
	}
	if count < p.MaxFree {
		return Decision{Free: true, NextCount: count + 1}
	}
	next := count
	if p.ResetOnPaid {
		next = 0
	}
	return Decision{Cost: p.PaidCost, NextCount: next, Reset: p.ResetOnPaid}
}

// FreeRemaining returns how many free revisions are left at count.
func FreeRemaining(count int, p Policy) int {
	if count < 0 {
		count = 0
	}
	if left := p.MaxFree - count; left > 0 {
		return left
	}
	return 0
}
