package store

import "fmt"

// Status is the review lifecycle state of an action item.
//
// The machine is forward-only:
//
//	pending_review → approved → created
//	pending_review → rejected
//
// rejected and created are terminal.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCreated       Status = "created"
)

// allStatuses in display order.
var allStatuses = []Status{
	StatusPendingReview,
	StatusApproved,
	StatusRejected,
	StatusCreated,
}

// IsValid reports whether s is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusRejected, StatusCreated:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown status: %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether the lifecycle permits moving from s to
// next. Terminal states permit nothing.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPendingReview:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusCreated
	}
	return false
}

// Priority levels for action items.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// NormalizePriority maps arbitrary extractor output onto the known
// priority set, defaulting to Medium.
func NormalizePriority(p string) string {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p
	}
	return PriorityMedium
}
