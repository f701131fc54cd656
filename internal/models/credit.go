package models

import "time"

// Package is a prepaid allotment of lessons with an expiry date. Mutated only
// by the credit ledger; remaining + used always equals total.
type Package struct {
	ID               string    `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	TotalLessons     int       `db:"total_lessons" json:"total_lessons"`
	UsedLessons      int       `db:"used_lessons" json:"used_lessons"`
	RemainingLessons int       `db:"remaining_lessons" json:"remaining_lessons"`
	ValidUntil       time.Time `db:"valid_until" json:"valid_until"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Usable reports whether the package can cover a new lesson at the given
// instant.
func (p Package) Usable(now time.Time) bool {
	return p.RemainingLessons > 0 && !p.ValidUntil.Before(now)
}
