package entity

import "time"

// Record is the single pending code of an identity. Only the keyed digest of
// the code is kept.
type Record struct {
	Identity   string
	CodeDigest string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Consumed   bool
}

// ExpiredAt reports whether the record is no longer usable at now. The
// boundary instant counts as expired.
func (r Record) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// SameIssue reports whether o is the same issuance as r, i.e. it was not
// superseded by a later Put.
func (r Record) SameIssue(o Record) bool {
	return r.Identity == o.Identity &&
		r.CodeDigest == o.CodeDigest &&
		r.CreatedAt.Equal(o.CreatedAt)
}

// Delivery is what a notifier needs to hand a fresh code to its owner.
type Delivery struct {
	Identity  string
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}
