package domain

import "time"

type MembershipID string

// Membership is an explicit, revocable grant of viewer or editor access to a
// non-owner user for one document. At most one row exists per
// (DocumentID, UserID) pair; invites upsert into the existing row.
type Membership struct {
	ID         MembershipID
	DocumentID DocumentID
	UserID     UserID
	Email      string
	Role       Role
	GrantedAt  time.Time
}
