package domain

type UserID string

// Profile is the display identity resolved from the external directory.
type Profile struct {
	ID     UserID
	Name   string
	Email  string
	Avatar string
}

// AnonymousName is the placeholder identity used both when a directory
// lookup fails and when the privacy projection hides a peer.
const AnonymousName = "Anonymous"

// AnonymousProfile returns the placeholder profile substituted for a
// failed or hidden identity lookup.
func AnonymousProfile(id UserID) Profile {
	return Profile{
		ID:   id,
		Name: AnonymousName,
	}
}
