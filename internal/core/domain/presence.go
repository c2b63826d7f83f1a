package domain

type ConnectionID string

// Cursor is an integer pointer position on the tracked surface.
// A nil *Cursor means the pointer has left the surface or the connection
// has not finished its join handshake.
type Cursor struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UserInfo is the display identity attached to a presence record.
type UserInfo struct {
	UserID UserID `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
	Color  string `json:"color"`
}

// PresenceRecord is the ephemeral state of one live connection. A user with
// several open tabs holds several records, one per connection. Records are
// never persisted and never outlive their connection.
type PresenceRecord struct {
	ConnectionID ConnectionID `json:"connection_id"`
	Cursor       *Cursor      `json:"cursor"`
	IsEditing    bool         `json:"is_editing"`
	UserInfo     UserInfo     `json:"user_info"`
}

// CursorPalette is the fixed set of presence colors. Color assignment must be
// reproducible across processes and reconnects, so the palette is ordered and
// indexing into it is a pure function of the user id.
var CursorPalette = []string{
	"#ef4444",
	"#3b82f6",
	"#10b981",
	"#f59e0b",
	"#8b5cf6",
	"#ec4899",
	"#6366f1",
	"#f97316",
}

// ColorFor assigns a palette color to a user with a polynomial rolling hash.
// Same user id, same color, on every process and every connection.
func ColorFor(userID UserID) string {
	var h int32
	for _, c := range userID {
		h = int32(c) + (h << 5) - h
	}
	if h < 0 {
		h = -h
	}
	return CursorPalette[int(h)%len(CursorPalette)]
}

// ProjectPresence filters a raw presence set for one viewer. Owners see every
// record unmodified. Everyone else may identify only the document owner; all
// other identities are replaced with the anonymous placeholder. Cursor, color
// and the editing flag survive projection, only name, email and avatar are
// considered identity-revealing.
//
// The projection is recomputed on every delivery because the viewer's role can
// change mid-session, e.g. when the owner revokes a membership.
func ProjectPresence(viewerRole Role, ownerID UserID, records []PresenceRecord) []PresenceRecord {
	if viewerRole == RoleOwner {
		return records
	}

	projected := make([]PresenceRecord, len(records))
	for i, record := range records {
		if record.UserInfo.UserID == ownerID {
			projected[i] = record
			continue
		}
		hidden := record
		hidden.UserInfo.Name = AnonymousName
		hidden.UserInfo.Email = ""
		hidden.UserInfo.Avatar = ""
		projected[i] = hidden
	}

	return projected
}
