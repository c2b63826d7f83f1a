package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorForIsDeterministic(t *testing.T) {
	for _, id := range []UserID{"user_1", "user_2abc", "x", ""} {
		first := ColorFor(id)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, ColorFor(id))
		}
		assert.Contains(t, CursorPalette, first)
	}
}

func TestColorForSpreadsAcrossPalette(t *testing.T) {
	seen := make(map[string]bool)
	ids := []UserID{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi", "ivan", "judy"}
	for _, id := range ids {
		seen[ColorFor(id)] = true
	}
	// A rolling hash over distinct ids should not collapse to one bucket.
	assert.Greater(t, len(seen), 1)
}

func presenceFixture(ownerID UserID) []PresenceRecord {
	return []PresenceRecord{
		{
			ConnectionID: "conn_owner",
			Cursor:       &Cursor{X: 10, Y: 20},
			IsEditing:    true,
			UserInfo: UserInfo{
				UserID: ownerID,
				Name:   "Owner Name",
				Email:  "owner@example.com",
				Avatar: "https://img.example.com/owner.png",
				Color:  ColorFor(ownerID),
			},
		},
		{
			ConnectionID: "conn_editor",
			Cursor:       &Cursor{X: 5, Y: 5},
			IsEditing:    true,
			UserInfo: UserInfo{
				UserID: "user_editor",
				Name:   "Editor Name",
				Email:  "editor@example.com",
				Avatar: "https://img.example.com/editor.png",
				Color:  ColorFor("user_editor"),
			},
		},
	}
}

func TestProjectPresenceOwnerSeesEverything(t *testing.T) {
	records := presenceFixture("user_owner")

	projected := ProjectPresence(RoleOwner, "user_owner", records)

	assert.Equal(t, records, projected)
}

func TestProjectPresenceHidesNonOwnerIdentities(t *testing.T) {
	records := presenceFixture("user_owner")

	projected := ProjectPresence(RoleEditor, "user_owner", records)

	assert.Len(t, projected, 2)

	// The owner's record stays identifiable for everyone in the room.
	assert.Equal(t, "Owner Name", projected[0].UserInfo.Name)
	assert.Equal(t, "owner@example.com", projected[0].UserInfo.Email)

	// Every other identity collapses to the placeholder.
	assert.Equal(t, AnonymousName, projected[1].UserInfo.Name)
	assert.Empty(t, projected[1].UserInfo.Email)
	assert.Empty(t, projected[1].UserInfo.Avatar)

	// Activity signals survive the projection.
	assert.Equal(t, &Cursor{X: 5, Y: 5}, projected[1].Cursor)
	assert.True(t, projected[1].IsEditing)
	assert.Equal(t, ColorFor("user_editor"), projected[1].UserInfo.Color)
}

func TestProjectPresenceDoesNotMutateInput(t *testing.T) {
	records := presenceFixture("user_owner")

	ProjectPresence(RoleViewer, "user_owner", records)

	assert.Equal(t, "Editor Name", records[1].UserInfo.Name)
}

func TestProjectPresenceViewerAndNoneGetSameView(t *testing.T) {
	records := presenceFixture("user_owner")

	viewer := ProjectPresence(RoleViewer, "user_owner", records)
	none := ProjectPresence(RoleNone, "user_owner", records)

	assert.Equal(t, viewer, none)
}

func TestAnonymousProfileKeepsID(t *testing.T) {
	p := AnonymousProfile("user_x")
	assert.Equal(t, UserID("user_x"), p.ID)
	assert.Equal(t, AnonymousName, p.Name)
	assert.Empty(t, p.Email)
	assert.Empty(t, p.Avatar)
}
