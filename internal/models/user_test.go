package models_test

import (
	"helpdesk/backend/internal/models"
	"reflect"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

// TestUserBeforeCreate_StampsJoinedAt verifies that the hook fills JoinedAt and LastActiveAt.
func TestUserBeforeCreate_StampsJoinedAt(t *testing.T) {
	// Arrange
	user := &models.User{ID: 42, Username: "alice"}
	assert.True(t, user.JoinedAt.IsZero(), "JoinedAt should be empty before BeforeCreate")

	// Act
	err := user.BeforeCreate(nil)

	// Assert
	assert.NoError(t, err)
	assert.False(t, user.JoinedAt.IsZero(), "JoinedAt must be populated after BeforeCreate")
	assert.Equal(t, user.JoinedAt, user.LastActiveAt)
}

// TestUserBeforeCreate_PreservesJoinedAt verifies that an existing join time is kept.
func TestUserBeforeCreate_PreservesJoinedAt(t *testing.T) {
	joined := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	user := &models.User{ID: 7, JoinedAt: joined}

	err := user.BeforeCreate(nil)

	assert.NoError(t, err)
	assert.Equal(t, joined, user.JoinedAt)
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		want string
	}{
		{"username wins", &models.User{ID: 1, Username: "bob", FirstName: "Bob"}, "@bob"},
		{"first name fallback", &models.User{ID: 2, FirstName: "Ali"}, "Ali"},
		{"id fallback", &models.User{ID: 3}, "3"},
		{"nil user", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in     string
		want   models.RequestStatus
		wantOK bool
	}{
		{"pending", models.StatusPending, true},
		{" In-Progress ", models.StatusInProgress, true},
		{"completed", models.StatusCompleted, true},
		{"closed", models.RequestStatus("closed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := models.ParseStatus(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRequestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.RequestStatus
		to   models.RequestStatus
		want bool
	}{
		{"pending to in_progress", models.StatusPending, models.StatusInProgress, true},
		{"pending to completed needs a reply", models.StatusPending, models.StatusCompleted, false},
		{"in_progress to completed needs a reply", models.StatusInProgress, models.StatusCompleted, false},
		{"in_progress back to pending", models.StatusInProgress, models.StatusPending, false},
		{"completed is terminal", models.StatusCompleted, models.StatusPending, false},
		{"completed to in_progress", models.StatusCompleted, models.StatusInProgress, false},
		{"completed to completed", models.StatusCompleted, models.StatusCompleted, true},
		{"unknown target", models.StatusPending, models.RequestStatus("archived"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &models.Request{Status: tt.from}
			assert.Equal(t, tt.want, r.CanTransition(tt.to))
		})
	}
}

func TestRequestLastReply(t *testing.T) {
	r := &models.Request{}
	assert.Nil(t, r.LastReply())

	r.Replies = []models.Reply{{ID: 3, Text: "b"}, {ID: 5, Text: "c"}, {ID: 1, Text: "a"}}
	assert.Equal(t, "c", r.LastReply().Text)
}

func TestBroadcastTotal(t *testing.T) {
	b := &models.Broadcast{Sent: 3, Failed: 1, Skipped: 2, FailedChatIDs: pq.Int64Array{99}}
	assert.Equal(t, 6, b.Total())
}

// TestModelStructTags catches accidental tag removal during refactoring.
func TestModelStructTags(t *testing.T) {
	userType := reflect.TypeOf(models.User{})
	idField, found := userType.FieldByName("ID")
	assert.True(t, found, "ID field should exist")
	assert.Contains(t, idField.Tag.Get("gorm"), "primaryKey")
	assert.Contains(t, idField.Tag.Get("gorm"), "autoIncrement:false", "Telegram ids are assigned externally")

	adminType := reflect.TypeOf(models.StaffAdmin{})
	uidField, found := adminType.FieldByName("UserID")
	assert.True(t, found)
	assert.Contains(t, uidField.Tag.Get("gorm"), "primaryKey")
	assert.Equal(t, "admins", models.StaffAdmin{}.TableName())

	bcType := reflect.TypeOf(models.Broadcast{})
	failedField, found := bcType.FieldByName("FailedChatIDs")
	assert.True(t, found)
	assert.Contains(t, failedField.Tag.Get("gorm"), "type:text")
}
