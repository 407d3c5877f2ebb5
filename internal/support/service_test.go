package support_test

import (
	"context"
	"strings"
	"testing"

	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/models"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/support"
	"helpdesk/backend/internal/workhours"

	errors "github.com/Laisky/errors/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit_NotifiesStaffGroup(t *testing.T) {
	// Arrange
	f := newFixture(t)

	// Act
	res := f.submit(t, 10, "  Need help with topic X  ")

	// Assert
	require.NotNil(t, res.Request)
	assert.Equal(t, uint(1), res.Request.ID)
	assert.Equal(t, models.StatusPending, res.Request.Status)
	assert.Equal(t, "Need help with topic X", res.Request.Body, "the body is trimmed")
	assert.Equal(t, workhours.EstimateFast, res.Estimate)
	assert.True(t, res.Notified)

	notices := f.notifier.to(groupID)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "#1")
	assert.Contains(t, notices[0], "/reply 1 ")
	assert.Contains(t, notices[0], "@user10")
	assert.Contains(t, notices[0], "Need help with topic X")

	assert.Equal(t, []dashboard.EventType{dashboard.EventRequestCreated}, f.events.types())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RequestsCreated))

	u, err := f.store.GetUser(context.Background(), 10)
	require.NoError(t, err, "the sender is upserted")
	assert.Equal(t, "user10", u.Username)
}

func TestSubmit_IneligibleWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.gate.block(20)

	_, err := f.svc.Submit(context.Background(), user(20), "Need help with topic X")

	require.Error(t, err)
	assert.True(t, errors.Is(err, support.ErrNotEligible))
	reqs, err := f.svc.ListRequests(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Empty(t, f.notifier.to(groupID))
	_, err = f.store.GetUser(context.Background(), 20)
	assert.True(t, errors.Is(err, storage.ErrUserNotFound), "not even the user row is written")
}

func TestSubmit_BodyLength(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"too short", "abcd", support.ErrBodyTooShort},
		{"whitespace padded short", "   abc   ", support.ErrBodyTooShort},
		{"too long", strings.Repeat("я", 2001), support.ErrBodyTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Submit(context.Background(), user(10), tt.body)

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.True(t, errors.Is(err, storage.ErrValidation))
			reqs, err := f.svc.ListRequests(context.Background(), "", 0)
			require.NoError(t, err)
			assert.Empty(t, reqs)
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		f := newFixture(t)
		first := f.submit(t, 10, "abcde")
		second := f.submit(t, 10, strings.Repeat("я", 2000))
		assert.Greater(t, second.Request.ID, first.Request.ID)
	})
}

func TestSubmit_StaffNotificationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail[groupID] = true

	res := f.submit(t, 10, "Need help with topic X")

	assert.False(t, res.Notified)
	_, err := f.store.GetRequest(context.Background(), res.Request.ID)
	assert.NoError(t, err)
}

// Submit then reply: the request completes and the requester gets the answer.
func TestReply_SubmitAndReplyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := user(500)
	req := f.submit(t, 10, "Need help with topic X").Request

	res, err := f.svc.Reply(ctx, staff, req.ID, "Here is the answer")

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Request.Status)
	require.NotNil(t, res.Request.StaffID)
	assert.Equal(t, int64(500), *res.Request.StaffID)
	assert.True(t, res.Delivered)
	assert.Equal(t, "@user10", res.RequesterName)

	delivered := f.notifier.to(10)
	require.Len(t, delivered, 1)
	assert.Contains(t, delivered[0], "Here is the answer")
	assert.Contains(t, delivered[0], "#1")

	assert.True(t, res.Promoted, "a first-time responder becomes staff")
	role, err := f.svc.Role(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, support.RoleStaff, role)

	confirm := f.svc.Format().ReplyConfirm(res, staff)
	assert.Contains(t, confirm, "delivered")
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Replies.WithLabelValues("delivered")))
}

func TestReply_UnknownRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reply(context.Background(), user(ownerID), 9999, "hello")

	require.Error(t, err)
	assert.True(t, errors.Is(err, support.ErrRequestNotFound))
	var replies int64
	require.NoError(t, f.store.DB.Model(&models.Reply{}).Count(&replies).Error)
	assert.Zero(t, replies)
	assert.Empty(t, f.notifier.outbox)
	assert.Empty(t, f.events.types())
}

func TestReply_DeliveryFailureKeepsReply(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, 10, "Need help with topic X").Request
	f.notifier.fail[10] = true

	res, err := f.svc.Reply(context.Background(), user(ownerID), req.ID, "Here is the answer")

	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.Equal(t, models.StatusCompleted, res.Request.Status)
	stored, err := f.svc.RequestInfo(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, stored.Replies, 1)
	assert.Equal(t, "Here is the answer", stored.Replies[0].Text)
	assert.Contains(t, f.svc.Format().ReplyConfirm(res, user(ownerID)), "saved")
}

func TestReply_CompletedRequestKeepsStatusAndStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10, "Need help with topic X").Request

	_, err := f.svc.Reply(ctx, user(500), req.ID, "first")
	require.NoError(t, err)
	res, err := f.svc.Reply(ctx, user(600), req.ID, "follow-up")

	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, res.Request.Status)
	assert.Equal(t, int64(500), *res.Request.StaffID)
	stored, err := f.svc.RequestInfo(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Replies, 2)
	assert.Equal(t, "follow-up", stored.LastReply().Text)
}

func TestReply_OwnerIsNotPromoted(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, 10, "Need help with topic X").Request

	res, err := f.svc.Reply(context.Background(), user(ownerID), req.ID, "answer")

	require.NoError(t, err)
	assert.False(t, res.Promoted)
}

func TestReply_EmptyText(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, 10, "Need help with topic X").Request

	_, err := f.svc.Reply(context.Background(), user(ownerID), req.ID, "   ")

	assert.True(t, errors.Is(err, support.ErrEmptyText))
	stored, err := f.svc.RequestInfo(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10, "Need help with topic X").Request

	// pending -> in_progress notifies the requester
	res, err := f.svc.SetStatus(ctx, user(ownerID), req.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.True(t, res.Changed())
	assert.Equal(t, models.StatusPending, res.Previous)
	assert.Equal(t, models.StatusInProgress, res.Request.Status)
	require.Len(t, f.notifier.to(10), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.StatusChanges.WithLabelValues("in_progress")))

	// same status again is a no-op
	res, err = f.svc.SetStatus(ctx, user(ownerID), req.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Len(t, f.notifier.to(10), 1)

	// completing without a reply is rejected
	_, err = f.svc.SetStatus(ctx, user(ownerID), req.ID, models.StatusCompleted)
	require.Error(t, err)
	te, ok := support.AsTransitionError(err)
	require.True(t, ok)
	assert.Equal(t, models.StatusInProgress, te.From)
	assert.Equal(t, models.StatusCompleted, te.To)
	stored, err := f.svc.RequestInfo(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Empty(t, stored.Replies)

	// a reply completes it
	_, err = f.svc.Reply(ctx, user(ownerID), req.ID, "done")
	require.NoError(t, err)

	// completed is terminal
	_, err = f.svc.SetStatus(ctx, user(ownerID), req.ID, models.StatusPending)
	require.Error(t, err)
	te, ok = support.AsTransitionError(err)
	require.True(t, ok)
	assert.Equal(t, models.StatusCompleted, te.From)
	assert.Equal(t, models.StatusPending, te.To)
	assert.True(t, errors.Is(err, storage.ErrInvalidTransition))

	_, err = f.svc.SetStatus(ctx, user(ownerID), 9999, models.StatusInProgress)
	assert.True(t, errors.Is(err, support.ErrRequestNotFound))
}

func TestClampPageSize(t *testing.T) {
	assert.Equal(t, 10, support.ClampPageSize(0))
	assert.Equal(t, 10, support.ClampPageSize(-3))
	assert.Equal(t, 1, support.ClampPageSize(1))
	assert.Equal(t, 20, support.ClampPageSize(20))
	assert.Equal(t, 20, support.ClampPageSize(500))
}

func TestListingsAreBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.submit(t, 10, "Need help with topic X")
	}

	all, err := f.svc.ListRequests(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 20)
	assert.Equal(t, uint(25), all[0].ID, "newest first")

	mine, err := f.svc.UserRequests(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, mine.Requests, 10)
	assert.Equal(t, int64(25), mine.Counts.Total)
	assert.Equal(t, int64(25), mine.Counts.Pending)
}

func TestRoleAndStaffManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.Role(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, support.RoleOwner, role)
	assert.True(t, role.IsStaff())

	role, err = f.svc.Role(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, support.RoleUser, role)
	assert.False(t, role.IsStaff())

	require.NoError(t, f.svc.AddStaff(ctx, ownerID, 77))
	role, err = f.svc.Role(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, support.RoleStaff, role)

	staff, err := f.svc.ListStaff(ctx)
	require.NoError(t, err)
	assert.Len(t, staff, 2)

	removed, err := f.svc.RemoveStaff(ctx, 77)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = f.svc.RemoveStaff(ctx, 77)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = f.svc.RemoveStaff(ctx, ownerID)
	assert.True(t, errors.Is(err, support.ErrOwnerImmutable))
}

func TestStatsAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, 10, "Need help with topic X")
	f.submit(t, 11, "Another question here")

	st, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalUsers)
	assert.Equal(t, int64(2), st.Requests.Pending)

	users, err := f.svc.SearchUsers(ctx, "@user1")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestTouchUnknownUserIsSilent(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() { f.svc.Touch(context.Background(), 424242) })
}
