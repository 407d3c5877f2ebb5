package membership_test

import (
	"context"
	"testing"

	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/membership"
	"helpdesk/backend/internal/metrics"

	errors "github.com/Laisky/errors/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockDirectory is a mock implementation of the Directory interface
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) MemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	args := m.Called(channel, userID)
	return args.String(0), args.Error(1)
}

const ownerID = int64(1)

func newGate(dir membership.Directory, m *metrics.Metrics) *membership.Gate {
	return membership.NewGate(dir, ownerID, []string{"first", "second"}, logger.Nop(), m)
}

func TestIsEligible_OwnerSkipsDirectory(t *testing.T) {
	dir := new(MockDirectory)

	assert.True(t, newGate(dir, nil).IsEligible(context.Background(), ownerID))
	dir.AssertNotCalled(t, "MemberStatus", mock.Anything, mock.Anything)
}

func TestIsEligible_AllChannelsRequired(t *testing.T) {
	for _, status := range []string{"member", "administrator", "creator"} {
		t.Run(status, func(t *testing.T) {
			dir := new(MockDirectory)
			dir.On("MemberStatus", "first", int64(10)).Return(status, nil).Once()
			dir.On("MemberStatus", "second", int64(10)).Return("member", nil).Once()

			assert.True(t, newGate(dir, nil).IsEligible(context.Background(), 10))
			dir.AssertExpectations(t)
		})
	}
}

func TestIsEligible_ShortCircuitsOnFirstFailure(t *testing.T) {
	for _, status := range []string{"left", "kicked", "restricted", ""} {
		t.Run("status "+status, func(t *testing.T) {
			dir := new(MockDirectory)
			dir.On("MemberStatus", "first", int64(10)).Return(status, nil).Once()

			assert.False(t, newGate(dir, nil).IsEligible(context.Background(), 10))
			dir.AssertExpectations(t)
			dir.AssertNotCalled(t, "MemberStatus", "second", int64(10))
		})
	}
}

func TestIsEligible_SecondChannelMissing(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("MemberStatus", "first", int64(10)).Return("member", nil)
	dir.On("MemberStatus", "second", int64(10)).Return("left", nil)

	assert.False(t, newGate(dir, nil).IsEligible(context.Background(), 10))
}

func TestIsEligible_DirectoryErrorFailsClosed(t *testing.T) {
	m := metrics.New()
	dir := new(MockDirectory)
	dir.On("MemberStatus", "first", int64(10)).Return("", errors.New("Bad Request: user not found"))

	assert.False(t, newGate(dir, m).IsEligible(context.Background(), 10))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GateChecks.WithLabelValues("error")))
}

func TestIsEligible_NoCaching(t *testing.T) {
	dir := new(MockDirectory)
	dir.On("MemberStatus", "first", int64(10)).Return("member", nil).Once()
	dir.On("MemberStatus", "second", int64(10)).Return("member", nil).Once()
	dir.On("MemberStatus", "first", int64(10)).Return("left", nil).Once()
	gate := newGate(dir, nil)

	assert.True(t, gate.IsEligible(context.Background(), 10))
	assert.False(t, gate.IsEligible(context.Background(), 10), "every call re-queries")
	dir.AssertExpectations(t)
}

func TestIsEligible_NoChannelsConfigured(t *testing.T) {
	dir := new(MockDirectory)
	gate := membership.NewGate(dir, ownerID, nil, logger.Nop(), nil)

	assert.True(t, gate.IsEligible(context.Background(), 10))
	assert.Empty(t, gate.Channels())
}
