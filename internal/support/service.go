// Package support implements the request lifecycle: intake, staff replies,
// status changes, listings and broadcasts.
package support

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/localization"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/membership"
	"helpdesk/backend/internal/metrics"
	"helpdesk/backend/internal/models"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/workhours"

	errors "github.com/Laisky/errors/v2"
)

// Sender is the author of an inbound message.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

func (s Sender) User() *models.User {
	return &models.User{ID: s.ID, Username: s.Username, FirstName: s.FirstName, LastName: s.LastName}
}

// Name is what greetings use: the first name when there is one.
func (s Sender) Name() string {
	if s.FirstName != "" {
		return s.FirstName
	}
	return s.User().DisplayName()
}

// Notifier delivers a plain text message to a chat.
type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type Role int

const (
	RoleUser Role = iota
	RoleStaff
	RoleOwner
)

func (r Role) IsStaff() bool { return r >= RoleStaff }

type Options struct {
	OwnerID      int64
	StaffGroupID int64
	Schedule     workhours.Schedule
	Broadcast    config.BroadcastConfig
	Lang         localization.Bundle
	Now          func() time.Time
}

type Service struct {
	store    storage.Storage
	gate     membership.Checker
	notifier Notifier
	events   dashboard.Publisher
	metrics  *metrics.Metrics
	log      *logger.Logger
	format   *Formatter
	opts     Options
}

// NewService wires the engine. events and m may be nil.
func NewService(store storage.Storage, gate membership.Checker, notifier Notifier,
	events dashboard.Publisher, m *metrics.Metrics, log *logger.Logger, opts Options) *Service {
	if events == nil {
		events = dashboard.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		gate:     gate,
		notifier: notifier,
		events:   events,
		metrics:  m,
		log:      log.With("service", "support"),
		format:   NewFormatter(opts.Lang, opts.Schedule),
		opts:     opts,
	}
}

func (s *Service) Format() *Formatter { return s.format }

func (s *Service) Now() time.Time { return s.opts.Now() }

func (s *Service) OwnerID() int64 { return s.opts.OwnerID }

func (s *Service) StaffGroupID() int64 { return s.opts.StaffGroupID }

func (s *Service) Schedule() workhours.Schedule { return s.opts.Schedule }

// Touch refreshes the sender's last-active time. Unknown users are ignored.
func (s *Service) Touch(ctx context.Context, userID int64) {
	if err := s.store.TouchActivity(ctx, userID); err != nil {
		s.log.Warn("failed to touch activity", "user_id", userID, "error", err)
	}
}

// EnsureUser upserts the sender and returns the stored row.
func (s *Service) EnsureUser(ctx context.Context, sender Sender) (*models.User, error) {
	user := sender.User()
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) IsEligible(ctx context.Context, userID int64) bool {
	return s.gate.IsEligible(ctx, userID)
}

// Role resolves the owner first, then the staff table.
func (s *Service) Role(ctx context.Context, userID int64) (Role, error) {
	if userID == s.opts.OwnerID {
		return RoleOwner, nil
	}
	ok, err := s.store.IsStaff(ctx, userID)
	if err != nil {
		return RoleUser, err
	}
	if ok {
		return RoleStaff, nil
	}
	return RoleUser, nil
}

type SubmitResult struct {
	Request  *models.Request
	Estimate workhours.Estimate
	Notified bool
}

// ValidateBody trims the body and checks its length in characters.
func ValidateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	n := utf8.RuneCountInString(body)
	switch {
	case n < config.MinRequestBodyLength:
		return body, errors.Wrapf(ErrBodyTooShort, "%d characters", n)
	case n > config.MaxRequestBodyLength:
		return body, errors.Wrapf(ErrBodyTooLong, "%d characters", n)
	}
	return body, nil
}

// Submit checks eligibility before anything else, so an ineligible sender never
// writes a row. A failed staff notification does not fail the submission.
func (s *Service) Submit(ctx context.Context, sender Sender, body string) (*SubmitResult, error) {
	if !s.gate.IsEligible(ctx, sender.ID) {
		return nil, errors.Wrapf(ErrNotEligible, "user %d", sender.ID)
	}
	body, err := ValidateBody(body)
	if err != nil {
		return nil, err
	}

	if _, err := s.EnsureUser(ctx, sender); err != nil {
		return nil, err
	}
	req, err := s.store.CreateRequest(ctx, sender.ID, body)
	if err != nil {
		return nil, err
	}
	s.log.Info("request created", "request_id", req.ID, "user_id", sender.ID)
	if s.metrics != nil {
		s.metrics.RequestsCreated.Inc()
	}

	now := s.opts.Now()
	res := &SubmitResult{Request: req, Estimate: s.opts.Schedule.Estimate(now)}
	notice := s.format.NewRequestNotice(req, sender)
	if err := s.notifier.Notify(ctx, s.opts.StaffGroupID, notice); err != nil {
		s.log.Error("failed to notify staff group", "request_id", req.ID, "group_id", s.opts.StaffGroupID, "error", err)
	} else {
		res.Notified = true
	}

	s.events.Publish(dashboard.Event{
		Type:      dashboard.EventRequestCreated,
		RequestID: req.ID,
		UserID:    sender.ID,
		Status:    string(req.Status),
		Preview:   Truncate(req.Body, config.PreviewMedium),
	})
	return res, nil
}

type ReplyResult struct {
	Request       *models.Request
	Reply         *models.Reply
	RequesterName string
	Delivered     bool
	Promoted      bool
}

// FindRequest resolves a reply target. Used by the guided reply flow.
func (s *Service) FindRequest(ctx context.Context, id uint) (*models.Request, error) {
	return s.store.GetRequestDetails(ctx, id)
}

// Reply stores the answer first and only then tries to deliver it. A delivery
// failure is reported in the result, never as an error.
func (s *Service) Reply(ctx context.Context, staff Sender, requestID uint, text string) (*ReplyResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Wrapf(ErrEmptyText, "reply to request %d", requestID)
	}

	req, reply, err := s.store.AddReply(ctx, requestID, staff.ID, text)
	if err != nil {
		return nil, err
	}
	s.log.Info("reply stored", "request_id", req.ID, "staff_id", staff.ID, "status", req.Status)

	res := &ReplyResult{Request: req, Reply: reply, RequesterName: (&models.User{ID: req.UserID}).DisplayName()}
	if user, err := s.store.GetUser(ctx, req.UserID); err == nil {
		res.RequesterName = user.DisplayName()
	}

	msg := s.format.ReplyToUser(req.ID, text, staff)
	if err := s.notifier.Notify(ctx, req.UserID, msg); err != nil {
		s.log.Warn("reply not delivered", "request_id", req.ID, "user_id", req.UserID,
			"error", errors.Wrapf(ErrDelivery, "%v", err))
	} else {
		res.Delivered = true
	}
	if s.metrics != nil {
		delivery := "failed"
		if res.Delivered {
			delivery = "delivered"
		}
		s.metrics.Replies.WithLabelValues(delivery).Inc()
	}

	res.Promoted = s.promote(ctx, staff)

	s.events.Publish(dashboard.Event{
		Type:      dashboard.EventReplyAdded,
		RequestID: req.ID,
		UserID:    req.UserID,
		StaffID:   staff.ID,
		Status:    string(req.Status),
		Preview:   Truncate(text, config.PreviewMedium),
		Data:      map[string]interface{}{"delivered": res.Delivered},
	})
	return res, nil
}

// promote records a first-time responder as staff. Failures only get logged
// because the reply itself is already saved.
func (s *Service) promote(ctx context.Context, staff Sender) bool {
	if staff.ID == s.opts.OwnerID {
		return false
	}
	ok, err := s.store.IsStaff(ctx, staff.ID)
	if err != nil {
		s.log.Warn("staff lookup failed", "user_id", staff.ID, "error", err)
		return false
	}
	if ok {
		return false
	}
	if err := s.store.AddStaff(ctx, staff.ID, nil); err != nil {
		s.log.Warn("auto-promotion failed", "user_id", staff.ID, "error", err)
		return false
	}
	if _, err := s.EnsureUser(ctx, staff); err != nil {
		s.log.Warn("failed to record promoted staff", "user_id", staff.ID, "error", err)
	}
	s.log.Info("user promoted to staff", "user_id", staff.ID)
	s.events.Publish(dashboard.Event{Type: dashboard.EventStaffChanged, StaffID: staff.ID, Data: map[string]interface{}{"active": true}})
	return true
}

type StatusResult struct {
	Request  *models.Request
	Previous models.RequestStatus
}

func (r StatusResult) Changed() bool { return r.Previous != r.Request.Status }

// SetStatus is the manual override. Leaving completed returns a *TransitionError.
// The requester is told when work on their request starts.
func (s *Service) SetStatus(ctx context.Context, staff Sender, requestID uint, status models.RequestStatus) (*StatusResult, error) {
	current, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.SetStatus(ctx, requestID, status, &staff.ID)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			return nil, &TransitionError{RequestID: requestID, From: current.Status, To: status}
		}
		return nil, err
	}
	res := &StatusResult{Request: req, Previous: current.Status}
	if !res.Changed() {
		return res, nil
	}

	s.log.Info("status changed", "request_id", req.ID, "from", current.Status, "to", req.Status, "staff_id", staff.ID)
	if s.metrics != nil {
		s.metrics.StatusChanges.WithLabelValues(string(req.Status)).Inc()
	}
	if req.Status == models.StatusInProgress {
		if err := s.notifier.Notify(ctx, req.UserID, s.format.StatusNotice(req.ID)); err != nil {
			s.log.Warn("status notice not delivered", "request_id", req.ID, "user_id", req.UserID, "error", err)
		}
	}
	s.events.Publish(dashboard.Event{
		Type:      dashboard.EventStatusChanged,
		RequestID: req.ID,
		UserID:    req.UserID,
		StaffID:   staff.ID,
		Status:    string(req.Status),
	})
	return res, nil
}

func (s *Service) RequestInfo(ctx context.Context, id uint) (*models.Request, error) {
	return s.store.GetRequestDetails(ctx, id)
}

// ClampPageSize keeps listings within one message.
func ClampPageSize(limit int) int {
	switch {
	case limit <= 0:
		return config.DefaultPageSize
	case limit > config.MaxPageSize:
		return config.MaxPageSize
	}
	return limit
}

// ListRequests lists requests newest first. An empty status lists all of them.
func (s *Service) ListRequests(ctx context.Context, status models.RequestStatus, limit int) ([]models.Request, error) {
	return s.store.ListRequests(ctx, storage.RequestFilter{Status: status, Limit: ClampPageSize(limit)})
}

type UserRequests struct {
	Requests []models.Request
	Counts   storage.RequestCounts
}

// UserRequests returns the sender's latest requests with their replies, plus totals.
func (s *Service) UserRequests(ctx context.Context, userID int64) (*UserRequests, error) {
	reqs, err := s.store.ListRequests(ctx, storage.RequestFilter{
		UserID:      userID,
		Limit:       config.UserRequestsLimit,
		WithReplies: true,
	})
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserRequests{Requests: reqs, Counts: counts}, nil
}

func (s *Service) CountRequests(ctx context.Context, userID int64) (storage.RequestCounts, error) {
	return s.store.CountRequests(ctx, userID)
}

func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.store.Stats(ctx, s.opts.Schedule.Location)
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]models.User, error) {
	return s.store.SearchUsers(ctx, query, config.SearchResultLimit)
}

func (s *Service) AddStaff(ctx context.Context, by, target int64) error {
	if err := s.store.AddStaff(ctx, target, &by); err != nil {
		return err
	}
	s.log.Info("staff added", "user_id", target, "added_by", by)
	s.events.Publish(dashboard.Event{Type: dashboard.EventStaffChanged, StaffID: target, Data: map[string]interface{}{"active": true}})
	return nil
}

// RemoveStaff deactivates target. The owner stays staff.
func (s *Service) RemoveStaff(ctx context.Context, target int64) (bool, error) {
	if target == s.opts.OwnerID {
		return false, errors.Wrapf(ErrOwnerImmutable, "remove %d", target)
	}
	removed, err := s.store.RemoveStaff(ctx, target)
	if err != nil {
		return false, err
	}
	if removed {
		s.log.Info("staff removed", "user_id", target)
		s.events.Publish(dashboard.Event{Type: dashboard.EventStaffChanged, StaffID: target, Data: map[string]interface{}{"active": false}})
	}
	return removed, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]storage.StaffMember, error) {
	return s.store.ListStaff(ctx, config.StaffListLimit)
}
