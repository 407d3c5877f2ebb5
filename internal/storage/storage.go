package storage

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/models"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Storage interface {
	UpsertUser(ctx context.Context, user *models.User) error
	TouchActivity(ctx context.Context, userID int64) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
	ListUserIDs(ctx context.Context, limit int) ([]int64, error)

	CreateRequest(ctx context.Context, userID int64, body string) (*models.Request, error)
	GetRequest(ctx context.Context, id uint) (*models.Request, error)
	GetRequestDetails(ctx context.Context, id uint) (*models.Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, error)
	CountRequests(ctx context.Context, userID int64) (RequestCounts, error)
	AddReply(ctx context.Context, requestID uint, staffID int64, text string) (*models.Request, *models.Reply, error)
	SetStatus(ctx context.Context, requestID uint, status models.RequestStatus, staffID *int64) (*models.Request, error)

	IsStaff(ctx context.Context, userID int64) (bool, error)
	AddStaff(ctx context.Context, userID int64, addedBy *int64) error
	RemoveStaff(ctx context.Context, userID int64) (bool, error)
	ListStaff(ctx context.Context, limit int) ([]StaffMember, error)

	Stats(ctx context.Context, loc *time.Location) (*Stats, error)
	SaveBroadcast(ctx context.Context, b *models.Broadcast) error
	PurgeCompleted(ctx context.Context, before time.Time) (int64, error)
}

// RequestFilter narrows ListRequests. Zero values mean "any"; Limit <= 0 means no limit.
type RequestFilter struct {
	Status      models.RequestStatus
	UserID      int64
	Limit       int
	WithReplies bool
}

type RequestCounts struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
}

type Stats struct {
	TotalUsers    int64         `json:"total_users"`
	TodayUsers    int64         `json:"today_users"`
	TodayRequests int64         `json:"today_requests"`
	Requests      RequestCounts `json:"requests"`
}

// StaffMember is an active StaffAdmin joined with whatever is known about the user.
type StaffMember struct {
	models.StaffAdmin
	Username  string
	FirstName string
}

// DisplayName mirrors models.User.DisplayName for staff rows.
func (m StaffMember) DisplayName() string {
	u := models.User{ID: m.UserID, Username: m.Username, FirstName: m.FirstName}
	return u.DisplayName()
}

type Service struct {
	DB  *gorm.DB
	log *logger.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, log *logger.Logger) *Service {
	return &Service{
		DB:  db,
		log: log.With("service", "storage"),
	}
}

// SeedOwner records the owner as an active staff member.
func (s *Service) SeedOwner(ctx context.Context, ownerID int64) error {
	return s.AddStaff(ctx, ownerID, nil)
}

// UpsertUser inserts the user or refreshes its name fields and last-active time.
// JoinedAt is only written on insert. On return user holds the stored row.
func (s *Service) UpsertUser(ctx context.Context, user *models.User) error {
	user.LastActiveAt = nowUTC()
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "first_name", "last_name", "last_active_at"}),
	}).Create(user).Error
	if err != nil {
		return errors.Wrapf(err, "upsert user %d", user.ID)
	}
	if err := s.DB.WithContext(ctx).First(user, user.ID).Error; err != nil {
		return errors.Wrapf(err, "reload user %d", user.ID)
	}
	return nil
}

// TouchActivity updates last_active_at. Unknown users are ignored.
func (s *Service) TouchActivity(ctx context.Context, userID int64) error {
	err := s.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_active_at", nowUTC()).Error
	if err != nil {
		return errors.Wrapf(err, "touch activity of user %d", userID)
	}
	return nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrUserNotFound, "user %d", userID)
		}
		return nil, errors.Wrapf(err, "get user %d", userID)
	}
	return &user, nil
}

// SearchUsers matches the query against the id and, case-insensitively, the name fields.
func (s *Service) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	query = strings.TrimPrefix(strings.TrimSpace(query), "@")
	if query == "" {
		return nil, nil
	}
	pattern := "%" + strings.ToLower(query) + "%"

	tx := s.DB.WithContext(ctx).Model(&models.User{})
	cond := s.DB.Where("LOWER(username) LIKE ?", pattern).
		Or("LOWER(first_name) LIKE ?", pattern).
		Or("LOWER(last_name) LIKE ?", pattern)
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		cond = cond.Or("id = ?", id)
	}

	var users []models.User
	tx = tx.Where(cond).Order("joined_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "search users")
	}
	return users, nil
}

// ListUserIDs returns user ids in join order.
func (s *Service) ListUserIDs(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	tx := s.DB.WithContext(ctx).Model(&models.User{}).Order("joined_at ASC").Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Pluck("id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "list user ids")
	}
	return ids, nil
}

// CreateRequest stores a new pending request. The body is measured in characters, not bytes.
func (s *Service) CreateRequest(ctx context.Context, userID int64, body string) (*models.Request, error) {
	n := utf8.RuneCountInString(body)
	if n < config.MinRequestBodyLength || n > config.MaxRequestBodyLength {
		return nil, errors.Wrapf(ErrValidation, "request body has %d characters, want %d..%d",
			n, config.MinRequestBodyLength, config.MaxRequestBodyLength)
	}

	req := models.Request{UserID: userID, Body: body, Status: models.StatusPending}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return errors.Wrap(err, "check request owner")
		}
		if count == 0 {
			return errors.Wrapf(ErrUserNotFound, "user %d", userID)
		}
		if err := tx.Create(&req).Error; err != nil {
			return errors.Wrap(err, "insert request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Service) GetRequest(ctx context.Context, id uint) (*models.Request, error) {
	return s.loadRequest(s.DB.WithContext(ctx), id)
}

// GetRequestDetails loads the request together with its owner and replies.
func (s *Service) GetRequestDetails(ctx context.Context, id uint) (*models.Request, error) {
	tx := s.DB.WithContext(ctx).
		Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	return s.loadRequest(tx, id)
}

func (s *Service) loadRequest(tx *gorm.DB, id uint) (*models.Request, error) {
	var req models.Request
	if err := tx.First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrRequestNotFound, "request %d", id)
		}
		return nil, errors.Wrapf(err, "get request %d", id)
	}
	return &req, nil
}

// ListRequests returns requests newest first.
func (s *Service) ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, error) {
	tx := s.DB.WithContext(ctx).Model(&models.Request{}).Preload("User")
	if filter.WithReplies {
		tx = tx.Preload("Replies", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	if filter.UserID != 0 {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	tx = tx.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var reqs []models.Request
	if err := tx.Find(&reqs).Error; err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	return reqs, nil
}

// CountRequests counts requests per status. userID 0 counts every request.
func (s *Service) CountRequests(ctx context.Context, userID int64) (RequestCounts, error) {
	type row struct {
		Status models.RequestStatus
		Count  int64
	}
	var rows []row
	tx := s.DB.WithContext(ctx).Model(&models.Request{}).Select("status, COUNT(*) AS count")
	if userID != 0 {
		tx = tx.Where("user_id = ?", userID)
	}
	if err := tx.Group("status").Scan(&rows).Error; err != nil {
		return RequestCounts{}, errors.Wrap(err, "count requests")
	}

	var counts RequestCounts
	for _, r := range rows {
		counts.Total += r.Count
		switch r.Status {
		case models.StatusPending:
			counts.Pending = r.Count
		case models.StatusInProgress:
			counts.InProgress = r.Count
		case models.StatusCompleted:
			counts.Completed = r.Count
		}
	}
	return counts, nil
}

// AddReply stores a reply and completes the request in one transaction.
// A request that is already completed keeps its status and staff id.
func (s *Service) AddReply(ctx context.Context, requestID uint, staffID int64, text string) (*models.Request, *models.Reply, error) {
	var (
		req   models.Request
		reply models.Reply
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrRequestNotFound, "request %d", requestID)
			}
			return errors.Wrapf(err, "get request %d", requestID)
		}

		reply = models.Reply{RequestID: req.ID, StaffID: staffID, Text: text}
		if err := tx.Create(&reply).Error; err != nil {
			return errors.Wrap(err, "insert reply")
		}

		if req.Status == models.StatusCompleted {
			return nil
		}
		now := nowUTC()
		err := tx.Model(&models.Request{}).
			Where("id = ?", req.ID).
			Updates(map[string]interface{}{
				"status":     models.StatusCompleted,
				"staff_id":   staffID,
				"updated_at": now,
			}).Error
		if err != nil {
			return errors.Wrapf(err, "complete request %d", req.ID)
		}
		req.Status = models.StatusCompleted
		req.StaffID = &staffID
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &req, &reply, nil
}

// SetStatus overrides the status of a request. Completed requests cannot be reopened.
func (s *Service) SetStatus(ctx context.Context, requestID uint, status models.RequestStatus, staffID *int64) (*models.Request, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrValidation, "unknown status %q", status)
	}

	var req models.Request
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrapf(ErrRequestNotFound, "request %d", requestID)
			}
			return errors.Wrapf(err, "get request %d", requestID)
		}
		if !req.CanTransition(status) {
			return errors.Wrapf(ErrInvalidTransition, "request %d: %s -> %s", req.ID, req.Status, status)
		}
		if req.Status == status {
			return nil
		}

		now := nowUTC()
		updates := map[string]interface{}{"status": status, "updated_at": now}
		if staffID != nil {
			updates["staff_id"] = *staffID
		}
		if err := tx.Model(&models.Request{}).Where("id = ?", req.ID).Updates(updates).Error; err != nil {
			return errors.Wrapf(err, "set status of request %d", req.ID)
		}
		req.Status = status
		req.UpdatedAt = now
		if staffID != nil {
			req.StaffID = staffID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *Service) IsStaff(ctx context.Context, userID int64) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.StaffAdmin{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrapf(err, "check staff %d", userID)
	}
	return count > 0, nil
}

// AddStaff records or reactivates a staff member. Reactivation records the new
// grant; adding an active member again changes nothing.
func (s *Service) AddStaff(ctx context.Context, userID int64, addedBy *int64) error {
	admin := models.StaffAdmin{
		UserID:   userID,
		IsActive: true,
		AddedBy:  addedBy,
		AddedAt:  nowUTC(),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.StaffAdmin
		err := tx.Where("user_id = ?", userID).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&admin).Error
		case err != nil:
			return err
		case existing.IsActive:
			return nil
		}
		return tx.Model(&models.StaffAdmin{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"is_active": true,
				"added_by":  addedBy,
				"added_at":  admin.AddedAt,
			}).Error
	})
	if err != nil {
		return errors.Wrapf(err, "add staff %d", userID)
	}
	return nil
}

// RemoveStaff deactivates a staff member and reports whether an active row was changed.
func (s *Service) RemoveStaff(ctx context.Context, userID int64) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.StaffAdmin{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "remove staff %d", userID)
	}
	return res.RowsAffected > 0, nil
}

// ListStaff returns active staff, most recently added first.
func (s *Service) ListStaff(ctx context.Context, limit int) ([]StaffMember, error) {
	var members []StaffMember
	tx := s.DB.WithContext(ctx).
		Table("admins").
		Select("admins.user_id, admins.is_active, admins.added_by, admins.added_at, users.username, users.first_name").
		Joins("LEFT JOIN users ON users.id = admins.user_id").
		Where("admins.is_active = ?", true).
		Order("admins.added_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Scan(&members).Error; err != nil {
		return nil, errors.Wrap(err, "list staff")
	}
	return members, nil
}

// Stats aggregates the dashboard counters. "Today" is the calendar day in loc.
func (s *Service) Stats(ctx context.Context, loc *time.Location) (*Stats, error) {
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).UTC()

	var st Stats
	db := s.DB.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&st.TotalUsers).Error; err != nil {
		return nil, errors.Wrap(err, "count users")
	}
	if err := db.Model(&models.User{}).Where("joined_at >= ?", dayStart).Count(&st.TodayUsers).Error; err != nil {
		return nil, errors.Wrap(err, "count today's users")
	}
	if err := db.Model(&models.Request{}).Where("created_at >= ?", dayStart).Count(&st.TodayRequests).Error; err != nil {
		return nil, errors.Wrap(err, "count today's requests")
	}
	counts, err := s.CountRequests(ctx, 0)
	if err != nil {
		return nil, err
	}
	st.Requests = counts
	return &st, nil
}

func (s *Service) SaveBroadcast(ctx context.Context, b *models.Broadcast) error {
	if err := s.DB.WithContext(ctx).Create(b).Error; err != nil {
		s.log.Error("failed to save broadcast", "staff_id", b.StaffID, "error", err)
		return errors.Wrap(err, "save broadcast")
	}
	return nil
}

// PurgeCompleted deletes completed requests created before the cutoff, with their replies.
func (s *Service) PurgeCompleted(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		err := tx.Model(&models.Request{}).
			Where("status = ? AND created_at < ?", models.StatusCompleted, before.UTC()).
			Pluck("id", &ids).Error
		if err != nil {
			return errors.Wrap(err, "select expired requests")
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("request_id IN ?", ids).Delete(&models.Reply{}).Error; err != nil {
			return errors.Wrap(err, "delete replies")
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Request{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete requests")
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("purged completed requests", "count", deleted, "before", before)
	}
	return deleted, nil
}
