package telegram

import (
	"context"
	"strings"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/models"
	"helpdesk/backend/internal/support"

	errors "github.com/Laisky/errors/v2"
)

func (s *BotService) handleCommand(ctx context.Context, in Incoming) error {
	s.support.Touch(ctx, in.Sender.ID)

	switch in.Command {
	case "start", "time", "help", "myrequests", "cancel":
		if !in.Private {
			return nil
		}
		switch in.Command {
		case "start":
			return s.cmdStart(ctx, in)
		case "time":
			s.send(ctx, in.ChatID, s.format.TimeInfo(s.support.Now(), s.channels), s.menuFor(in.Sender.ID))
		case "help":
			owner := in.Sender.ID == s.support.OwnerID()
			s.send(ctx, in.ChatID, s.format.Help(in.Sender, owner, s.channels), s.menuFor(in.Sender.ID))
		case "myrequests":
			if !s.support.IsEligible(ctx, in.Sender.ID) {
				s.send(ctx, in.ChatID, s.format.JoinRequired(in.Sender, s.channels), RemoveKeyboard)
				return nil
			}
			return s.sendMyRequests(ctx, in)
		case "cancel":
			if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
				return err
			}
			s.send(ctx, in.ChatID, s.format.T("cancel.done"), s.menuFor(in.Sender.ID))
		}
		return nil

	case "reply", "requestinfo", "allrequests", "admins", "setstatus":
		ok, err := s.staffScope(ctx, in)
		if err != nil || !ok {
			return err
		}
		switch in.Command {
		case "reply":
			return s.cmdReply(ctx, in)
		case "requestinfo":
			return s.cmdRequestInfo(ctx, in)
		case "allrequests":
			reqs, err := s.support.ListRequests(ctx, "", config.MaxPageSize)
			if err != nil {
				return err
			}
			s.send(ctx, in.ChatID, s.format.AllRequests(reqs), nil)
		case "admins":
			return s.cmdAdmins(ctx, in)
		case "setstatus":
			return s.cmdSetStatus(ctx, in)
		}
		return nil

	case "admin", "addadmin", "removeadmin":
		if in.Sender.ID != s.support.OwnerID() {
			key := "admin.no_permission"
			if in.Command == "admin" {
				key = "admin.not_owner"
			}
			if in.Private || in.ChatID == s.support.StaffGroupID() {
				s.send(ctx, in.ChatID, s.format.T(key), nil)
			}
			return nil
		}
		switch in.Command {
		case "admin":
			s.send(ctx, in.ChatID, s.format.T("admin.panel"), s.adminMenu)
		case "addadmin":
			return s.cmdAddAdmin(ctx, in)
		case "removeadmin":
			return s.cmdRemoveAdmin(ctx, in)
		}
		return nil
	}

	s.log.Debug("unknown command", "command", in.Command, "user_id", in.Sender.ID)
	return nil
}

// staffScope reports whether a staff command may run here: always in the staff
// group, in a private chat only for staff. Other groups are ignored.
func (s *BotService) staffScope(ctx context.Context, in Incoming) (bool, error) {
	if in.ChatID == s.support.StaffGroupID() {
		return true, nil
	}
	if !in.Private {
		return false, nil
	}
	role, err := s.support.Role(ctx, in.Sender.ID)
	if err != nil {
		return false, err
	}
	if !role.IsStaff() {
		s.send(ctx, in.ChatID, s.format.T("admin.no_permission"), nil)
		return false, nil
	}
	return true, nil
}

func (s *BotService) cmdStart(ctx context.Context, in Incoming) error {
	if _, err := s.support.EnsureUser(ctx, in.Sender); err != nil {
		return err
	}
	now := s.support.Now()

	if in.Sender.ID == s.support.OwnerID() {
		s.send(ctx, in.ChatID, s.format.StartOwner(in.Sender, now), s.adminMenu)
		return nil
	}
	if !s.support.IsEligible(ctx, in.Sender.ID) {
		s.send(ctx, in.ChatID, s.format.JoinRequired(in.Sender, s.channels), RemoveKeyboard)
		return nil
	}
	counts, err := s.support.CountRequests(ctx, in.Sender.ID)
	if err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.StartUser(in.Sender, now, counts), s.userMenu)
	return nil
}

func (s *BotService) cmdReply(ctx context.Context, in Incoming) error {
	rawID, text := splitFirst(in.Args)
	if rawID == "" || text == "" {
		s.send(ctx, in.ChatID, s.format.T("reply.usage"), nil)
		return nil
	}
	id, err := support.ParseRequestID(rawID)
	if err != nil {
		s.send(ctx, in.ChatID, s.format.T("common.id_not_number"), nil)
		return nil
	}

	res, err := s.support.Reply(ctx, in.Sender, id, text)
	switch {
	case errors.Is(err, support.ErrRequestNotFound):
		s.send(ctx, in.ChatID, s.format.F("reply.not_found", id), nil)
		return nil
	case errors.Is(err, support.ErrEmptyText):
		s.send(ctx, in.ChatID, s.format.T("reply.usage"), nil)
		return nil
	case err != nil:
		return err
	}
	s.send(ctx, in.ChatID, s.format.ReplyConfirm(res, in.Sender), nil)
	return nil
}

func (s *BotService) cmdRequestInfo(ctx context.Context, in Incoming) error {
	rawID, _ := splitFirst(in.Args)
	if rawID == "" {
		s.send(ctx, in.ChatID, s.format.T("requestinfo.usage"), nil)
		return nil
	}
	id, err := support.ParseRequestID(rawID)
	if err != nil {
		s.send(ctx, in.ChatID, s.format.T("common.id_not_number"), nil)
		return nil
	}
	req, err := s.support.RequestInfo(ctx, id)
	if errors.Is(err, support.ErrRequestNotFound) {
		s.send(ctx, in.ChatID, s.format.F("reply.not_found", id), nil)
		return nil
	}
	if err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.RequestInfo(req), nil)
	return nil
}

func (s *BotService) cmdSetStatus(ctx context.Context, in Incoming) error {
	fields := strings.Fields(in.Args)
	if len(fields) != 2 {
		s.send(ctx, in.ChatID, s.format.T("setstatus.usage"), nil)
		return nil
	}
	id, err := support.ParseRequestID(fields[0])
	if err != nil {
		s.send(ctx, in.ChatID, s.format.T("common.id_not_number"), nil)
		return nil
	}
	// completed is reached only through /reply
	status, ok := models.ParseStatus(fields[1])
	if !ok || status == models.StatusCompleted {
		s.send(ctx, in.ChatID, s.format.T("setstatus.usage"), nil)
		return nil
	}

	res, err := s.support.SetStatus(ctx, in.Sender, id, status)
	if errors.Is(err, support.ErrRequestNotFound) {
		s.send(ctx, in.ChatID, s.format.F("reply.not_found", id), nil)
		return nil
	}
	if te, ok := support.AsTransitionError(err); ok {
		s.send(ctx, in.ChatID, s.format.TransitionRejected(te), nil)
		return nil
	}
	if err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.StatusChanged(res.Request), nil)
	return nil
}

func (s *BotService) cmdAdmins(ctx context.Context, in Incoming) error {
	admins, err := s.transport.ChatAdministrators(ctx, s.support.StaffGroupID())
	if err != nil {
		s.log.Warn("failed to load group admins", "chat_id", s.support.StaffGroupID(), "error", err)
		s.send(ctx, in.ChatID, s.format.T("admins.error"), nil)
		return nil
	}
	staff, err := s.support.ListStaff(ctx)
	if err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.Admins(admins, staff), nil)
	return nil
}

func (s *BotService) cmdAddAdmin(ctx context.Context, in Incoming) error {
	rawID, _ := splitFirst(in.Args)
	if rawID == "" {
		s.send(ctx, in.ChatID, s.format.T("addadmin.usage"), nil)
		return nil
	}
	target, err := support.ParseUserID(rawID)
	if err != nil {
		s.send(ctx, in.ChatID, s.format.T("common.id_not_number"), nil)
		return nil
	}
	if err := s.support.AddStaff(ctx, in.Sender.ID, target); err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.F("addadmin.done", target), nil)
	return nil
}

func (s *BotService) cmdRemoveAdmin(ctx context.Context, in Incoming) error {
	rawID, _ := splitFirst(in.Args)
	if rawID == "" {
		s.send(ctx, in.ChatID, s.format.T("removeadmin.usage"), nil)
		return nil
	}
	target, err := support.ParseUserID(rawID)
	if err != nil {
		s.send(ctx, in.ChatID, s.format.T("common.id_not_number"), nil)
		return nil
	}
	removed, err := s.support.RemoveStaff(ctx, target)
	switch {
	case errors.Is(err, support.ErrOwnerImmutable):
		s.send(ctx, in.ChatID, s.format.T("removeadmin.owner"), nil)
		return nil
	case err != nil:
		return err
	case !removed:
		s.send(ctx, in.ChatID, s.format.F("removeadmin.not_found", target), nil)
		return nil
	}
	s.send(ctx, in.ChatID, s.format.F("removeadmin.done", target), nil)
	return nil
}
