// Package telegram connects the support engine to Telegram: it routes inbound
// messages and commands and sends the answers back.
package telegram

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"
	"helpdesk/backend/internal/models"
	"helpdesk/backend/internal/session"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/support"

	errors "github.com/Laisky/errors/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport is what the router needs from the messaging platform.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) error
	ChatAdministrators(ctx context.Context, chatID int64) ([]support.ChatAdmin, error)
}

// Incoming is one inbound text message. Command is set for slash commands,
// without the leading "/" and any "@botname" suffix.
type Incoming struct {
	ChatID  int64
	Private bool
	Sender  support.Sender
	Text    string
	Command string
	Args    string
}

type buttons struct {
	submit, myRequests, hours, help             string
	stats, broadcast, support, search           string
	pending, inProgress, completed, reply, back string
}

type BotService struct {
	BotAPI *tgbotapi.BotAPI

	transport Transport
	support   *support.Service
	sessions  session.Store
	channels  []string
	metrics   *metrics.Metrics
	log       *logger.Logger
	format    *support.Formatter

	btn         buttons
	userMenu    *Keyboard
	adminMenu   *Keyboard
	supportMenu *Keyboard
	baseCtx     context.Context
	background  sync.WaitGroup
}

// NewBotService builds the router. api is only needed by Run and may be nil in tests.
func NewBotService(api *tgbotapi.BotAPI, transport Transport, svc *support.Service, sessions session.Store,
	channels []string, m *metrics.Metrics, log *logger.Logger) *BotService {
	f := svc.Format()
	btn := buttons{
		submit:     f.T("btn.submit"),
		myRequests: f.T("btn.my_requests"),
		hours:      f.T("btn.hours"),
		help:       f.T("btn.help"),
		stats:      f.T("btn.stats"),
		broadcast:  f.T("btn.broadcast"),
		support:    f.T("btn.support"),
		search:     f.T("btn.search"),
		pending:    f.T("btn.pending"),
		inProgress: f.T("btn.in_progress"),
		completed:  f.T("btn.completed"),
		reply:      f.T("btn.reply"),
		back:       f.T("btn.back"),
	}
	return &BotService{
		BotAPI:    api,
		transport: transport,
		support:   svc,
		sessions:  sessions,
		channels:  append([]string(nil), channels...),
		metrics:   m,
		log:       log.With("service", "bot"),
		format:    f,
		btn:       btn,
		userMenu: &Keyboard{Rows: [][]string{
			{btn.submit},
			{btn.myRequests},
			{btn.hours, btn.help},
		}},
		adminMenu: &Keyboard{Rows: [][]string{
			{btn.submit},
			{btn.stats, btn.broadcast},
			{btn.support, btn.search},
			{btn.myRequests, btn.hours},
		}},
		supportMenu: &Keyboard{Rows: [][]string{
			{btn.pending, btn.inProgress},
			{btn.completed, btn.reply},
			{btn.back},
		}},
		baseCtx: context.Background(),
	}
}

// Run consumes updates one at a time until ctx is done.
func (s *BotService) Run(ctx context.Context) {
	s.baseCtx = ctx
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.BotAPI.GetUpdatesChan(u)
	s.log.Info("bot started", "username", s.BotAPI.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			s.BotAPI.StopReceivingUpdates()
			s.background.Wait()
			s.log.Info("bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			in, ok := incomingFrom(update.Message)
			if !ok {
				s.count("ignored")
				continue
			}
			s.HandleUpdate(ctx, in)
		}
	}
}

// Wait blocks until background work such as a running broadcast has finished.
func (s *BotService) Wait() {
	s.background.Wait()
}

func incomingFrom(msg *tgbotapi.Message) (Incoming, bool) {
	if msg == nil || msg.From == nil || msg.Text == "" {
		return Incoming{}, false
	}
	in := Incoming{
		ChatID:  msg.Chat.ID,
		Private: msg.Chat.Type == "private",
		Sender: support.Sender{
			ID:        msg.From.ID,
			Username:  msg.From.UserName,
			FirstName: msg.From.FirstName,
			LastName:  msg.From.LastName,
		},
		Text: msg.Text,
	}
	if msg.IsCommand() {
		in.Command = strings.ToLower(msg.Command())
		in.Args = msg.CommandArguments()
	}
	return in, true
}

// HandleUpdate handles one message. A panic or an unexpected error is logged
// and answered with a generic text; it never stops the loop.
func (s *BotService) HandleUpdate(ctx context.Context, in Incoming) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while handling update", "user_id", in.Sender.ID, "chat_id", in.ChatID,
				"panic", r, "stack", string(debug.Stack()))
			if s.metrics != nil {
				s.metrics.HandlerPanics.Inc()
			}
			s.send(ctx, in.ChatID, s.format.T("error.generic"), nil)
		}
	}()

	var err error
	switch {
	case in.Command != "":
		s.count("command")
		err = s.handleCommand(ctx, in)
	case in.Private:
		s.count("text")
		err = s.HandleMessage(ctx, in)
	default:
		s.count("ignored")
		return
	}
	if err != nil {
		s.log.Error("failed to handle message", "user_id", in.Sender.ID, "chat_id", in.ChatID,
			"command", in.Command, "error", err)
		s.send(ctx, in.ChatID, s.format.T("error.generic"), nil)
	}
}

// HandleMessage routes a private free-text message. The first matching rule wins:
// an open request capture, the owner's open staff flow, the owner's menu, then
// the gated user menu.
func (s *BotService) HandleMessage(ctx context.Context, in Incoming) error {
	s.support.Touch(ctx, in.Sender.ID)

	st, err := s.sessions.Get(ctx, in.Sender.ID)
	if err != nil {
		return err
	}
	if st.Kind == session.KindAwaitingRequestBody {
		return s.handleRequestBody(ctx, in)
	}

	isOwner := in.Sender.ID == s.support.OwnerID()
	if isOwner && !st.IsIdle() {
		return s.handleStaffFlow(ctx, in, st)
	}
	if isOwner {
		return s.handleOwnerButtons(ctx, in)
	}
	return s.handleUserButtons(ctx, in)
}

func (s *BotService) handleRequestBody(ctx context.Context, in Incoming) error {
	res, err := s.support.Submit(ctx, in.Sender, in.Text)
	switch {
	case errors.Is(err, support.ErrNotEligible):
		if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.JoinRequired(in.Sender, s.channels), RemoveKeyboard)
		return nil
	case errors.Is(err, storage.ErrValidation):
		s.send(ctx, in.ChatID, s.format.BodyRejected(err), nil)
		return nil
	case err != nil:
		return err
	}

	if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.SubmitAccepted(in.Sender, res.Request, s.support.Now()), s.menuFor(in.Sender.ID))
	return nil
}

func (s *BotService) handleStaffFlow(ctx context.Context, in Incoming, st session.State) error {
	switch st.Kind {
	case session.KindAwaitingBroadcastText:
		if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.T("broadcast.started"), s.adminMenu)
		s.startBroadcast(in.ChatID, in.Sender.ID, in.Text)
		return nil

	case session.KindAwaitingSearchQuery:
		if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
			return err
		}
		users, err := s.support.SearchUsers(ctx, in.Text)
		if err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.SearchResults(users), s.adminMenu)
		return nil

	case session.KindAwaitingReplyTarget:
		id, err := support.ParseRequestID(in.Text)
		if err != nil {
			if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
				return err
			}
			s.send(ctx, in.ChatID, s.format.T("common.id_not_number"), s.supportMenu)
			return nil
		}
		req, err := s.support.FindRequest(ctx, id)
		if errors.Is(err, support.ErrRequestNotFound) {
			if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
				return err
			}
			s.send(ctx, in.ChatID, s.format.F("reply.not_found", id), s.supportMenu)
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.sessions.Set(ctx, in.Sender.ID, session.AwaitingReplyBody(req.ID)); err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.ReplyTargetFound(req), RemoveKeyboard)
		return nil

	case session.KindAwaitingReplyBody:
		res, err := s.support.Reply(ctx, in.Sender, st.RequestID, in.Text)
		switch {
		case errors.Is(err, support.ErrEmptyText):
			s.send(ctx, in.ChatID, s.format.T("reply.empty"), nil)
			return nil
		case errors.Is(err, support.ErrRequestNotFound):
			if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
				return err
			}
			s.send(ctx, in.ChatID, s.format.F("reply.not_found", st.RequestID), s.supportMenu)
			return nil
		case err != nil:
			return err
		}
		if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.ReplyFlowDone(res), s.supportMenu)
		return nil
	}

	// unknown kinds reset to the menu
	if err := s.sessions.Clear(ctx, in.Sender.ID); err != nil {
		return err
	}
	return s.handleOwnerButtons(ctx, in)
}

// startBroadcast runs the broadcast off the dispatch loop and reports the tally.
func (s *BotService) startBroadcast(chatID, staffID int64, text string) {
	ctx := s.baseCtx
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		b, err := s.support.Broadcast(ctx, staffID, text)
		switch {
		case errors.Is(err, support.ErrEmptyText):
			s.send(ctx, chatID, s.format.T("broadcast.empty"), s.adminMenu)
		case b == nil:
			s.log.Error("broadcast failed", "staff_id", staffID, "error", err)
			s.send(ctx, chatID, s.format.T("broadcast.failed"), s.adminMenu)
		default:
			if err != nil {
				s.log.Warn("broadcast interrupted", "staff_id", staffID, "error", err)
			}
			s.send(context.WithoutCancel(ctx), chatID, s.format.BroadcastDone(b), s.adminMenu)
		}
	}()
}

func (s *BotService) handleOwnerButtons(ctx context.Context, in Incoming) error {
	id := in.Sender.ID
	switch in.Text {
	case s.btn.stats:
		st, err := s.support.Stats(ctx)
		if err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.Stats(st), s.adminMenu)
	case s.btn.broadcast:
		return s.prompt(ctx, in, session.AwaitingBroadcastText(), s.format.T("broadcast.prompt"))
	case s.btn.support:
		counts, err := s.support.CountRequests(ctx, 0)
		if err != nil {
			return err
		}
		s.send(ctx, in.ChatID, s.format.SupportPanel(counts), s.supportMenu)
	case s.btn.search:
		return s.prompt(ctx, in, session.AwaitingSearchQuery(), s.format.T("search.prompt"))
	case s.btn.pending:
		return s.sendSupportList(ctx, in, models.StatusPending)
	case s.btn.inProgress:
		return s.sendSupportList(ctx, in, models.StatusInProgress)
	case s.btn.completed:
		return s.sendSupportList(ctx, in, models.StatusCompleted)
	case s.btn.reply:
		return s.prompt(ctx, in, session.AwaitingReplyTarget(), s.format.T("reply.target_prompt"))
	case s.btn.back:
		s.send(ctx, in.ChatID, s.format.T("admin.panel_short"), s.adminMenu)
	case s.btn.submit:
		return s.prompt(ctx, in, session.AwaitingRequestBody(), s.format.SubmitPrompt(in.Sender, s.support.Now()))
	case s.btn.myRequests:
		return s.sendMyRequests(ctx, in)
	case s.btn.hours:
		s.send(ctx, in.ChatID, s.format.TimeInfo(s.support.Now(), s.channels), s.adminMenu)
	case s.btn.help:
		s.send(ctx, in.ChatID, s.format.Help(in.Sender, true, s.channels), s.adminMenu)
	default:
		s.log.Debug("owner sent unknown text", "user_id", id)
		s.send(ctx, in.ChatID, s.format.T("admin.panel"), s.adminMenu)
	}
	return nil
}

// handleUserButtons checks membership first; an ineligible user only gets the
// join message and keeps whatever state they had.
func (s *BotService) handleUserButtons(ctx context.Context, in Incoming) error {
	if !s.support.IsEligible(ctx, in.Sender.ID) {
		s.send(ctx, in.ChatID, s.format.JoinRequired(in.Sender, s.channels), RemoveKeyboard)
		return nil
	}

	switch in.Text {
	case s.btn.submit:
		return s.prompt(ctx, in, session.AwaitingRequestBody(), s.format.SubmitPrompt(in.Sender, s.support.Now()))
	case s.btn.myRequests:
		return s.sendMyRequests(ctx, in)
	case s.btn.hours:
		s.send(ctx, in.ChatID, s.format.TimeInfo(s.support.Now(), s.channels), s.userMenu)
	case s.btn.help:
		s.send(ctx, in.ChatID, s.format.Help(in.Sender, false, s.channels), s.userMenu)
	default:
		if utf8.RuneCountInString(in.Text) > config.LongMessageThreshold {
			s.send(ctx, in.ChatID, s.format.T("menu.long_text"), s.userMenu)
			return nil
		}
		s.send(ctx, in.ChatID, s.format.MenuFallback(in.Sender), s.userMenu)
	}
	return nil
}

// prompt opens a capture state and asks for its input with the keyboard hidden.
func (s *BotService) prompt(ctx context.Context, in Incoming, st session.State, text string) error {
	if err := s.sessions.Set(ctx, in.Sender.ID, st); err != nil {
		return err
	}
	s.send(ctx, in.ChatID, text, RemoveKeyboard)
	return nil
}

func (s *BotService) sendSupportList(ctx context.Context, in Incoming, status models.RequestStatus) error {
	reqs, err := s.support.ListRequests(ctx, status, config.DefaultPageSize)
	if err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.SupportList(status, reqs), s.supportMenu)
	return nil
}

func (s *BotService) sendMyRequests(ctx context.Context, in Incoming) error {
	ur, err := s.support.UserRequests(ctx, in.Sender.ID)
	if err != nil {
		return err
	}
	s.send(ctx, in.ChatID, s.format.MyRequests(in.Sender, ur), s.menuFor(in.Sender.ID))
	return nil
}

func (s *BotService) menuFor(userID int64) *Keyboard {
	if userID == s.support.OwnerID() {
		return s.adminMenu
	}
	return s.userMenu
}

// send logs delivery failures; the caller has nothing left to undo.
func (s *BotService) send(ctx context.Context, chatID int64, text string, kb *Keyboard) {
	if err := s.transport.SendText(ctx, chatID, text, kb); err != nil {
		s.log.Warn("failed to send message", "chat_id", chatID, "error", err)
	}
}

func (s *BotService) count(kind string) {
	if s.metrics != nil {
		s.metrics.Updates.WithLabelValues(kind).Inc()
	}
}

// splitFirst splits "15 some text" into "15" and "some text", keeping the
// text's own line breaks.
func splitFirst(args string) (string, string) {
	args = strings.TrimSpace(args)
	i := strings.IndexFunc(args, unicode.IsSpace)
	if i < 0 {
		return args, ""
	}
	return args[:i], strings.TrimSpace(args[i:])
}
