package support

import (
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/localization"
	"helpdesk/backend/internal/models"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/workhours"

	errors "github.com/Laisky/errors/v2"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02 15:04"
	hourLayout = "15:04"
)

// Truncate cuts s to n characters and marks the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// ChatAdmin is an administrator of the staff group as reported by the transport.
type ChatAdmin struct {
	UserID  int64
	Name    string
	Creator bool
}

// Formatter renders every user-visible text in one language.
type Formatter struct {
	lang  localization.Bundle
	sched workhours.Schedule
}

func NewFormatter(lang localization.Bundle, sched workhours.Schedule) *Formatter {
	return &Formatter{lang: lang, sched: sched}
}

func (f *Formatter) T(key string) string { return f.lang.T(key) }

func (f *Formatter) F(key string, args ...interface{}) string { return f.lang.F(key, args...) }

func (f *Formatter) Time(t time.Time) string { return f.sched.Local(t).Format(timeLayout) }

func (f *Formatter) Date(t time.Time) string { return f.sched.Local(t).Format(dateLayout) }

func (f *Formatter) StatusLabel(s models.RequestStatus) string {
	if !s.Valid() {
		return f.T("common.unknown")
	}
	return f.T("status." + string(s))
}

func (f *Formatter) Estimate(now time.Time) string {
	if f.sched.Estimate(now) == workhours.EstimateFast {
		return f.T("estimate.fast")
	}
	next := f.sched.NextOpening(now)
	local := f.sched.Local(now)
	if next.YearDay() == local.YearDay() && next.Year() == local.Year() {
		return f.F("estimate.next_today", next.Format(hourLayout))
	}
	return f.F("estimate.next_tomorrow", next.Format(hourLayout))
}

func (f *Formatter) Hours(now time.Time) string {
	if f.sched.IsOpen(now) {
		return f.T("hours.open")
	}
	return f.F("hours.closed", f.sched.Window())
}

func (f *Formatter) JoinRequired(sender Sender, channels []string) string {
	var block strings.Builder
	for _, ch := range channels {
		block.WriteString(f.F("join.channel", ch))
	}
	return f.F("join.required", sender.Name(), block.String())
}

func channelList(channels []string) string {
	if len(channels) == 0 {
		return "-"
	}
	tagged := make([]string, len(channels))
	for i, ch := range channels {
		tagged[i] = "@" + ch
	}
	return strings.Join(tagged, ", ")
}

func (f *Formatter) StartOwner(sender Sender, now time.Time) string {
	return f.F("start.owner", sender.Name(), f.Time(now), f.Hours(now))
}

func (f *Formatter) StartUser(sender Sender, now time.Time, counts storage.RequestCounts) string {
	var b strings.Builder
	b.WriteString(f.F("start.user", sender.Name(), f.Time(now), f.Hours(now)))
	if counts.Total > 0 {
		b.WriteString(f.F("start.user_stats", counts.Total, counts.Pending, counts.Completed))
	} else {
		b.WriteString(f.T("start.new_user"))
	}
	b.WriteString(f.T("start.commands"))
	return b.String()
}

func (f *Formatter) TimeInfo(now time.Time, channels []string) string {
	return f.F("time.info", f.Time(now), f.sched.Location.String(), f.sched.Window(),
		channelList(channels), f.Hours(now), f.Estimate(now))
}

func (f *Formatter) Help(sender Sender, owner bool, channels []string) string {
	ownerLine := ""
	if owner {
		ownerLine = f.T("help.owner_line")
	}
	return f.F("help.text", sender.Name(), ownerLine, channelList(channels), f.sched.Window())
}

func (f *Formatter) MenuFallback(sender Sender) string {
	return f.F("menu.fallback", sender.Name())
}

func (f *Formatter) SubmitPrompt(sender Sender, now time.Time) string {
	return f.F("submit.prompt", sender.Name(), f.Estimate(now), f.sched.Window())
}

func (f *Formatter) SubmitAccepted(sender Sender, req *models.Request, now time.Time) string {
	return f.F("submit.accepted", sender.Name(), req.ID, f.Estimate(now))
}

// BodyRejected explains a failed length check. Other errors get the generic text.
func (f *Formatter) BodyRejected(err error) string {
	switch {
	case errors.Is(err, ErrBodyTooShort):
		return f.F("submit.too_short", config.MinRequestBodyLength)
	case errors.Is(err, ErrBodyTooLong):
		return f.F("submit.too_long", config.MaxRequestBodyLength)
	}
	return f.T("error.generic")
}

func fullName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.DisplayName()
	}
	return name
}

func (f *Formatter) handle(username string) string {
	if username == "" {
		return f.T("common.missing")
	}
	return "@" + username
}

// NewRequestNotice is posted to the staff group and embeds the id for /reply.
// The body is cut when the notice would not fit in one message; /requestinfo
// still shows it in full.
func (f *Formatter) NewRequestNotice(req *models.Request, sender Sender) string {
	render := func(body string) string {
		return f.F("staff.new_request", req.ID, fullName(sender.User()), sender.ID,
			f.handle(sender.Username), f.Time(req.CreatedAt), body)
	}
	msg := render(req.Body)
	over := utf16Len(msg) - config.MaxMessageLength
	if over <= 0 {
		return msg
	}

	const marker = "..."
	runes := []rune(req.Body)
	cut, dropped := len(runes), 0
	for cut > 0 && dropped < over+len(marker) {
		cut--
		dropped += utf16.RuneLen(runes[cut])
	}
	return render(string(runes[:cut]) + marker)
}

// utf16Len counts s the way Telegram measures message length.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func (f *Formatter) ReplyToUser(requestID uint, text string, staff Sender) string {
	return f.F("reply.to_user", requestID, text, staff.Name())
}

func (f *Formatter) ReplyConfirm(res *ReplyResult, staff Sender) string {
	if !res.Delivered {
		return f.F("reply.saved_not_delivered", res.Request.ID)
	}
	return f.F("reply.confirm", res.Request.ID, res.RequesterName, staff.Name(),
		Truncate(res.Reply.Text, config.PreviewMedium))
}

func (f *Formatter) ReplyFlowDone(res *ReplyResult) string {
	line := f.T("reply.flow_not_delivered")
	if res.Delivered {
		line = f.T("reply.flow_delivered")
	}
	status := res.Request.Status.Emoji() + " " + f.StatusLabel(res.Request.Status)
	return f.F("reply.flow_done", res.Request.ID, status, line)
}

func (f *Formatter) ReplyTargetFound(req *models.Request) string {
	return f.F("reply.target_found", req.ID, requester(req), Truncate(req.Body, config.PreviewDetail))
}

func requester(req *models.Request) string {
	if req.User != nil {
		return req.User.DisplayName()
	}
	return (&models.User{ID: req.UserID}).DisplayName()
}

func (f *Formatter) StatusNotice(requestID uint) string {
	return f.F("setstatus.user_notice", requestID)
}

func (f *Formatter) StatusChanged(req *models.Request) string {
	return f.F("setstatus.done", req.ID, req.Status.Emoji(), f.StatusLabel(req.Status))
}

func (f *Formatter) TransitionRejected(e *TransitionError) string {
	return f.F("setstatus.invalid", e.RequestID, f.StatusLabel(e.To), f.StatusLabel(e.From))
}

func (f *Formatter) BroadcastMessage(text string) string {
	return f.F("broadcast.message", text)
}

func (f *Formatter) BroadcastDone(b *models.Broadcast) string {
	return f.F("broadcast.done", b.Sent, b.Failed, b.Skipped)
}

func (f *Formatter) MyRequests(sender Sender, ur *UserRequests) string {
	if len(ur.Requests) == 0 {
		return f.F("myrequests.empty", sender.Name())
	}
	var b strings.Builder
	b.WriteString(f.F("myrequests.header", sender.Name(), ur.Counts.Total))
	for i := range ur.Requests {
		req := &ur.Requests[i]
		b.WriteString(f.F("myrequests.item", req.Status.Emoji(), req.ID,
			Truncate(req.Body, config.PreviewMedium), f.StatusLabel(req.Status), f.Date(req.CreatedAt)))
		if last := req.LastReply(); last != nil {
			b.WriteString(f.F("myrequests.reply", Truncate(last.Text, config.PreviewReply)))
		}
		b.WriteString("\n")
	}
	b.WriteString(f.F("myrequests.footer", ur.Counts.Pending, ur.Counts.Completed, ur.Counts.Total))
	return b.String()
}

func (f *Formatter) SupportPanel(c storage.RequestCounts) string {
	return f.F("support.panel", c.Pending, c.InProgress, c.Completed)
}

// SupportList renders one status column of the support panel.
func (f *Formatter) SupportList(status models.RequestStatus, reqs []models.Request) string {
	prefix := "support." + string(status)
	if len(reqs) == 0 {
		return f.T(prefix + "_empty")
	}
	var b strings.Builder
	if status == models.StatusCompleted {
		b.WriteString(f.F(prefix+"_header", len(reqs)))
	} else {
		b.WriteString(f.T(prefix + "_header"))
	}
	for i := range reqs {
		req := &reqs[i]
		if status == models.StatusCompleted {
			b.WriteString(f.F("support.item_done", req.ID, requester(req),
				Truncate(req.Body, config.PreviewShort), f.Date(req.UpdatedAt)))
		} else {
			b.WriteString(f.F("support.item", req.ID, requester(req),
				Truncate(req.Body, config.PreviewList), f.Date(req.CreatedAt)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (f *Formatter) AllRequests(reqs []models.Request) string {
	if len(reqs) == 0 {
		return f.T("allrequests.empty")
	}
	var b strings.Builder
	b.WriteString(f.F("allrequests.header", len(reqs)))
	for i := range reqs {
		req := &reqs[i]
		b.WriteString(f.F("allrequests.item", req.Status.Emoji(), req.ID, requester(req),
			Truncate(req.Body, config.PreviewShort), f.Date(req.CreatedAt)))
		b.WriteString("\n")
	}
	return b.String()
}

func (f *Formatter) RequestInfo(req *models.Request) string {
	var b strings.Builder
	b.WriteString(f.F("requestinfo.text", req.ID, req.Status.Emoji(), f.StatusLabel(req.Status),
		requester(req), req.UserID, f.Time(req.CreatedAt), Truncate(req.Body, config.PreviewDetail), len(req.Replies)))
	if last := req.LastReply(); last != nil {
		b.WriteString(f.F("requestinfo.last_reply", Truncate(last.Text, config.PreviewReply)))
	}
	return b.String()
}

func (f *Formatter) Stats(st *storage.Stats) string {
	return f.F("stats.text", st.TotalUsers, st.TodayUsers, st.Requests.Total, st.TodayRequests,
		st.Requests.Pending, st.Requests.InProgress, st.Requests.Completed)
}

func (f *Formatter) SearchResults(users []models.User) string {
	if len(users) == 0 {
		return f.T("search.empty")
	}
	var b strings.Builder
	b.WriteString(f.F("search.header", len(users)))
	for i := range users {
		u := &users[i]
		b.WriteString(f.F("search.item", u.ID, f.handle(u.Username), orMissing(f, u.FirstName),
			orMissing(f, u.LastName), f.Date(u.JoinedAt)))
		b.WriteString("\n")
	}
	return b.String()
}

func orMissing(f *Formatter, s string) string {
	if s == "" {
		return f.T("common.missing")
	}
	return s
}

// Admins merges the group's administrators with the staff table.
func (f *Formatter) Admins(admins []ChatAdmin, staff []storage.StaffMember) string {
	var b strings.Builder
	b.WriteString(f.T("admins.header"))
	for _, a := range admins {
		label := f.T("admins.admin")
		if a.Creator {
			label = f.T("admins.creator")
		}
		b.WriteString(f.F("admins.item", label, a.Name, a.UserID))
	}
	if len(staff) > 0 {
		b.WriteString(f.T("admins.staff_header"))
		for _, m := range staff {
			b.WriteString(f.F("admins.staff_item", m.DisplayName()))
		}
	}
	return b.String()
}
