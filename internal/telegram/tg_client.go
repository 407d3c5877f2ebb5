package telegram

import (
	"context"
	"encoding/json"
	"strconv"

	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/support"

	errors "github.com/Laisky/errors/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of *tgbotapi.BotAPI the client needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Keyboard describes the reply keyboard sent along with a message.
// A nil *Keyboard leaves the user's current keyboard untouched.
type Keyboard struct {
	Rows   [][]string
	Remove bool
}

// RemoveKeyboard hides the reply keyboard.
var RemoveKeyboard = &Keyboard{Remove: true}

func (k *Keyboard) markup() interface{} {
	if k == nil {
		return nil
	}
	if k.Remove {
		return tgbotapi.NewRemoveKeyboard(true)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(k.Rows))
	for _, labels := range k.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, label := range labels {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// Client is the outbound side of the bot: plain text messages and chat member lookups.
type Client struct {
	api BotAPI
	log *logger.Logger
}

func NewClient(api BotAPI, log *logger.Logger) *Client {
	return &Client{api: api, log: log.With("service", "telegram_client")}
}

// SendText sends text to chatID with an optional reply keyboard.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb *Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := kb.markup(); markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := c.api.Send(msg); err != nil {
		c.log.Debug("send failed", "chat_id", chatID, "error", err)
		return errors.Wrapf(err, "send message to %d", chatID)
	}
	return nil
}

// Notify implements support.Notifier.
func (c *Client) Notify(ctx context.Context, chatID int64, text string) error {
	return c.SendText(ctx, chatID, text, nil)
}

// MemberStatus implements membership.Directory. channel is a public username
// (without "@") or a numeric chat id.
func (c *Client) MemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := tgbotapi.Params{
		"chat_id": chatRef(channel),
		"user_id": strconv.FormatInt(userID, 10),
	}
	resp, err := c.api.MakeRequest("getChatMember", params)
	if err != nil {
		return "", errors.Wrapf(err, "get member %d of %s", userID, channel)
	}

	var member tgbotapi.ChatMember
	if err := json.Unmarshal(resp.Result, &member); err != nil {
		return "", errors.Wrap(err, "decode chat member")
	}
	return member.Status, nil
}

// ChatAdministrators lists the administrators of chatID.
func (c *Client) ChatAdministrators(ctx context.Context, chatID int64) ([]support.ChatAdmin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := tgbotapi.Params{"chat_id": strconv.FormatInt(chatID, 10)}
	resp, err := c.api.MakeRequest("getChatAdministrators", params)
	if err != nil {
		return nil, errors.Wrapf(err, "get administrators of %d", chatID)
	}

	var members []tgbotapi.ChatMember
	if err := json.Unmarshal(resp.Result, &members); err != nil {
		return nil, errors.Wrap(err, "decode chat administrators")
	}
	admins := make([]support.ChatAdmin, 0, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		admins = append(admins, support.ChatAdmin{
			UserID:  m.User.ID,
			Name:    userName(m.User),
			Creator: m.Status == "creator",
		})
	}
	return admins, nil
}

func chatRef(channel string) string {
	if _, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return channel
	}
	return "@" + channel
}

func userName(u *tgbotapi.User) string {
	switch {
	case u.UserName != "":
		return "@" + u.UserName
	case u.FirstName != "":
		return u.FirstName
	}
	return strconv.FormatInt(u.ID, 10)
}
