package config

import "time"

const (
	// Request body
	MinRequestBodyLength = 5
	MaxRequestBodyLength = 2000
	// Unsolicited text longer than this is redirected to the submit flow instead of the help menu.
	LongMessageThreshold = 1000

	// Listing
	DefaultPageSize   = 10
	MaxPageSize       = 20
	UserRequestsLimit = 10
	SearchResultLimit = 10
	StaffListLimit    = 10

	// Truncation prefixes (runes)
	PreviewShort  = 50
	PreviewList   = 80
	PreviewMedium = 100
	PreviewReply  = 150
	PreviewDetail = 300

	// Telegram rejects messages longer than this many UTF-16 code units.
	MaxMessageLength = 4096

	// Working hours defaults
	DefaultWorkStartHour = 9
	DefaultWorkEndHour   = 18
	DefaultTimezone      = "Asia/Tashkent"

	// Broadcast defaults. A limit of 0 means every known user.
	DefaultBroadcastLimit = 0
	DefaultBroadcastRate  = 5.0
	DefaultBroadcastBurst = 5

	// Session
	DefaultSessionTTL = 30 * time.Minute

	// Retention
	DefaultRetentionCron = "0 3 * * *"
	DefaultRetentionDays = 30

	// Keep-alive
	DefaultKeepAliveInterval = 270 * time.Second
	DefaultHTTPAddr          = ":10000"

	DashboardTokenTTL = 72 * time.Hour
)
