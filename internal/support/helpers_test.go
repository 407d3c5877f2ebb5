package support_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/localization"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/support"
	"helpdesk/backend/internal/workhours"

	errors "github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"
)

const (
	ownerID = int64(1)
	groupID = int64(-100500)
)

type fakeGate struct {
	mu         sync.Mutex
	ineligible map[int64]bool
	calls      []int64
}

func newFakeGate() *fakeGate { return &fakeGate{ineligible: map[int64]bool{}} }

func (g *fakeGate) IsEligible(_ context.Context, userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, userID)
	return userID == ownerID || !g.ineligible[userID]
}

func (g *fakeGate) block(ids ...int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.ineligible[id] = true
	}
}

type sent struct {
	ChatID int64
	Text   string
}

type fakeNotifier struct {
	mu       sync.Mutex
	fail     map[int64]bool
	outbox   []sent
	onNotify func()
}

func newFakeNotifier() *fakeNotifier { return &fakeNotifier{fail: map[int64]bool{}} }

func (n *fakeNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.onNotify != nil {
		n.onNotify()
	}
	if n.fail[chatID] {
		return errors.Errorf("Forbidden: bot was blocked by the user %d", chatID)
	}
	n.outbox = append(n.outbox, sent{ChatID: chatID, Text: text})
	return nil
}

func (n *fakeNotifier) to(chatID int64) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, m := range n.outbox {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []dashboard.Event
}

func (p *fakePublisher) Publish(ev dashboard.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakePublisher) types() []dashboard.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dashboard.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	svc      *support.Service
	store    *storage.Service
	gate     *fakeGate
	notifier *fakeNotifier
	events   *fakePublisher
	metrics  *metrics.Metrics
}

// noon is inside the default working window in Tashkent.
var noon = time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, config.BroadcastConfig{Rate: 1000, Burst: 10})
}

func newFixtureWith(t *testing.T, bc config.BroadcastConfig) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := storage.Open(config.DBConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, storage.Migrate(db))

	store := storage.NewStorageService(db, logger.Nop())
	require.NoError(t, store.SeedOwner(context.Background(), ownerID))

	l, err := localization.Default()
	require.NoError(t, err)
	loc, err := time.LoadLocation(config.DefaultTimezone)
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		gate:     newFakeGate(),
		notifier: newFakeNotifier(),
		events:   &fakePublisher{},
		metrics:  metrics.New(),
	}
	f.svc = support.NewService(store, f.gate, f.notifier, f.events, f.metrics, logger.Nop(), support.Options{
		OwnerID:      ownerID,
		StaffGroupID: groupID,
		Schedule:     workhours.New(config.DefaultWorkStartHour, config.DefaultWorkEndHour, loc),
		Broadcast:    bc,
		Lang:         l.Bundle("en"),
		Now:          func() time.Time { return noon },
	})
	return f
}

func (f *fixture) submit(t *testing.T, userID int64, body string) *support.SubmitResult {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), user(userID), body)
	require.NoError(t, err)
	return res
}

func user(id int64) support.Sender {
	return support.Sender{ID: id, Username: fmt.Sprintf("user%d", id), FirstName: fmt.Sprintf("First%d", id)}
}
