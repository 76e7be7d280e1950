package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/flashbot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	byHour map[int][]models.User
	err    error
	asked  []int
}

func (f *fakeUsers) GetUsersForNotification(_ context.Context, hour int) ([]models.User, error) {
	f.asked = append(f.asked, hour)
	return f.byHour[hour], f.err
}

type fakeReviews struct {
	due    map[int64]int
	err    map[int64]error
	resets int
}

func (f *fakeReviews) DueCount(_ context.Context, userID int64) (int, error) {
	return f.due[userID], f.err[userID]
}

func (f *fakeReviews) ResetDaily() int {
	f.resets++
	return 3
}

type fakeNotifier struct {
	sent map[int64]int
	fail int64
}

func (f *fakeNotifier) SendReminders(userID int64, count int) error {
	if userID == f.fail {
		return errors.New("blocked by user")
	}
	f.sent[userID] = count
	return nil
}

func newTestScheduler(at time.Time) (*Scheduler, *fakeUsers, *fakeReviews, *fakeNotifier) {
	users := &fakeUsers{byHour: map[int][]models.User{
		9: {{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}},
	}}
	reviews := &fakeReviews{
		due: map[int64]int{1: 5, 2: 0, 3: 2, 4: 7},
		err: map[int64]error{3: errors.New("db down")},
	}
	notifier := &fakeNotifier{sent: map[int64]int{}, fail: 4}

	s := New(DefaultConfig(), users, reviews, notifier, nil)
	s.now = func() time.Time { return at }
	return s, users, reviews, notifier
}

func TestReminders(t *testing.T) {
	s, users, _, notifier := newTestScheduler(time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC))

	sent := s.checkAndSendReminders()

	assert.Equal(t, 1, sent)
	assert.Equal(t, []int{9}, users.asked)
	assert.Equal(t, map[int64]int{1: 5}, notifier.sent)
}

func TestRemindersOutsideWindow(t *testing.T) {
	s, users, _, notifier := newTestScheduler(time.Date(2025, 6, 15, 22, 0, 0, 0, time.UTC))

	assert.Equal(t, 0, s.checkAndSendReminders())
	assert.Empty(t, users.asked)
	assert.Empty(t, notifier.sent)
}

func TestRemindersUseConfiguredLocation(t *testing.T) {
	s, users, _, _ := newTestScheduler(time.Date(2025, 6, 15, 6, 0, 0, 0, time.UTC))
	s.config.Location = time.FixedZone("UTC+3", 3*60*60)

	s.checkAndSendReminders()
	assert.Equal(t, []int{9}, users.asked)
}

func TestRemindersUserSourceError(t *testing.T) {
	s, users, _, notifier := newTestScheduler(time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC))
	users.err = errors.New("db down")

	assert.Equal(t, 0, s.checkAndSendReminders())
	assert.Empty(t, notifier.sent)
}

func TestNotificationWindowBounds(t *testing.T) {
	s, _, _, _ := newTestScheduler(time.Now())

	assert.False(t, s.inNotificationWindow(3))
	assert.True(t, s.inNotificationWindow(4))
	assert.True(t, s.inNotificationWindow(18))
	assert.False(t, s.inNotificationWindow(19))
}

func TestDailyReset(t *testing.T) {
	s, _, reviews, _ := newTestScheduler(time.Now())
	s.resetDailyProgress()
	assert.Equal(t, 1, reviews.resets)
}

func TestRunManualCheck(t *testing.T) {
	s, _, _, notifier := newTestScheduler(time.Now())
	ctx := context.Background()

	require.NoError(t, s.RunManualCheck(ctx, 1))
	require.NoError(t, s.RunManualCheck(ctx, 2))
	assert.Error(t, s.RunManualCheck(ctx, 3))
	assert.Equal(t, map[int64]int{1: 5}, notifier.sent)
}

func TestStartRegistersJobs(t *testing.T) {
	s, _, _, _ := newTestScheduler(time.Now())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Len(t, s.scheduler.Jobs(), 2)
}

func TestStartRejectsBadResetTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyResetAt = "nope"
	s := New(cfg, &fakeUsers{}, &fakeReviews{}, &fakeNotifier{sent: map[int64]int{}}, nil)

	assert.Error(t, s.Start())
}
