package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/example/flashbot/pkg/models"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Default notification settings
const (
	DefaultNotificationStartHour = 4
	DefaultNotificationEndHour   = 18
	DefaultDailyResetAt          = "00:00"
)

const jobTimeout = time.Minute

// Config controls when jobs run
type Config struct {
	NotificationStartHour int
	NotificationEndHour   int
	DailyResetAt          string // HH:MM
	Location              *time.Location
}

// DefaultConfig returns the default schedule in UTC
func DefaultConfig() Config {
	return Config{
		NotificationStartHour: DefaultNotificationStartHour,
		NotificationEndHour:   DefaultNotificationEndHour,
		DailyResetAt:          DefaultDailyResetAt,
		Location:              time.UTC,
	}
}

// Notifier interface for sending notifications
type Notifier interface {
	SendReminders(userID int64, count int) error
}

// UserSource lists the users that want a reminder at an hour
type UserSource interface {
	GetUsersForNotification(ctx context.Context, hour int) ([]models.User, error)
}

// Reviews reports due cards and starts new days of progress
type Reviews interface {
	DueCount(ctx context.Context, userID int64) (int, error)
	ResetDaily() int
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	config    Config
	users     UserSource
	reviews   Reviews
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
}

// New creates a new scheduler instance
func New(config Config, users UserSource, reviews Reviews, notifier Notifier, log *zap.Logger) *Scheduler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := gocron.NewScheduler(config.Location)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		config:    config,
		users:     users,
		reviews:   reviews,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	// Hourly check for users who need notifications
	if _, err := s.scheduler.Every(1).Hour().Do(s.checkAndSendReminders); err != nil {
		return fmt.Errorf("failed to schedule reminders: %w", err)
	}

	if _, err := s.scheduler.Every(1).Day().At(s.config.DailyResetAt).Do(s.resetDailyProgress); err != nil {
		return fmt.Errorf("failed to schedule daily reset: %w", err)
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	s.log.Info("scheduler started",
		zap.Int("jobs", len(s.scheduler.Jobs())),
		zap.String("daily_reset_at", s.config.DailyResetAt),
		zap.String("location", s.config.Location.String()))
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// inNotificationWindow reports whether reminders may be sent at hour
func (s *Scheduler) inNotificationWindow(hour int) bool {
	return hour >= s.config.NotificationStartHour && hour <= s.config.NotificationEndHour
}

// checkAndSendReminders notifies users whose reminder hour is now and who have
// due cards. It returns the number of reminders sent.
func (s *Scheduler) checkAndSendReminders() int {
	currentHour := s.now().In(s.config.Location).Hour()

	if !s.inNotificationWindow(currentHour) {
		s.log.Debug("outside notification hours, skipping reminders",
			zap.Int("hour", currentHour),
			zap.Int("start", s.config.NotificationStartHour),
			zap.Int("end", s.config.NotificationEndHour))
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	users, err := s.users.GetUsersForNotification(ctx, currentHour)
	if err != nil {
		s.log.Error("failed to get users for notification", zap.Error(err))
		return 0
	}

	sent := 0
	for _, user := range users {
		due, err := s.reviews.DueCount(ctx, user.ID)
		if err != nil {
			s.log.Error("failed to count due cards", zap.Int64("user", user.ID), zap.Error(err))
			continue
		}
		if due == 0 {
			continue
		}
		if err := s.notifier.SendReminders(user.ID, due); err != nil {
			s.log.Error("failed to send reminder", zap.Int64("user", user.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (s *Scheduler) resetDailyProgress() {
	n := s.reviews.ResetDaily()
	s.log.Info("daily progress reset", zap.Int("users", n))
}

// RunManualCheck forces a check for a specific user
func (s *Scheduler) RunManualCheck(ctx context.Context, userID int64) error {
	due, err := s.reviews.DueCount(ctx, userID)
	if err != nil {
		return err
	}
	if due > 0 {
		return s.notifier.SendReminders(userID, due)
	}
	return nil
}
