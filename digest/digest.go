// Package digest sends subscribed users their agenda on a cron schedule.
package digest

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"schedbot/calendar"
)

// Notifier delivers one digest message to a user. The Discord surface plugs
// in here; tests use a recording stub.
type Notifier func(userID, text string) error

type Scheduler struct {
	client   *calendar.Client
	notify   Notifier
	logger   *log.Logger
	schedule string

	cron *cron.Cron

	mu          sync.Mutex
	subscribers map[string]bool
}

// NewScheduler builds a digest scheduler. schedule is a cron expression; the
// default "0 7 * * *" sends digests at 07:00 every day.
func NewScheduler(client *calendar.Client, notify Notifier, schedule string) *Scheduler {
	if schedule == "" {
		schedule = "0 7 * * *"
	}
	return &Scheduler{
		client:      client,
		notify:      notify,
		logger:      log.New(os.Stdout, "[Digest] ", log.LstdFlags),
		schedule:    schedule,
		subscribers: make(map[string]bool),
	}
}

// Subscribe adds a user to the daily digest. Returns false if they already
// were subscribed.
func (s *Scheduler) Subscribe(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[userID] {
		return false
	}
	s.subscribers[userID] = true
	return true
}

// Unsubscribe removes a user. Returns false if they were not subscribed.
func (s *Scheduler) Unsubscribe(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribers[userID] {
		return false
	}
	delete(s.subscribers, userID)
	return true
}

func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Printf("digest scheduled: %s", s.schedule)
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce sends today's agenda to every subscriber. Exposed so a bot command
// can trigger it on demand.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	users := make([]string, 0, len(s.subscribers))
	for userID := range s.subscribers {
		users = append(users, userID)
	}
	s.mu.Unlock()
	sort.Strings(users)

	if len(users) == 0 {
		return
	}

	today := time.Now().Format("2006-01-02")
	result := s.client.ListEvents(today, 1)
	text := fmt.Sprintf("Good morning! Here is your agenda for %s:\n%s", today, result.Message)

	for _, userID := range users {
		if err := s.notify(userID, text); err != nil {
			s.logger.Printf("failed to notify %s: %v", userID, err)
		}
	}
}
