// Package notify models the platform notification surface: channels, a
// persistent foreground indicator and transient messages.
package notify

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownChannel is returned when posting to an unregistered channel.
	ErrUnknownChannel = errors.New("notification channel not registered")
	// ErrIndicatorMissing is returned by StartForeground when no notification
	// with the given id has been posted.
	ErrIndicatorMissing = errors.New("foreground notification not posted")
)

// Importance of a channel's notifications.
type Importance int

const (
	ImportanceLow Importance = iota
	ImportanceDefault
	ImportanceHigh
)

// Channel groups notifications under a user visible category.
type Channel struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
}

// Notification is a single notification entry.
type Notification struct {
	ChannelID string    `json:"channel_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Target    string    `json:"target,omitempty"` // Opened when the entry is activated
	Ongoing   bool      `json:"ongoing"`
	PostedAt  time.Time `json:"posted_at"`
}

// Notifier posts and updates notifications.
type Notifier interface {
	// CreateChannel registers a channel. Registering an existing id is a no-op update.
	CreateChannel(ch Channel) error
	// Notify posts or replaces the notification with id.
	Notify(id int, n Notification) error
	// StartForeground marks the posted notification id as the foreground indicator.
	StartForeground(id int) error
	// Cancel removes the notification with id.
	Cancel(id int) error
}

// Toaster shows transient, auto dismissing messages.
type Toaster interface {
	Show(text string, duration time.Duration)
}

// Entry is a posted notification together with its id.
type Entry struct {
	ID         int          `json:"id"`
	Foreground bool         `json:"foreground"`
	Notification
}

// board holds the notification state shared by the Notifier implementations.
type board struct {
	mu         sync.Mutex
	channels   map[string]Channel
	posted     map[int]Notification
	foreground int
	now        func() time.Time
}

func newBoard() *board {
	return &board{
		channels:   make(map[string]Channel),
		posted:     make(map[int]Notification),
		foreground: -1,
		now:        time.Now,
	}
}

func (b *board) createChannel(ch Channel) error {
	if ch.ID == "" {
		return errors.New("channel id is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[ch.ID] = ch
	return nil
}

func (b *board) notify(id int, n Notification) (Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.channels[n.ChannelID]; !ok {
		return Notification{}, fmt.Errorf("%w: %q", ErrUnknownChannel, n.ChannelID)
	}
	n.PostedAt = b.now()
	b.posted[id] = n
	return n, nil
}

func (b *board) startForeground(id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.posted[id]; !ok {
		return fmt.Errorf("%w: id %d", ErrIndicatorMissing, id)
	}
	b.foreground = id
	return nil
}

func (b *board) cancel(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.posted, id)
	if b.foreground == id {
		b.foreground = -1
	}
}

// entries returns the posted notifications ordered by id.
func (b *board) entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.posted))
	for id, n := range b.posted {
		out = append(out, Entry{ID: id, Foreground: id == b.foreground, Notification: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
