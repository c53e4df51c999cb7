package notify

import (
	"time"

	"github.com/rs/zerolog"
)

// LogNotifier renders notifications as structured log lines.
type LogNotifier struct {
	*board
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{board: newBoard(), logger: logger}
}

func (l *LogNotifier) CreateChannel(ch Channel) error {
	if err := l.createChannel(ch); err != nil {
		return err
	}
	l.logger.Debug().Str("channel", ch.ID).Str("name", ch.Name).Msg("Notification channel registered")
	return nil
}

func (l *LogNotifier) Notify(id int, n Notification) error {
	if _, err := l.notify(id, n); err != nil {
		return err
	}
	l.logger.Info().
		Int("notification_id", id).
		Str("channel", n.ChannelID).
		Str("title", n.Title).
		Str("body", n.Body).
		Msg("Updating notification")
	return nil
}

func (l *LogNotifier) StartForeground(id int) error {
	if err := l.startForeground(id); err != nil {
		return err
	}
	l.logger.Info().Int("notification_id", id).Msg("Entered foreground")
	return nil
}

func (l *LogNotifier) Cancel(id int) error {
	l.cancel(id)
	l.logger.Debug().Int("notification_id", id).Msg("Notification cancelled")
	return nil
}

// Entries returns the currently posted notifications.
func (l *LogNotifier) Entries() []Entry {
	return l.entries()
}

// LogToaster logs transient messages.
type LogToaster struct {
	logger zerolog.Logger
}

// NewLogToaster creates a LogToaster.
func NewLogToaster(logger zerolog.Logger) *LogToaster {
	return &LogToaster{logger: logger}
}

// Show logs text as a transient message.
func (t *LogToaster) Show(text string, duration time.Duration) {
	t.logger.Info().Str("text", text).Dur("duration", duration).Msg("Toast")
}
