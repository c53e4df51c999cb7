package notify

import (
	"fmt"
	"sort"

	"github.com/benmeehan/whereis-agent/pkg/file"
	"github.com/rs/zerolog"
)

// statusDocument is the JSON layout of the status file.
type statusDocument struct {
	Channels      []Channel `json:"channels"`
	Notifications []Entry   `json:"notifications"`
}

// FileNotifier persists the posted notifications to a JSON status file so
// that other processes (status bars, widgets) can render them.
type FileNotifier struct {
	*board
	path       string
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewFileNotifier creates a FileNotifier writing to path.
func NewFileNotifier(path string, fileClient file.FileOperations, logger zerolog.Logger) *FileNotifier {
	return &FileNotifier{
		board:      newBoard(),
		path:       path,
		fileClient: fileClient,
		logger:     logger,
	}
}

func (f *FileNotifier) CreateChannel(ch Channel) error {
	if err := f.createChannel(ch); err != nil {
		return err
	}
	return f.flush()
}

func (f *FileNotifier) Notify(id int, n Notification) error {
	if _, err := f.notify(id, n); err != nil {
		return err
	}
	return f.flush()
}

func (f *FileNotifier) StartForeground(id int) error {
	if err := f.startForeground(id); err != nil {
		return err
	}
	return f.flush()
}

// Cancel removes the notification; the status file is deleted once no
// notification remains.
func (f *FileNotifier) Cancel(id int) error {
	f.cancel(id)
	if len(f.entries()) == 0 {
		return f.fileClient.RemoveFile(f.path)
	}
	return f.flush()
}

func (f *FileNotifier) flush() error {
	f.mu.Lock()
	doc := statusDocument{Channels: make([]Channel, 0, len(f.channels))}
	for _, ch := range f.channels {
		doc.Channels = append(doc.Channels, ch)
	}
	f.mu.Unlock()
	sort.Slice(doc.Channels, func(i, j int) bool { return doc.Channels[i].ID < doc.Channels[j].ID })
	doc.Notifications = f.entries()

	if err := f.fileClient.WriteJsonFile(f.path, doc); err != nil {
		f.logger.Error().Err(err).Str("path", f.path).Msg("Failed to write status file")
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}
