package bridge

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ExternalOpener hands URLs to the desktop's default handler.
type ExternalOpener struct {
	command string
	logger  zerolog.Logger
}

// NewExternalOpener creates an opener running command with the URL as its
// only argument, e.g. "xdg-open".
func NewExternalOpener(command string, logger zerolog.Logger) *ExternalOpener {
	return &ExternalOpener{command: command, logger: logger}
}

// validateTarget accepts absolute URLs only. The URL is passed to the
// handler as an argument, so it must not look like an option.
func validateTarget(target string) error {
	if strings.HasPrefix(target, "-") {
		return fmt.Errorf("refusing to open %q: looks like a command option", target)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", target, err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("refusing to open %q: url has no scheme", target)
	}
	return nil
}

// Open launches the handler without waiting for it to exit. The handler
// outlives ctx, which only aborts the launch itself.
func (o *ExternalOpener) Open(ctx context.Context, target string) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(o.command, target)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", o.command, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			o.logger.Warn().Err(err).Str("url", target).Msg("External handler exited with error")
		}
	}()
	return nil
}
