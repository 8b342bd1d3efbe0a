package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"snapsync/internal/snap"
)

// CommandSaver runs a shell command before collection, e.g. to make an
// editor flush unsaved work to disk. The command runs in the source root.
type CommandSaver struct {
	command string
	dir     string
	logger  snap.Logger
}

var _ snap.Saver = (*CommandSaver)(nil)

// NewCommandSaver creates a CommandSaver for command, run in dir.
func NewCommandSaver(command, dir string, logger snap.Logger) *CommandSaver {
	return &CommandSaver{command: command, dir: dir, logger: logger}
}

func (s *CommandSaver) Save(ctx context.Context) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", s.command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", s.command)
	}
	cmd.Dir = s.dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	s.logger.Debug("running pre-snapshot hook", "command", s.command, "dir", s.dir)
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("hook %q: %w: %s", s.command, err, msg)
		}
		return fmt.Errorf("hook %q: %w", s.command, err)
	}
	if msg := strings.TrimSpace(out.String()); msg != "" {
		s.logger.Debug("pre-snapshot hook output", "output", msg)
	}
	return nil
}
