package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"devpipe/internal/logger"
	"devpipe/pkg/model"
)

// Session is the surface the shell drives. Commands call these entry
// points only; the shell contains no processing logic.
type Session interface {
	StartLogging(logPath string)
	Resume()
	Pause()
	IsLogging() bool
}

// Target manages the log file the session writes to.
type Target interface {
	NewTarget(prefix string) (string, error)
	Path() string
}

// Transport exposes the browser-side target operations.
type Transport interface {
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)
	SwitchTarget(ctx context.Context, id string) error
}

// Shell is the interactive command loop:
// run/wait/new/targets/switch/quit.
type Shell struct {
	session   Session
	target    Target
	transport Transport
	log       logger.Logger
}

func New(session Session, target Target, transport Transport, l logger.Logger) *Shell {
	if l == nil {
		l = logger.NewNop()
	}
	return &Shell{session: session, target: target, transport: transport, log: l}
}

const usage = `Commands:
  run [prefix]      - Start or resume logging.
  wait              - Pause logging.
  new [prefix]      - Create a new log file and start.
  targets           - List attachable browser tabs.
  switch <n|id>     - Move the session to another tab.
  quit              - Exit.`

// Run reads commands until quit, EOF or context cancellation.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, usage)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}
		// only the command word is case-insensitive; arguments such as
		// target ids keep their case
		command := strings.ToLower(parts[0])
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		switch command {
		case "run":
			if err := s.run(out, arg); err != nil {
				fmt.Fprintf(out, "failed to start logging: %v\n", err)
			}
		case "wait":
			s.session.Pause()
			fmt.Fprintln(out, "Logging paused.")
		case "new":
			if err := s.newTarget(out, arg); err != nil {
				fmt.Fprintf(out, "failed to create log file: %v\n", err)
			}
		case "targets":
			if err := s.listTargets(ctx, out); err != nil {
				fmt.Fprintf(out, "failed to list targets: %v\n", err)
			}
		case "switch":
			if err := s.switchTarget(ctx, out, arg); err != nil {
				fmt.Fprintf(out, "failed to switch target: %v\n", err)
			}
		case "quit":
			return nil
		default:
			fmt.Fprintln(out, "Unknown command.")
		}
	}
}

// run starts logging, creating a target first when none exists yet.
// Resuming an existing target does not record a new session start.
func (s *Shell) run(out io.Writer, prefix string) error {
	if s.target.Path() == "" {
		path, err := s.target.NewTarget(prefix)
		if err != nil {
			return err
		}
		s.session.StartLogging(path)
	} else {
		s.session.Resume()
	}
	fmt.Fprintf(out, "Logging is active. Saving to: %s\n", s.target.Path())
	return nil
}

func (s *Shell) newTarget(out io.Writer, prefix string) error {
	path, err := s.target.NewTarget(prefix)
	if err != nil {
		return err
	}
	s.session.StartLogging(path)
	fmt.Fprintf(out, "New log file created. Saving to: %s\n", path)
	return nil
}

func (s *Shell) listTargets(ctx context.Context, out io.Writer) error {
	targets, err := s.transport.ListTargets(ctx)
	if err != nil {
		return err
	}
	for i, t := range targets {
		marker := "  "
		if t.IsCurrent {
			marker = "* "
		}
		fmt.Fprintf(out, "%s%d. [%s] %s (%s)\n", marker, i+1, t.Type, t.Title, t.URL)
	}
	return nil
}

// switchTarget accepts either a number from the targets listing or a
// raw target id.
func (s *Shell) switchTarget(ctx context.Context, out io.Writer, arg string) error {
	if arg == "" {
		return fmt.Errorf("usage: switch <number|id>")
	}
	id := arg
	if n, err := strconv.Atoi(arg); err == nil {
		targets, err := s.transport.ListTargets(ctx)
		if err != nil {
			return err
		}
		if n < 1 || n > len(targets) {
			return fmt.Errorf("no target number %d", n)
		}
		id = string(targets[n-1].ID)
	}
	if err := s.transport.SwitchTarget(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Switching to target: %s\n", id)
	return nil
}
