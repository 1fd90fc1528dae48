package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/campusbridge/discovery/config"
)

// Local spawns the discovery engine as a subprocess with unbuffered output
// and an explicit argument list.
type Local struct {
	cfg    config.EngineConfig
	logger *log.Logger
}

// NewLocal builds a subprocess launcher from engine config.
func NewLocal(cfg config.EngineConfig) *Local {
	return &Local{cfg: cfg, logger: log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)}
}

// Start spawns the engine. Termination escalates: SIGTERM first, SIGKILL
// after the configured grace period if the process ignores it.
func (l *Local) Start(ctx context.Context, opts Options) (*Session, error) {
	if l.cfg.Command == "" {
		return nil, &StartError{Err: fmt.Errorf("engine.command not configured")}
	}
	args := append([]string{}, l.cfg.Args...)
	args = append(args, buildArgs(opts)...)

	cmd := exec.Command(l.cfg.Command, args...)
	cmd.Dir = l.cfg.WorkDir
	cmd.Env = mergedEnv(l.cfg.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartError{Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StartError{Err: err}
	}

	grace := l.cfg.KillGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	sess := newSession(uuid.NewString(), nil)
	sess.terminate = func() {
		proc := cmd.Process
		if proc == nil {
			return
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return // already gone
		}
		// Some engines ignore SIGTERM mid-extraction; force after the grace.
		select {
		case <-sess.waitCh:
		case <-time.After(grace):
			_ = proc.Kill()
		}
	}
	// cmd.Wait closes the pipes on exit, so copy them through io.Pipe and
	// only Wait once both drains finish; readers never lose buffered output.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	sess.Stdout = outR
	sess.Stderr = io.TeeReader(errR, sess.tail)

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Err: err}
	}
	l.logger.Printf("engine started pid=%d session=%s mode=%s", cmd.Process.Pid, sess.ID, opts.Mode)

	// Each writer closes as soon as its own copy drains, so a caller that
	// reads the streams sequentially still sees EOF on the first one.
	var drains sync.WaitGroup
	drains.Add(2)
	go func() {
		defer drains.Done()
		_, _ = io.Copy(outW, stdout)
		outW.Close()
	}()
	go func() {
		defer drains.Done()
		_, _ = io.Copy(errW, stderr)
		errW.Close()
	}()
	go func() {
		drains.Wait()
		err := cmd.Wait()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = -1
		}
		sess.finish(code)
	}()

	// Client disconnect routes through the same idempotent cancel as timeout.
	go func() {
		select {
		case <-ctx.Done():
			sess.Cancel()
		case <-sess.waitCh:
		}
	}()

	sess.startTimer(opts.Timeout)
	return sess, nil
}

// buildArgs maps run options onto the engine's CLI contract.
func buildArgs(opts Options) []string {
	var args []string
	switch opts.Mode {
	case ModeBatch, ModeDaily:
		args = append(args, "--batch")
		if len(opts.Sources) > 0 {
			args = append(args, "--sources", strings.Join(opts.Sources, ","))
		}
		if len(opts.FocusAreas) > 0 {
			args = append(args, "--focus", strings.Join(opts.FocusAreas, ","))
		}
	default:
		args = append(args, "--query", opts.Query)
		if opts.UserProfileID != "" {
			args = append(args, "--profile", opts.UserProfileID)
		}
	}
	if opts.Limit > 0 {
		args = append(args, "--limit", strconv.Itoa(opts.Limit))
	}
	return args
}

// mergedEnv layers configured engine env over the process environment and
// forces unbuffered output so progress events arrive line by line.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	env = append(env, "PYTHONUNBUFFERED=1")
	return env
}
