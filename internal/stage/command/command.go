// Package command implements every pipeline stage by running an external
// program. The program named by the stage config key "command" receives one
// JSON request on stdin and must write one JSON response to stdout.
//
// Recognised stage config keys:
//
//	command  list of argv, required
//	env      map of extra environment variables
//	workdir  working directory of the program
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/alpipe/internal/domain"
)

// Name is the strategy name under which the built-ins are registered.
const Name = "command"

// Config keys read from the stage configuration.
const (
	KeyCommand = "command"
	KeyEnv     = "env"
	KeyWorkdir = "workdir"
)

// maxStderr bounds how much of the program's stderr is kept in an error.
const maxStderr = 4096

var (
	// ErrNoCommand is returned when the stage config has no usable command.
	ErrNoCommand = errors.New("stage config has no command")

	// ErrCommandFailed is returned when the program exits non-zero or its
	// output cannot be decoded.
	ErrCommandFailed = errors.New("stage command failed")
)

// request is the envelope written to the program's stdin.
type request struct {
	Stage   domain.Stage       `json:"stage"`
	Config  domain.StageConfig `json:"config"`
	Payload any                `json:"payload"`
}

// runner executes one program invocation.
type runner struct {
	stage  domain.Stage
	logger *slog.Logger
}

// run writes payload as a JSON request, runs the configured program and
// decodes its stdout into out.
func (r runner) run(ctx context.Context, cfg domain.StageConfig, payload any, out any) error {
	argv, ok := cfg.Strings(KeyCommand)
	if !ok || len(argv) == 0 || argv[0] == "" {
		return fmt.Errorf("%w: %s", ErrNoCommand, r.stage)
	}

	in, err := json.Marshal(request{Stage: r.stage, Config: cfg, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", r.stage, err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if dir, ok := cfg.String(KeyWorkdir); ok && dir != "" {
		cmd.Dir = dir
	}
	if env := environment(cfg); len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	start := time.Now()
	err = cmd.Run()
	r.logger.Debug("stage command finished",
		"program", argv[0],
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err)
	if err != nil {
		return fmt.Errorf("%w: %s: %v: %s", ErrCommandFailed, argv[0], err, tail(stderr.String()))
	}

	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), out); err != nil {
		return fmt.Errorf("%w: %s: undecodable output: %v", ErrCommandFailed, argv[0], err)
	}
	return nil
}

// environment converts the "env" map into KEY=value pairs in a stable order.
func environment(cfg domain.StageConfig) []string {
	m, ok := cfg[KeyEnv].(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return env
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return "..." + s[len(s)-maxStderr:]
	}
	return s
}
