package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Command is one subprocess invocation. Tag names the operation in logs.
type Command struct {
	Tag  string
	Name string
	Args []string
	Env  []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner runs a command to completion and returns its stdout.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	log.Debug().Str("cmd", fmt.Sprintf("[%s] run cmd: %s", c.Tag, c)).Msg("")

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().Err(err).Str("stderr", stderr.String()).Msgf("[%s] run cmd failed", c.Tag)
		return stdout.Bytes(), &CommandError{Command: c.String(), Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	log.Debug().Str("output", stdout.String()).Msgf("[%s] raw output", c.Tag)
	return stdout.Bytes(), nil
}

// CommandError is returned when a subprocess exits unsuccessfully.
type CommandError struct {
	Command string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("command failed: %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command failed: %s: %v: %s", e.Command, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Process is a long-running subprocess that is stopped by interrupting it.
type Process interface {
	Interrupt() error
	Wait() error
}

// Starter launches a command without waiting for it to finish.
type Starter interface {
	Start(cmd Command) (Process, error)
}

type ExecStarter struct{}

// Start detaches the process from any request context; it runs until Interrupt.
func (ExecStarter) Start(c Command) (Process, error) {
	log.Debug().Str("cmd", fmt.Sprintf("[%s] start cmd: %s", c.Tag, c)).Msg("")

	cmd := exec.Command(c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Msgf("[%s] start cmd failed", c.Tag)
		return nil, &CommandError{Command: c.String(), Err: err}
	}
	return &execProcess{cmd: cmd, stderr: &stderr, name: c.String()}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	name   string
}

func (p *execProcess) Interrupt() error {
	return p.cmd.Process.Signal(os.Interrupt)
}

func (p *execProcess) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return &CommandError{Command: p.name, Stderr: strings.TrimSpace(p.stderr.String()), Err: err}
	}
	return nil
}
