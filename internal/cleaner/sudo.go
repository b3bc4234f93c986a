package cleaner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const (
	sudoBatchSize     = 50
	validateTimeout   = 15 * time.Second
	removeTimeout     = 2 * time.Minute
	authPromptTimeout = 5 * time.Minute
)

// PathChecker re-validates paths right before they are removed with
// administrator rights. Removal is recursive, so the checker must also
// reject directories holding protected items. *security.Guard satisfies it.
type PathChecker interface {
	Check(path string) error
}

// commandRunner runs name with args, feeding stdin when non-nil, and
// returns the trimmed stderr
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) (string, error)

// SudoElevator removes paths with administrator rights. On macOS it asks
// through the standard authorization dialog (osascript); elsewhere it
// prompts for the sudo password on the terminal and falls back to pkexec.
type SudoElevator struct {
	checker      PathChecker
	prompt       io.Writer
	readPassword func() ([]byte, error)
	run          commandRunner
	lookPath     func(string) (string, error)
	goos         string
	batchSize    int
	logger       zerolog.Logger
}

// NewSudoElevator creates an elevator that checks every path with checker
func NewSudoElevator(checker PathChecker) *SudoElevator {
	return &SudoElevator{
		checker:      checker,
		prompt:       os.Stderr,
		readPassword: readTerminalPassword,
		run:          runCommand,
		lookPath:     exec.LookPath,
		goos:         runtime.GOOS,
		batchSize:    sudoBatchSize,
		logger:       zerolog.Nop(),
	}
}

// SetLogger sets the elevator logger
func (e *SudoElevator) SetLogger(logger zerolog.Logger) {
	e.logger = logger.With().Str("component", "elevator").Logger()
}

// SetPrompt sets where the password prompt is written
func (e *SudoElevator) SetPrompt(w io.Writer) {
	e.prompt = w
}

// ElevateAndRemove implements Elevator
func (e *SudoElevator) ElevateAndRemove(ctx context.Context, paths []string) ElevationResult {
	targets, err := e.validate(paths)
	if err != nil {
		return ElevationResult{Status: ElevationFailed, Message: err.Error()}
	}
	if len(targets) == 0 {
		return ElevationResult{Status: ElevationSucceeded}
	}

	var result ElevationResult
	if e.goos == "darwin" {
		result = e.removeWithAuthorization(ctx, targets)
	} else {
		result = e.removeWithSudo(ctx, targets)
	}

	if result.Status == ElevationSucceeded {
		if left := remaining(targets); len(left) > 0 {
			return ElevationResult{
				Status:  ElevationFailed,
				Message: fmt.Sprintf("%d of %d items still exist after privileged removal", len(left), len(targets)),
			}
		}
	}
	return result
}

// validate rejects the whole request if any path is restricted and drops
// paths that are already gone
func (e *SudoElevator) validate(paths []string) ([]string, error) {
	targets := make([]string, 0, len(paths))
	for _, path := range paths {
		if e.checker != nil {
			if err := e.checker.Check(path); err != nil {
				return nil, fmt.Errorf("validation failed: %w", err)
			}
		}
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		targets = append(targets, path)
	}
	return targets, nil
}

// removeWithAuthorization shows the macOS administrator dialog once for
// all paths
func (e *SudoElevator) removeWithAuthorization(ctx context.Context, paths []string) ElevationResult {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = shellQuote(p)
	}
	command := "/bin/rm -rf -- " + strings.Join(quoted, " ")
	script := fmt.Sprintf("do shell script %s with administrator privileges", appleScriptQuote(command))

	ctx, cancel := context.WithTimeout(ctx, authPromptTimeout)
	defer cancel()

	stderr, err := e.run(ctx, nil, "osascript", "-e", script)
	if err != nil {
		// -128 is the AppleScript "user canceled" error
		if strings.Contains(stderr, "-128") || strings.Contains(stderr, "User canceled") {
			return ElevationResult{Status: ElevationCancelled}
		}
		return ElevationResult{Status: ElevationFailed, Message: commandMessage("osascript", err, stderr)}
	}
	return ElevationResult{Status: ElevationSucceeded}
}

func (e *SudoElevator) removeWithSudo(ctx context.Context, paths []string) ElevationResult {
	if _, err := e.lookPath("sudo"); err != nil {
		if e.hasPkexec() {
			return e.removeWithPkexec(ctx, paths)
		}
		return ElevationResult{Status: ElevationFailed, Message: "neither sudo nor pkexec is available"}
	}

	var password []byte
	if !e.sessionCached(ctx) {
		fmt.Fprintf(e.prompt, "%s need administrator rights. Password for sudo (empty to skip): ", items(len(paths)))
		pw, err := e.readPassword()
		fmt.Fprintln(e.prompt)
		if err != nil || len(pw) == 0 {
			clearBytes(pw)
			e.logger.Debug().Err(err).Msg("password prompt skipped")
			return ElevationResult{Status: ElevationCancelled}
		}
		password = pw
		defer clearBytes(password)

		if err := e.validatePassword(ctx, password); err != nil {
			return ElevationResult{Status: ElevationFailed, Message: err.Error()}
		}
	}

	var failures []string
	for start := 0; start < len(paths); start += e.batchSize {
		batch := paths[start:min(start+e.batchSize, len(paths))]
		if err := e.sudoRemove(ctx, password, batch); err != nil {
			e.logger.Warn().Err(err).Int("batch", len(batch)).Msg("sudo rm failed")
			if e.hasPkexec() {
				if res := e.removeWithPkexec(ctx, batch); res.Status == ElevationSucceeded {
					continue
				}
			}
			failures = append(failures, err.Error())
		}
	}

	if len(failures) > 0 {
		return ElevationResult{Status: ElevationFailed, Message: failures[0]}
	}
	return ElevationResult{Status: ElevationSucceeded}
}

// sessionCached reports whether sudo works without a password right now
func (e *SudoElevator) sessionCached(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()
	_, err := e.run(ctx, nil, "sudo", "-n", "true")
	return err == nil
}

func (e *SudoElevator) validatePassword(ctx context.Context, password []byte) error {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	input := withNewline(password)
	defer clearBytes(input)

	stderr, err := e.run(ctx, input, "sudo", "-S", "-v")
	if err == nil {
		return nil
	}
	if strings.Contains(stderr, "Sorry") || strings.Contains(stderr, "incorrect password") || strings.Contains(stderr, "try again") {
		return fmt.Errorf("incorrect password")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("sudo validation timed out")
	}
	return fmt.Errorf("sudo validation failed: %s", commandMessage("sudo", err, stderr))
}

func (e *SudoElevator) sudoRemove(ctx context.Context, password []byte, batch []string) error {
	ctx, cancel := context.WithTimeout(ctx, removeTimeout)
	defer cancel()

	args := []string{"-n", "rm", "-rf", "--"}
	var input []byte
	if password != nil {
		args[0] = "-S"
		input = withNewline(password)
		defer clearBytes(input)
	}
	args = append(args, batch...)

	stderr, err := e.run(ctx, input, "sudo", args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("sudo rm timed out")
		}
		return errors.New(commandMessage("sudo rm", err, stderr))
	}
	return nil
}

func (e *SudoElevator) hasPkexec() bool {
	_, err := e.lookPath("pkexec")
	return err == nil
}

// removeWithPkexec uses polkit, which shows its own graphical prompt
func (e *SudoElevator) removeWithPkexec(ctx context.Context, paths []string) ElevationResult {
	ctx, cancel := context.WithTimeout(ctx, authPromptTimeout)
	defer cancel()

	args := append([]string{"rm", "-rf", "--"}, paths...)
	stderr, err := e.run(ctx, nil, "pkexec", args...)
	if err != nil {
		// pkexec exits 126 when the dialog is dismissed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 126 {
			return ElevationResult{Status: ElevationCancelled}
		}
		return ElevationResult{Status: ElevationFailed, Message: commandMessage("pkexec rm", err, stderr)}
	}
	return ElevationResult{Status: ElevationSucceeded}
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return strings.TrimSpace(stderr.String()), err
}

func readTerminalPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	return term.ReadPassword(fd)
}

func commandMessage(name string, err error, stderr string) string {
	if stderr == "" {
		return fmt.Sprintf("%s failed: %v", name, err)
	}
	return fmt.Sprintf("%s failed: %v (%s)", name, err, stderr)
}

func remaining(paths []string) []string {
	var left []string
	for _, p := range paths {
		if _, err := os.Lstat(p); err == nil {
			left = append(left, p)
		}
	}
	return left
}

// shellQuote quotes s for /bin/sh
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// appleScriptQuote quotes s as an AppleScript string literal
func appleScriptQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func withNewline(password []byte) []byte {
	input := make([]byte, 0, len(password)+1)
	input = append(input, password...)
	return append(input, '\n')
}

// clearBytes zeros a byte slice
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
