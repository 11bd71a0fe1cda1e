package logsource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// ErrEmptyPath is returned by a FileSource without a path.
var ErrEmptyPath = errors.New("logsource: path is empty")

// FileSource reads the whole log file on every fetch.
type FileSource struct {
	Path string
}

// NewFileSource creates a source for the log file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Name() string { return "file" }

func (f *FileSource) Fetch(ctx context.Context) (string, error) {
	if strings.TrimSpace(f.Path) == "" {
		return "", ErrEmptyPath
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("logsource: read %s: %w", f.Path, err)
	}
	return string(data), nil
}

// CommandSource runs a command and uses its stdout as the log text,
// e.g. `su -c cat /data/adb/modules/Clean-C/log.txt` on a rooted device.
type CommandSource struct {
	Program string
	Args    []string
}

// NewCommandSource builds a source from a shell-style command line split on spaces.
func NewCommandSource(command string) (*CommandSource, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("logsource: command is empty")
	}
	return &CommandSource{Program: fields[0], Args: fields[1:]}, nil
}

func (c *CommandSource) Name() string { return "command" }

// Fetch runs the command. A non-zero exit is reported with the command's
// stderr so the caller can show exactly what went wrong.
func (c *CommandSource) Fetch(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("logsource: %s: %w", c.Program, err)
		}
		return "", fmt.Errorf("logsource: %s: %w: %s", c.Program, err, msg)
	}
	return stdout.String(), nil
}

// ReaderSource reads an io.Reader to the end once and replays that text on
// every later fetch. It is used for piped input.
type ReaderSource struct {
	r    io.Reader
	once sync.Once
	text string
	err  error
}

// NewReaderSource wraps r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: r}
}

func (s *ReaderSource) Name() string { return "reader" }

func (s *ReaderSource) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.once.Do(func() {
		data, err := io.ReadAll(s.r)
		if err != nil {
			s.err = fmt.Errorf("logsource: read input: %w", err)
			return
		}
		s.text = string(data)
	})
	return s.text, s.err
}
