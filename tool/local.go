package tool

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/forgeworks/forge/core"
	"github.com/forgeworks/forge/logging"
)

const (
	maxFetchBytes  = 256 << 10
	maxOutputBytes = 64 << 10
)

// LocalOptions configure a Local executor.
type LocalOptions struct {
	// Dir is the working directory relative paths resolve against.
	Dir string
	// Restricted runs shell commands under a restricted shell.
	Restricted bool
	// ShellTimeout bounds a single shell command.
	ShellTimeout time.Duration
	// HTTPClient serves net fetches.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Local executes the built-in catalog against the local machine: the
// filesystem under Dir, the system shell, and outbound HTTP.
type Local struct {
	opts LocalOptions
}

// NewLocal returns a Local executor rooted at the current directory unless
// overridden.
func NewLocal(optFns ...func(o *LocalOptions)) *Local {
	opts := LocalOptions{
		Dir:          ".",
		ShellTimeout: 2 * time.Minute,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Local{opts: opts}
}

// Execute runs one call and returns its outcome. Unknown tools and missing
// parameters come back as error results so the model can correct itself.
func (l *Local) Execute(ctx context.Context, call core.ToolCall) core.ToolResult {
	start := time.Now()
	out, err := l.dispatch(ctx, call)
	if err != nil {
		l.opts.Logger.Warn("tool.execute.failed",
			"tool", call.ToolName, "call_id", call.CallID, "error", err.Error())
		return core.ToolResult{CallID: call.CallID, Output: err.Error(), IsError: true}
	}
	l.opts.Logger.Debug("tool.execute.completed",
		"tool", call.ToolName, "call_id", call.CallID,
		"duration_ms", time.Since(start).Milliseconds())
	return core.ToolResult{CallID: call.CallID, Output: out}
}

func (l *Local) dispatch(ctx context.Context, call core.ToolCall) (string, error) {
	switch call.ToolName {
	case core.ToolFSRead:
		return l.fsRead(call)
	case core.ToolFSCreate:
		return l.fsCreate(call)
	case core.ToolFSRemove:
		return l.fsRemove(call)
	case core.ToolFSSearch:
		return l.fsSearch(call)
	case core.ToolFSList:
		return l.fsList(call)
	case core.ToolFSInfo:
		return l.fsInfo(call)
	case core.ToolApplyPatch:
		return l.applyPatch(call)
	case core.ToolProcessShell:
		return l.shell(ctx, call)
	case core.ToolNetFetch:
		return l.netFetch(ctx, call)
	case core.ToolThink:
		return "Thought recorded.", nil
	case core.ToolEventDispatch:
		// Dispatch is intercepted upstream and never reaches an executor.
		return "", fmt.Errorf("%s must be handled by the runtime", core.ToolEventDispatch)
	default:
		return "", fmt.Errorf("unknown tool %q", call.ToolName)
	}
}

func (l *Local) path(call core.ToolCall) (string, error) {
	p := call.Parameters["path"]
	if p == "" {
		return "", fmt.Errorf("parameter %q must not be empty", "path")
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.opts.Dir, p)
	}
	return p, nil
}

func (l *Local) fsRead(call core.ToolCall) (string, error) {
	p, err := l.path(call)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return truncate(string(data)), nil
}

func (l *Local) fsCreate(call core.ToolCall) (string, error) {
	p, err := l.path(call)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	content := call.Parameters["content"]
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), p), nil
}

func (l *Local) fsRemove(call core.ToolCall) (string, error) {
	p, err := l.path(call)
	if err != nil {
		return "", err
	}
	if err := os.Remove(p); err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %s", p), nil
}

func (l *Local) fsSearch(call core.ToolCall) (string, error) {
	root, err := l.path(call)
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(call.Parameters["regex"])
	if err != nil {
		return "", fmt.Errorf("invalid regex: %w", err)
	}
	pattern := call.Parameters["file_pattern"]

	var b strings.Builder
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if pattern != "" {
			if ok, _ := filepath.Match(pattern, d.Name()); !ok {
				return nil
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d: %s\n", path, i+1, line)
				if b.Len() > maxOutputBytes {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	if b.Len() == 0 {
		return "No matches found.", nil
	}
	return truncate(b.String()), nil
}

func (l *Local) fsList(call core.ToolCall) (string, error) {
	p, err := l.path(call)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		b.WriteString(name + "\n")
	}
	return b.String(), nil
}

func (l *Local) fsInfo(call core.ToolCall) (string, error) {
	p, err := l.path(call)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("%s: %s, %d bytes, modified %s",
		p, kind, info.Size(), info.ModTime().UTC().Format(time.RFC3339)), nil
}

func (l *Local) applyPatch(call core.ToolCall) (string, error) {
	p, err := l.path(call)
	if err != nil {
		return "", err
	}
	search := call.Parameters["search"]
	if search == "" {
		return "", fmt.Errorf("parameter %q must not be empty", "search")
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	content := string(data)
	if !strings.Contains(content, search) {
		return "", fmt.Errorf("search text not found in %s", p)
	}
	patched := strings.Replace(content, search, call.Parameters["replace"], 1)
	if err := os.WriteFile(p, []byte(patched), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Patched %s", p), nil
}

func (l *Local) shell(ctx context.Context, call core.ToolCall) (string, error) {
	command := call.Parameters["command"]
	if command == "" {
		return "", fmt.Errorf("parameter %q must not be empty", "command")
	}
	ctx, cancel := context.WithTimeout(ctx, l.opts.ShellTimeout)
	defer cancel()

	argv := shellArgv(l.opts.Restricted, command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = l.opts.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%w\n%s", err, truncate(string(out)))
	}
	if len(out) == 0 {
		return "Command completed with no output.", nil
	}
	return truncate(string(out)), nil
}

func (l *Local) netFetch(ctx context.Context, call core.ToolCall) (string, error) {
	url := call.Parameters["url"]
	if url == "" {
		return "", fmt.Errorf("parameter %q must not be empty", "url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.opts.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return string(body), nil
}

// shellArgv builds the command line for process_shell. Restricted mode needs
// bash because dash, the /bin/sh on Debian-family systems, rejects -r.
func shellArgv(restricted bool, command string) []string {
	if restricted {
		return []string{"/bin/bash", "-r", "-c", command}
	}
	return []string{"/bin/sh", "-c", command}
}

// truncate caps tool output, backing off to a rune boundary so the cut never
// leaves an invalid UTF-8 tail.
func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	cut := maxOutputBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n[output truncated]"
}
