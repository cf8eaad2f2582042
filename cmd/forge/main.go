// Command forge starts an interactive multi-agent coding session in the
// current project directory.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forgeworks/forge"
	"github.com/forgeworks/forge/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		workflowPath string
		restricted   bool
		eventLogPath string
		logLevel     string
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "forge",
		Short: "Terminal-resident multi-agent coding sessions",
		Long: "Forge runs a workflow of coding agents over your project. User input\n" +
			"becomes events; agents react, call tools, and hand work to each other.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is fine; explicit environment still applies.
			_ = godotenv.Load()

			logger := newLogger(logLevel, logFormat)
			f, err := forge.New(func(o *forge.Options) {
				o.WorkflowPath = workflowPath
				o.Restricted = restricted
				o.EventLogPath = eventLogPath
				o.Logger = logger
			})
			if err != nil {
				return err
			}
			defer f.Shutdown()
			return repl(cmd, f)
		},
	}

	cmd.Flags().StringVarP(&workflowPath, "workflow", "w", "", "explicit workflow file (skips forge.yaml merging)")
	cmd.Flags().BoolVarP(&restricted, "restricted", "r", false, "run shell tools in a restricted shell")
	cmd.Flags().StringVar(&eventLogPath, "event-log", "", "persist the session event log to this bolt file")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	return cmd
}

func newLogger(level, format string) logging.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	return logging.New(logging.Config{Level: lvl, Format: format, Output: os.Stderr})
}

func repl(cmd *cobra.Command, f *forge.Forge) error {
	out := cmd.OutOrStdout()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			f.Interrupt()
			fmt.Fprintln(out, "\ninterrupted")
		}
	}()

	fmt.Fprintln(out, "forge ready. Type a task, or /help for commands.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprintf(out, "[%s] > ", f.Mode())
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runCommand(out, f, line); quit {
				return nil
			}
			continue
		}

		n := f.SendTask(line)
		if n == 0 {
			fmt.Fprintln(out, "no agent subscribes to user tasks in this workflow")
			continue
		}
		waitForIdle(f)
	}
}

// runCommand handles one slash command. It returns true when the session
// should end.
func runCommand(out io.Writer, f *forge.Forge, line string) bool {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		return true
	case "/new":
		if err := f.Reset(); err != nil {
			fmt.Fprintln(out, "reset failed:", err)
		} else {
			fmt.Fprintln(out, "new session started")
		}
	case "/act":
		if err := f.Act(); err != nil {
			fmt.Fprintln(out, err)
		} else {
			fmt.Fprintln(out, "act mode: all configured tools enabled")
		}
	case "/plan":
		if err := f.Plan(); err != nil {
			fmt.Fprintln(out, err)
		} else {
			fmt.Fprintln(out, "plan mode: agents restricted to read-only tools")
		}
	case "/info":
		printInfo(out, f)
	case "/models":
		for _, m := range f.Models() {
			fmt.Fprintln(out, m)
		}
	case "/dump":
		path := fmt.Sprintf("forge-dump-%s.json", time.Now().UTC().Format("20060102-150405"))
		if fields := strings.Fields(line); len(fields) > 1 {
			path = fields[1]
		}
		if err := f.DumpToFile(path); err != nil {
			fmt.Fprintln(out, "dump failed:", err)
		} else {
			fmt.Fprintln(out, "session dumped to", path)
		}
	case "/help":
		fmt.Fprintln(out, "commands: /new /info /models /dump /act /plan /exit")
	default:
		fmt.Fprintf(out, "unknown command %s; try /help\n", line)
	}
	return false
}

func printInfo(out io.Writer, f *forge.Forge) {
	info := f.Info()
	fmt.Fprintf(out, "provider: %s (%s)\n", info.Provider.Provider, info.Provider.Name)
	fmt.Fprintf(out, "mode:     %s\n", info.Mode)
	fmt.Fprintln(out, "agents:")
	for _, a := range info.Agents {
		kind := "persistent"
		if a.Ephemeral {
			kind = "ephemeral"
		}
		fmt.Fprintf(out, "  %-20s %s  model=%s  subscribes=%s\n",
			a.ID, kind, a.Model, strings.Join(a.Subscribe, ","))
	}
	if len(info.Instances) > 0 {
		fmt.Fprintln(out, "instances:")
		for _, i := range info.Instances {
			fmt.Fprintf(out, "  %s#%d  status=%s  messages=%d  queued=%d\n",
				i.AgentID, i.Generation, i.Status, i.Messages, i.Queued)
		}
	}
}

func waitForIdle(f *forge.Forge) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if f.Idle() {
			return
		}
	}
}
