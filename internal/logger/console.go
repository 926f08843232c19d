// Package logger provides logging implementations for gantry run progress.
//
// Implementations are thread-safe and cover the two output destinations a
// run uses: the console (human readable, colorized on TTYs) and a per-run
// JSON-lines file for machine consumption.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/calder/gantry/internal/models"
)

// Log level constants for filtering
const (
	levelDebug int = 0
	levelInfo  int = 1
	levelWarn  int = 2
	levelError int = 3
)

// ConsoleLogger logs run progress to a writer with timestamps and thread
// safety. All output is prefixed with [HH:MM:SS] timestamps. It supports
// log level filtering, and color output is automatically enabled when the
// writer is a TTY.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool

	passColor *color.Color
	failColor *color.Color
	skipColor *color.Color
	nameColor *color.Color
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided
// io.Writer. If writer is nil, messages are silently discarded.
// Valid levels: debug, info, warn, error (case-insensitive); empty or
// invalid levels default to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
		passColor:   color.New(color.FgGreen),
		failColor:   color.New(color.FgRed),
		skipColor:   color.New(color.FgYellow),
		nameColor:   color.New(color.FgCyan),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates
// it, defaulting to "info".
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

func logLevelToInt(level string) int {
	switch level {
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog returns true if a message at messageLevel passes the filter.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// logf writes a single timestamped line under the mutex.
func (cl *ConsoleLogger) logf(format string, args ...interface{}) {
	if cl.writer == nil {
		return
	}
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
}

// colorize applies c to s when color output is enabled.
func (cl *ConsoleLogger) colorize(c *color.Color, s string) string {
	if !cl.colorOutput {
		return s
	}
	return c.Sprint(s)
}

// statusLabel renders a result status with its conventional color.
func (cl *ConsoleLogger) statusLabel(status string) string {
	upper := strings.ToUpper(status)
	switch status {
	case models.StatusPassed:
		return cl.colorize(cl.passColor, upper)
	case models.StatusFailed, models.StatusCanceled:
		return cl.colorize(cl.failColor, upper)
	default:
		return cl.colorize(cl.skipColor, upper)
	}
}

// LogRunStart logs the start of a workflow run.
func (cl *ConsoleLogger) LogRunStart(workflow *models.Workflow, event, runID string) {
	if !cl.shouldLog("info") {
		return
	}
	cl.logf("Running workflow %s (event: %s, run: %s)",
		cl.colorize(cl.nameColor, workflow.Name), event, runID)
}

// LogJobStart logs the start of one matrix instance.
func (cl *ConsoleLogger) LogJobStart(instance string) {
	if !cl.shouldLog("info") {
		return
	}
	cl.logf("Starting %s", cl.colorize(cl.nameColor, instance))
}

// LogStepStart logs the start of a step. Step starts are debug-level to
// keep default output to one line per step.
func (cl *ConsoleLogger) LogStepStart(instance string, step models.Step) {
	if !cl.shouldLog("debug") {
		return
	}
	cl.logf("%s: running %s", instance, step.DisplayName())
}

// LogStepResult logs the outcome of a step. Failures surface at error
// level along with the step output.
func (cl *ConsoleLogger) LogStepResult(instance string, result models.StepResult) {
	if result.Status == models.StatusFailed {
		if !cl.shouldLog("error") {
			return
		}
		cl.logf("%s: %s %s (%s)", instance, cl.statusLabel(result.Status),
			result.Step.DisplayName(), result.Duration.Round(time.Millisecond))
		if output := strings.TrimSpace(result.Output); output != "" {
			cl.logf("%s: output:\n%s", instance, indent(output))
		}
		return
	}

	if !cl.shouldLog("info") {
		return
	}
	cl.logf("%s: %s %s (%s)", instance, cl.statusLabel(result.Status),
		result.Step.DisplayName(), result.Duration.Round(time.Millisecond))
}

// LogJobResult logs the aggregate outcome of one matrix instance.
func (cl *ConsoleLogger) LogJobResult(result models.JobResult) {
	if !cl.shouldLog("info") {
		return
	}
	cl.logf("%s %s (%s)", cl.statusLabel(result.Status), result.Name,
		result.Duration.Round(time.Millisecond))
}

// LogSummary logs the run summary table.
func (cl *ConsoleLogger) LogSummary(result models.RunResult) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	fmt.Fprintf(cl.writer, "\nRun summary:\n")
	fmt.Fprintf(cl.writer, "  Workflow: %s\n", result.Workflow)
	fmt.Fprintf(cl.writer, "  Jobs:     %d total, %d passed, %d failed, %d skipped, %d canceled\n",
		result.TotalJobs, result.Passed, result.Failed, result.Skipped, result.Canceled)
	fmt.Fprintf(cl.writer, "  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if failed := result.FailedJobs(); len(failed) > 0 {
		fmt.Fprintf(cl.writer, "\nFailed jobs:\n")
		for _, jr := range failed {
			reason := ""
			if jr.Error != nil {
				reason = ": " + jr.Error.Error()
			}
			fmt.Fprintf(cl.writer, "  - %s%s\n", jr.Name, reason)
		}
	}
}

// indent prefixes every line of s with four spaces.
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = "    " + line
	}
	return strings.Join(lines, "\n")
}
