package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// FilePrefix prefixes every daily log file name
const FilePrefix = "mentorjournal"

// Config logger configuration
type Config struct {
	LogDir  string     // Log directory
	Level   slog.Level // Minimum level written
	MaxDays int        // Max days to keep logs
	Console bool       // Also write text to Stderr
	Stderr  io.Writer  // Defaults to os.Stderr
}

// RotatingWriter is an io.Writer over one log file per day
type RotatingWriter struct {
	mu          sync.Mutex
	logDir      string
	maxDays     int
	currentFile *os.File
	currentDate string
	now         func() time.Time
}

// NewRotatingWriter creates the log directory and opens today's file
func NewRotatingWriter(logDir string, maxDays int) (*RotatingWriter, error) {
	if maxDays <= 0 {
		maxDays = 7
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		logDir:  logDir,
		maxDays: maxDays,
		now:     time.Now,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(); err != nil {
		return nil, err
	}
	return w, nil
}

// rotateIfNeeded opens a new file when the date changed. Callers hold mu.
func (w *RotatingWriter) rotateIfNeeded() error {
	today := w.now().Format("2006-01-02")
	if w.currentDate == today && w.currentFile != nil {
		return nil
	}

	if w.currentFile != nil {
		w.currentFile.Close()
	}

	f, err := os.OpenFile(w.FileName(today), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	w.currentFile = f
	w.currentDate = today

	w.cleanOldLogs()
	return nil
}

// FileName returns the log file path for a YYYY-MM-DD date
func (w *RotatingWriter) FileName(date string) string {
	return filepath.Join(w.logDir, fmt.Sprintf("%s-%s.log", FilePrefix, date))
}

// cleanOldLogs removes all but the newest maxDays files
func (w *RotatingWriter) cleanOldLogs() {
	files, err := filepath.Glob(filepath.Join(w.logDir, FilePrefix+"-*.log"))
	if err != nil {
		return
	}

	if len(files) <= w.maxDays {
		return
	}

	// Names sort by date
	sort.Strings(files)

	for i := 0; i < len(files)-w.maxDays; i++ {
		os.Remove(files[i])
	}
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return 0, err
	}
	return w.currentFile.Write(p)
}

// Close closes the current file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	w.currentDate = ""
	return err
}

// New builds the application logger: JSON lines to the daily file, plus
// human readable text on stderr when Console is set. The returned func
// closes the file.
func New(cfg Config) (*slog.Logger, func() error, error) {
	file, err := NewRotatingWriter(cfg.LogDir, cfg.MaxDays)
	if err != nil {
		return nil, nil, err
	}

	var console io.Writer
	if cfg.Console {
		console = cfg.Stderr
		if console == nil {
			console = os.Stderr
		}
	}
	return NewWithWriters(console, file, cfg.Level), file.Close, nil
}

// NewWithWriters fans records out to a text console and a JSON file.
// A nil console writes to the file only.
func NewWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewJSONHandler(file, opts)}
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, opts))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// Discard returns a logger that drops everything, for tests and tools
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
