package logger

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LoggerService owns the process log file. It is an io.Writer: the stdlib
// logger and the zerolog logger both write through it, so rotation swaps
// the file underneath them.
type LoggerService struct {
	Config        map[string]interface{}
	file          *os.File
	mu            sync.Mutex
	stopCh        chan struct{}
	wg            sync.WaitGroup
	currentLog    string
	maxFileBytes  int64
	retentionDays int
	folderPath    string
	level         zerolog.Level
	console       bool
	zl            zerolog.Logger
}

func NewLoggerService(config map[string]interface{}) *LoggerService {
	maxMB := intOf(config["max_file_mb"])
	retention := intOf(config["retention_days"])
	folder, _ := config["folder_path"].(string)
	if folder == "" {
		folder = "./logs"
	}
	level := zerolog.InfoLevel
	if s, ok := config["level"].(string); ok && s != "" {
		if l, err := zerolog.ParseLevel(s); err == nil {
			level = l
		}
	}
	console, _ := config["console"].(bool)

	l := &LoggerService{
		Config:        config,
		stopCh:        make(chan struct{}),
		maxFileBytes:  int64(maxMB) * 1024 * 1024,
		retentionDays: retention,
		folderPath:    folder,
		level:         level,
		console:       console,
	}
	// until Start opens a file, Write falls through to stderr
	l.zl = zerolog.New(l).Level(level).With().Timestamp().Logger()
	return l
}

func intOf(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

func (l *LoggerService) Name() string {
	return "logger"
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	if err := os.MkdirAll(l.folderPath, 0755); err != nil {
		l.mu.Unlock()
		return err
	}
	logFile := l.nextLogFileName()
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	l.file = file
	l.currentLog = logFile
	l.mu.Unlock()

	var out io.Writer = l
	if l.console {
		out = zerolog.MultiLevelWriter(l, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	l.zl = zerolog.New(out).Level(l.level).With().Timestamp().Logger()
	log.SetFlags(log.LstdFlags)
	log.SetOutput(l)
	l.zl.Info().Str("file", logFile).Msg("logger started")

	// background goroutine for rotation and retention
	l.wg.Add(1)
	go l.backgroundWorker()

	return nil
}

func (l *LoggerService) Stop() error {
	close(l.stopCh)
	l.wg.Wait()
	l.zl.Info().Msg("logger stopping")
	log.SetOutput(os.Stderr)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Write appends p to the current log file, or stderr before Start.
func (l *LoggerService) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.Stderr.Write(p)
	}
	return l.file.Write(p)
}

// Logger is the structured logger components receive.
func (l *LoggerService) Logger() zerolog.Logger {
	return l.zl
}

// CurrentFile is the path being written to.
func (l *LoggerService) CurrentFile() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLog
}

func (l *LoggerService) nextLogFileName() string {
	timestamp := time.Now().Format("20060102_150405.000")
	return filepath.Join(l.folderPath, fmt.Sprintf("recon_%s.log", timestamp))
}

func (l *LoggerService) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxFileBytes {
		return nil
	}
	newLog := l.nextLogFileName()
	if newLog == l.currentLog {
		newLog = filepath.Join(l.folderPath, fmt.Sprintf("recon_%s_%d.log", time.Now().Format("20060102_150405"), time.Now().UnixNano()))
	}
	file, err := os.OpenFile(newLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	// close current file whose size is now exceeded
	l.file.Close()
	l.file = file
	l.currentLog = newLog
	return nil
}

func (l *LoggerService) backgroundWorker() {
	defer l.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	retentionTicker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.rotateIfNeeded(); err != nil {
				fmt.Fprintln(os.Stderr, "log rotation failed:", err)
			}
		case <-retentionTicker.C:
			l.zipAndCleanOldLogs()
		}
	}
}

// zipAndCleanOldLogs moves log files older than the retention window into a
// dated zip and removes them. The file being written is never touched.
func (l *LoggerService) zipAndCleanOldLogs() (archived int) {
	if l.retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	current := l.CurrentFile()
	files, err := os.ReadDir(l.folderPath)
	if err != nil {
		return 0
	}
	var old []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".log" {
			continue
		}
		fullPath := filepath.Join(l.folderPath, f.Name())
		info, err := os.Stat(fullPath)
		if err != nil || info.ModTime().After(cutoff) || fullPath == current {
			continue
		}
		old = append(old, fullPath)
	}
	if len(old) == 0 {
		return 0
	}

	zipName := filepath.Join(l.folderPath, fmt.Sprintf("logs_%s.zip", time.Now().Format("20060102_150405")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return 0
	}
	defer zipFile.Close()
	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, fullPath := range old {
		w, err := zipWriter.Create(filepath.Base(fullPath))
		if err != nil {
			continue
		}
		src, err := os.Open(fullPath)
		if err != nil {
			continue
		}
		_, err = io.Copy(w, src)
		src.Close()
		if err != nil {
			continue
		}
		os.Remove(fullPath)
		archived++
	}
	return archived
}

// LogAudit writes an audit line. Audit lines are kept at every level.
func (l *LoggerService) LogAudit(msg string) {
	l.zl.WithLevel(zerolog.NoLevel).Str("kind", "audit").Msg("[AUDIT] " + msg)
}

var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}

// Audit writes through GlobalLogger when one is set.
func Audit(format string, args ...interface{}) {
	if GlobalLogger != nil {
		GlobalLogger.LogAudit(fmt.Sprintf(format, args...))
	}
}
