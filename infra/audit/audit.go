// Package audit appends every dispatch bus event to a rotating JSONL file.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/jobroute/core/events"
	"github.com/kilianp07/jobroute/core/logger"
	coremon "github.com/kilianp07/jobroute/core/monitoring"
	"github.com/kilianp07/jobroute/internal/eventbus"
)

// Config controls the file location and rotation thresholds.
type Config struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// SetDefaults applies rotation defaults.
func (c *Config) SetDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 50
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("audit path is required")
	}
	return nil
}

// Query filters audit records. Zero fields match everything.
type Query struct {
	Start time.Time
	End   time.Time
	Event string
	Key   string
}

func (q Query) match(r events.Record) bool {
	if !q.Start.IsZero() && r.Time.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Time.After(q.End) {
		return false
	}
	if q.Event != "" && r.Event != q.Event {
		return false
	}
	return q.Key == "" || r.Key == q.Key
}

// Trail writes audit records with automatic rotation.
type Trail struct {
	logger *lumberjack.Logger
	path   string
}

// New opens the trail, creating its directory when needed.
func New(cfg Config) (*Trail, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Trail{logger: lj, path: cfg.Path}, nil
}

// Append writes the record and triggers rotation if needed.
func (t *Trail) Append(rec events.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = t.logger.Write(append(b, '\n'))
	return err
}

// files returns the rotated backups oldest first followed by the live file.
// Compressed backups are skipped.
func (t *Trail) files() ([]string, error) {
	ext := filepath.Ext(t.path)
	prefix := strings.TrimSuffix(t.path, ext)
	backups, err := filepath.Glob(prefix + "-*" + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(backups)
	if _, err := os.Stat(t.path); err == nil {
		backups = append(backups, t.path)
	}
	return backups, nil
}

// Query reads the live file and its rotated backups in write order.
func (t *Trail) Query(q Query) ([]events.Record, error) {
	files, err := t.files()
	if err != nil {
		return nil, err
	}
	var res []events.Record
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var r events.Record
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				continue
			}
			if q.match(r) {
				res = append(res, r)
			}
		}
		_ = file.Close()
	}
	return res, nil
}

// Source is the subscribe side of the dispatch bus.
type Source interface {
	Subscribe() *eventbus.Subscription[events.Event]
}

// Start appends every event published on src until ctx is done or the bus
// closes.
func (t *Trail) Start(ctx context.Context, src Source, log logger.Logger) <-chan struct{} {
	log = logger.OrNop(log)
	sub := src.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer sub.Cancel()
		defer coremon.Recover("audit")
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				rec, err := events.NewRecord(ev, time.Now())
				if err == nil {
					err = t.Append(rec)
				}
				if err != nil {
					log.Errorw("audit append failed", err, map[string]any{"event": ev.Name()})
				}
			}
		}
	}()
	return done
}

// Close closes the underlying writer.
func (t *Trail) Close() error {
	return t.logger.Close()
}
