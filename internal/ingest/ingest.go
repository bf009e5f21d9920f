// Package ingest turns event log files into stored sessions, either once or
// by watching a directory for new logs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/eventlog"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/profile"
	"github.com/verte-zerg/keyprofile/internal/recorder"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 250 * time.Millisecond

// Sink stores finished sessions.
type Sink interface {
	InsertSession(ctx context.Context, rec model.SessionRecord) (int64, error)
}

// Result reports the outcome of one ingested file.
type Result struct {
	Path    string
	ID      int64
	Profile profile.Profile
	Err     error
}

// Options configures an Ingester.
type Options struct {
	Recorder model.RecorderConfig
	Binner   binner.Config
	Sink     Sink
	Debounce time.Duration
	// OnResult is called after every file, successful or not.
	OnResult func(Result)
}

// Ingester reads event logs and stores them as sessions.
type Ingester struct {
	opts Options

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// New returns an Ingester.
func New(opts Options) *Ingester {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Ingester{opts: opts, timers: map[string]*time.Timer{}}
}

// Supported reports whether path has an event log extension.
func Supported(path string) bool {
	_, err := eventlog.DetectFormat(path)
	return err == nil
}

// File reads one event log, profiles it and stores it when a sink is set.
// The session is dated so that it ends at the file's modification time.
func (in *Ingester) File(ctx context.Context, path string) Result {
	res := Result{Path: path}
	info, err := os.Stat(path)
	if err != nil {
		res.Err = fmt.Errorf("failed to stat event log: %w", err)
		return res
	}
	events, err := eventlog.ReadFile(path, "")
	if err != nil {
		res.Err = fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		return res
	}
	if len(events) == 0 {
		res.Err = fmt.Errorf("event log %s is empty", filepath.Base(path))
		return res
	}
	span := time.Duration((events[len(events)-1].TimestampMs - events[0].TimestampMs) * float64(time.Millisecond))
	rec := recorder.ReplayAt(in.opts.Recorder, events, TypedText(events), info.ModTime().Add(-span))
	res.Profile = profile.Build(rec, in.opts.Recorder.ScaleFactor, in.opts.Binner)
	if in.opts.Sink == nil {
		return res
	}
	stored, err := res.Profile.Record(model.SourceFile)
	if err != nil {
		res.Err = err
		return res
	}
	if res.ID, err = in.opts.Sink.InsertSession(ctx, stored); err != nil {
		res.Err = fmt.Errorf("failed to store %s: %w", filepath.Base(path), err)
	}
	return res
}

// Dir ingests every supported file in dir in name order.
func (in *Ingester) Dir(ctx context.Context, dir string) ([]Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	results := make([]Result, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := in.File(ctx, filepath.Join(dir, name))
		in.report(res)
		results = append(results, res)
	}
	return results, nil
}

// Watch ingests supported files written to dir until ctx is cancelled.
// Bursts of writes to one file are coalesced by the debounce delay.
func (in *Ingester) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if cerr := watcher.Close(); cerr != nil {
			// Best-effort watcher close.
			_ = cerr
		}
	}()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	slog.Info("watching for event logs", "dir", dir, "debounce", in.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			in.stopTimers()
			in.wg.Wait()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !Supported(event.Name) {
				continue
			}
			in.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("watch events dropped", "dir", dir)
				continue
			}
			slog.Error("watch error", "err", err)
		}
	}
}

func (in *Ingester) schedule(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.timers[path]; ok && t.Stop() {
		t.Reset(in.opts.Debounce)
		return
	}
	in.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(in.opts.Debounce, func() {
		defer in.wg.Done()
		in.mu.Lock()
		if in.timers[path] == timer {
			delete(in.timers, path)
		}
		in.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		in.report(in.File(ctx, path))
	})
	in.timers[path] = timer
}

func (in *Ingester) stopTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, t := range in.timers {
		if t.Stop() {
			in.wg.Done()
		}
		delete(in.timers, path)
	}
}

func (in *Ingester) report(res Result) {
	if res.Err != nil {
		slog.Error("failed to ingest event log", "path", res.Path, "err", res.Err)
	} else {
		slog.Info("ingested event log", "path", res.Path, "id", res.ID,
			"presses", res.Profile.Result.PressEvents)
	}
	if in.opts.OnResult != nil {
		in.opts.OnResult(res)
	}
}

// TypedText rebuilds the typed text from key presses: single characters
// are kept, "space" and "enter" become whitespace, "backspace" removes the
// previous character and other named keys are skipped.
func TypedText(events []model.Event) string {
	var out []rune
	for _, ev := range events {
		if ev.Type != model.KeyDown {
			continue
		}
		switch strings.ToLower(ev.Key) {
		case "space":
			out = append(out, ' ')
			continue
		case "enter", "return":
			out = append(out, '\n')
			continue
		case "backspace":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			continue
		}
		if utf8.RuneCountInString(ev.Key) == 1 {
			r, _ := utf8.DecodeRuneInString(ev.Key)
			out = append(out, r)
		}
	}
	return string(out)
}
