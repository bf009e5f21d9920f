// Package eventlog reads recorded key event streams from JSON Lines and CSV.
package eventlog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/verte-zerg/keyprofile/internal/model"
)

// Format is an event log encoding.
type Format string

// Supported formats.
const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

var (
	// ErrOutOfOrder is returned when an event is older than its predecessor.
	ErrOutOfOrder = errors.New("event out of timestamp order")
	// ErrUnknownFormat is returned for unsupported formats or extensions.
	ErrUnknownFormat = errors.New("unknown event log format")
	// ErrBadTimestamp is returned for negative or non-finite timestamps.
	ErrBadTimestamp = errors.New("invalid event timestamp")
)

// LineError ties a decoding error to its 1-based input line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseFormat resolves a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jsonl", "ndjson", "json":
		return FormatJSONL, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// DetectFormat picks a format from a file extension.
func DetectFormat(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// ReadFile reads events from path. An empty format is detected from the
// extension.
func ReadFile(path string, format Format) (events []model.Event, err error) {
	if format == "" {
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close of a read-only file.
			_ = cerr
		}
	}()
	return Read(f, format)
}

// Read decodes every event from r. Events must be in non-decreasing
// timestamp order.
func Read(r io.Reader, format Format) ([]model.Event, error) {
	switch format {
	case FormatJSONL:
		return readJSONL(r)
	case FormatCSV:
		return readCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func readJSONL(r io.Reader) ([]model.Event, error) {
	var events []model.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var generic any
		if err := json.Unmarshal([]byte(raw), &generic); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if err := ValidateEvent(generic); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		ev.Type = normalizeType(string(ev.Type))
		if err := appendOrdered(&events, ev); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return events, nil
}

func readCSV(r io.Reader) ([]model.Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.Comment = '#'
	var events []model.Event
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv.ParseError carries its own line number.
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(events) == 0 && isHeader(record) {
			continue
		}
		ev, err := parseRecord(record)
		if err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
		if err := appendOrdered(&events, ev); err != nil {
			return nil, &LineError{Line: line, Err: err}
		}
	}
	return events, nil
}

func isHeader(record []string) bool {
	return strings.EqualFold(strings.TrimSpace(record[0]), "key") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "type")
}

func parseRecord(record []string) (model.Event, error) {
	typ := normalizeType(strings.TrimSpace(record[1]))
	if typ == "" {
		return model.Event{}, fmt.Errorf("unknown event type %q", record[1])
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return model.Event{}, fmt.Errorf("invalid timestamp %q: %w", record[2], err)
	}
	if err := checkTimestamp(t); err != nil {
		return model.Event{}, err
	}
	return model.Event{Key: record[0], Type: typ, TimestampMs: t}, nil
}

func checkTimestamp(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: %v", ErrBadTimestamp, t)
	}
	if t < 0 {
		return fmt.Errorf("%w: negative %v", ErrBadTimestamp, t)
	}
	return nil
}

func normalizeType(s string) model.EventType {
	switch strings.ToLower(s) {
	case "down", "keydown", "press":
		return model.KeyDown
	case "up", "keyup", "release":
		return model.KeyUp
	default:
		return ""
	}
}

func appendOrdered(events *[]model.Event, ev model.Event) error {
	if n := len(*events); n > 0 && ev.TimestampMs < (*events)[n-1].TimestampMs {
		return fmt.Errorf("%w: %v after %v", ErrOutOfOrder, ev.TimestampMs, (*events)[n-1].TimestampMs)
	}
	*events = append(*events, ev)
	return nil
}

// Normalize maps browser event names onto down/up and checks ordering.
// Events of unknown type are rejected.
func Normalize(events []model.Event) ([]model.Event, error) {
	out := make([]model.Event, 0, len(events))
	for i, ev := range events {
		typ := normalizeType(string(ev.Type))
		if typ == "" {
			return nil, fmt.Errorf("event %d: unknown event type %q", i, ev.Type)
		}
		if err := checkTimestamp(ev.TimestampMs); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		ev.Type = typ
		out = append(out, ev)
	}
	if err := CheckOrder(out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckOrder verifies that events are in non-decreasing timestamp order.
func CheckOrder(events []model.Event) error {
	for i := 1; i < len(events); i++ {
		if events[i].TimestampMs < events[i-1].TimestampMs {
			return fmt.Errorf("event %d: %w: %v after %v", i, ErrOutOfOrder, events[i].TimestampMs, events[i-1].TimestampMs)
		}
	}
	return nil
}
