// Package wordlist loads word lists for prompt generation.
package wordlist

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

//go:embed words/en.txt
var defaultEnglish string

// ErrEmpty is returned when no words survive parsing and filtering.
var ErrEmpty = errors.New("word list is empty")

// Default returns the embedded English word list.
func Default() []string {
	words, err := parse(strings.NewReader(defaultEnglish), lowerASCII)
	if err != nil {
		// The embedded list is never empty.
		panic(err)
	}
	return words
}

// LoadWords reads one word per line from the provided file path.
func LoadWords(path string, keep FilterFunc) (words []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only word list.
			_ = cerr
		}
	}()
	return parse(file, keep)
}

// Resolve loads the list at path, falling back to the embedded list when
// path is empty or does not exist. Words f rejects are dropped.
func Resolve(path string, f Filter) ([]string, error) {
	if path != "" {
		words, err := LoadWords(path, f.Func())
		if err == nil {
			return words, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load word list %s: %w", path, err)
		}
		slog.Debug("word list not found, using default", "path", path)
	}
	words, err := parse(strings.NewReader(defaultEnglish), both(lowerASCII, f.Func()))
	if err != nil {
		return nil, fmt.Errorf("embedded word list: %w", err)
	}
	return words, nil
}

func parse(r io.Reader, keep FilterFunc) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if keep != nil && !keep(line) {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, ErrEmpty
	}
	return words, nil
}
