package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyprofile/internal/config"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/wordlist"
)

const typingLog = `{"key":"h","type":"down","t":0}
{"key":"h","type":"up","t":85}
{"key":"e","type":"down","t":160}
{"key":"e","type":"up","t":240}
{"key":"y","type":"down","t":330}
{"key":"y","type":"up","t":395}
`

func execute(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	base := []string{"--config", filepath.Join(dir, "config.toml"), "--db", filepath.Join(dir, "test.db"), "--log-level", "error"}
	return executeWith(t, stdin, append(base, args...)...)
}

func executeWith(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Record.ScaleFactor)
	assert.Contains(t, defaultConfigTemplate(), "[binner]")
}

func TestTransformFromStdin(t *testing.T) {
	out := execute(t, typingLog, "transform")

	var doc struct {
		Summary  map[string]struct{ Count int } `json:"summary"`
		Features map[string]int                 `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Len(t, doc.Features, 68)
	assert.Equal(t, 2, doc.Summary["pp"].Count)
	assert.Equal(t, 3, doc.Summary["pr"].Count)
	assert.Contains(t, doc.Features, "ppTime_END")
}

func TestTransformSaveThenShow(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(logPath, []byte(typingLog), 0o644))
	base := []string{"--config", filepath.Join(dir, "config.toml"), "--db", filepath.Join(dir, "test.db"), "--log-level", "error"}

	out := executeWith(t, "", append(base, "transform", "--save", logPath)...)
	var saved struct {
		ID  int64  `json:"id"`
		Ref string `json:"ref"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &saved))
	assert.Equal(t, int64(1), saved.ID)
	assert.NotEmpty(t, saved.Ref)

	shown := executeWith(t, "", append(base, "show", "1")...)
	assert.Contains(t, shown, "Session 1")
	assert.Contains(t, shown, "Channel pp")

	asJSON := executeWith(t, "", append(base, "show", "--json", "1")...)
	assert.Contains(t, asJSON, saved.Ref)
}

func TestTransformRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(typingLog))
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "c.toml"), "--db", filepath.Join(dir, "t.db"), "transform", "--format", "xml"})
	assert.Error(t, cmd.Execute())
}

func TestTransformRejectsNonFiniteTimestamps(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("a,down,NaN\nb,down,100\nc,down,220\nd,down,330\n"))
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "c.toml"), "--db", filepath.Join(dir, "t.db"),
		"--log-level", "error", "transform", "--format", "csv"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.ErrorContains(t, err, "invalid event timestamp")
}

func TestTransformHonoursLowerBounds(t *testing.T) {
	out := execute(t, typingLog, "transform", "--min-gap-ms", "165", "--min-hold-ms", "70")

	var doc struct {
		Summary map[string]struct{ Count int } `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 1, doc.Summary["pp"].Count)
	assert.Equal(t, 2, doc.Summary["pr"].Count)
}

func TestLowerBoundsFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[record]\nmin-gap-ms = 165.0\n"), 0o644))
	out := executeWith(t, typingLog, "--config", cfgPath, "--db", filepath.Join(dir, "t.db"),
		"--log-level", "error", "transform")

	var doc struct {
		Summary map[string]struct{ Count int } `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 1, doc.Summary["pp"].Count)
	assert.Equal(t, 3, doc.Summary["pr"].Count)
}

func TestLowerBoundMustStayBelowUpper(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(typingLog))
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "c.toml"), "--db", filepath.Join(dir, "t.db"),
		"--min-hold-ms", "1000", "transform"})
	assert.ErrorContains(t, cmd.Execute(), "--max-hold-ms must exceed --min-hold-ms")
}

func TestValidatePracticeWordLength(t *testing.T) {
	cfg := model.PracticeConfig{Words: 5, MaxWordLen: -1}
	assert.ErrorContains(t, validatePractice(cfg), "--max-word-len")
	cfg.MaxWordLen = 4
	assert.NoError(t, validatePractice(cfg))
}

func TestDrillFilterFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[practice]\nkeys = \"asdfjkl\"\nmax-word-len = 4\n"), 0o644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Practice.Keys)
	require.NotNil(t, cfg.Practice.MaxLen)
	words, err := wordlist.Resolve("", wordlist.Filter{Keys: *cfg.Practice.Keys, MaxLen: *cfg.Practice.MaxLen})
	require.NoError(t, err)
	assert.Contains(t, words, "ask")
	for _, w := range words {
		assert.LessOrEqual(t, len(w), 4)
		assert.Empty(t, strings.Trim(w, "asdfjkl"), w)
	}
}
