// Package main provides the CLI entrypoint for keyprofile.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/config"
	"github.com/verte-zerg/keyprofile/internal/eventlog"
	"github.com/verte-zerg/keyprofile/internal/features"
	"github.com/verte-zerg/keyprofile/internal/generator"
	"github.com/verte-zerg/keyprofile/internal/ingest"
	"github.com/verte-zerg/keyprofile/internal/logging"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/profile"
	"github.com/verte-zerg/keyprofile/internal/recorder"
	"github.com/verte-zerg/keyprofile/internal/server"
	"github.com/verte-zerg/keyprofile/internal/stats"
	"github.com/verte-zerg/keyprofile/internal/statsui"
	"github.com/verte-zerg/keyprofile/internal/store"
	"github.com/verte-zerg/keyprofile/internal/tui"
	"github.com/verte-zerg/keyprofile/internal/wordlist"
)

const (
	defaultWords       = 25
	defaultCaps        = 0.2
	defaultPunct       = 0.1
	defaultAddr        = "127.0.0.1:8080"
	defaultMaxBodyKB   = 4096
	defaultCurveWindow = 10
	defaultLogLevel    = "info"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string

	recordScale   float64
	recordMinGap  float64
	recordMaxGap  float64
	recordMinHold float64
	recordMaxHold float64

	binTemp    int
	binWindow  int
	binCoarse  int
	binFine    int
	binDefault int64

	practiceWords    int
	practiceCaps     float64
	practicePunct    float64
	practicePunctSet string
	practiceWordList string
	practiceKeys     string
	practiceMaxLen   int
	practiceSave     bool

	transformFormat string
	transformSave   bool
	transformOut    string
	transformPretty bool

	serveAddr      string
	serveCORS      []string
	serveMaxBodyKB int

	statsSource      string
	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsPlain       bool

	showJSON bool

	watchScan     bool
	watchDebounce time.Duration
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "keyprofile",
		Short:             "Keystroke timing recorder and feature extractor",
		SilenceUsage:      true,
		PersistentPreRunE: setupCmd,
		RunE:              runRecordCmd,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/keyprofile/config.toml)")
	pf.StringVar(&dbPath, "db", "", "SQLite database path")
	pf.StringVar(&logLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", logging.FormatText, "log format (text, json)")
	pf.Float64Var(&recordScale, "scale-factor", recorder.DefaultScaleFactor, "multiplier applied to intervals in ms")
	pf.Float64Var(&recordMinGap, "min-gap-ms", 0, "lower bound for pp, rr and rp intervals (exclusive)")
	pf.Float64Var(&recordMaxGap, "max-gap-ms", recorder.DefaultMaxGapMs, "upper bound for pp, rr and rp intervals (exclusive)")
	pf.Float64Var(&recordMinHold, "min-hold-ms", 0, "lower bound for pr intervals (exclusive)")
	pf.Float64Var(&recordMaxHold, "max-hold-ms", recorder.DefaultMaxHoldMs, "upper bound for pr intervals (exclusive)")
	pf.IntVar(&binTemp, "temp-bins", binner.DefaultTempBins, "temporary histogram size")
	pf.IntVar(&binWindow, "window", binner.DefaultWindow, "dense window width in temporary bins")
	pf.IntVar(&binCoarse, "coarse", binner.DefaultCoarse, "coarse bins on each side of the dense window")
	pf.IntVar(&binFine, "fine", binner.DefaultFine, "fine bins across the dense window")
	pf.Int64Var(&binDefault, "default-width", binner.DefaultDefaultWidth, "bin width used for empty series")

	rootCmd.Flags().IntVar(&practiceWords, "words", defaultWords, "words per prompt")
	rootCmd.Flags().Float64Var(&practiceCaps, "caps", defaultCaps, "probability of capitalized first letter (0-1)")
	rootCmd.Flags().Float64Var(&practicePunct, "punct", defaultPunct, "punctuation probability per word (0-1)")
	rootCmd.Flags().StringVar(&practicePunctSet, "punct-set", generator.DefaultPunctSet, "punctuation set")
	rootCmd.Flags().StringVar(&practiceWordList, "wordlist", "", "word list file (default: embedded English list)")
	rootCmd.Flags().StringVar(&practiceKeys, "keys", "", "only use words typable with these keys")
	rootCmd.Flags().IntVar(&practiceMaxLen, "max-word-len", 0, "drop words longer than this (0 disables)")
	rootCmd.Flags().BoolVar(&practiceSave, "save", true, "store finished sessions")

	rootCmd.AddCommand(newTransformCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newConfigCmd())
	return rootCmd
}

// fileCfg is loaded once per invocation by setupCmd.
var fileCfg config.FileConfig

func setupCmd(cmd *cobra.Command, _ []string) error {
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	var err error
	fileCfg, err = config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "log-level", &logLevel, fileCfg.Log.Level)
	applyStringConfig(cmd, "log-format", &logFormat, fileCfg.Log.Format)
	logging.Init(os.Stderr, logFormat, logging.ParseLevel(logLevel))

	applyFloatConfig(cmd, "scale-factor", &recordScale, fileCfg.Record.ScaleFactor)
	applyFloatConfig(cmd, "min-gap-ms", &recordMinGap, fileCfg.Record.MinGapMs)
	applyFloatConfig(cmd, "max-gap-ms", &recordMaxGap, fileCfg.Record.MaxGapMs)
	applyFloatConfig(cmd, "min-hold-ms", &recordMinHold, fileCfg.Record.MinHoldMs)
	applyFloatConfig(cmd, "max-hold-ms", &recordMaxHold, fileCfg.Record.MaxHoldMs)
	applyIntConfig(cmd, "temp-bins", &binTemp, fileCfg.Binner.TempBins)
	applyIntConfig(cmd, "window", &binWindow, fileCfg.Binner.Window)
	applyIntConfig(cmd, "coarse", &binCoarse, fileCfg.Binner.Coarse)
	applyIntConfig(cmd, "fine", &binFine, fileCfg.Binner.Fine)
	applyInt64Config(cmd, "default-width", &binDefault, fileCfg.Binner.DefaultWidth)
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	slog.Debug("configuration loaded", "config", configPath, "db", dbPath)
	return validateShared()
}

func validateShared() error {
	if !(recordScale > 0) || math.IsInf(recordScale, 0) {
		return fmt.Errorf("--scale-factor must be > 0")
	}
	if !(recordMinGap >= 0) || !(recordMinHold >= 0) {
		return fmt.Errorf("--min-gap-ms and --min-hold-ms must be >= 0")
	}
	if !(recordMaxGap > recordMinGap) {
		return fmt.Errorf("--max-gap-ms must exceed --min-gap-ms")
	}
	if !(recordMaxHold > recordMinHold) {
		return fmt.Errorf("--max-hold-ms must exceed --min-hold-ms")
	}
	if binTemp <= 0 || binWindow <= 0 || binCoarse <= 0 || binFine <= 0 || binDefault <= 0 {
		return fmt.Errorf("binner settings must be > 0")
	}
	if binWindow > binTemp {
		return fmt.Errorf("--window must not exceed --temp-bins")
	}
	return nil
}

func recorderConfig() model.RecorderConfig {
	cfg := recorder.DefaultConfig()
	cfg.ScaleFactor = recordScale
	for ch, b := range cfg.Bounds {
		if ch == model.PressRelease {
			b.MinMs, b.MaxMs = recordMinHold, recordMaxHold
		} else {
			b.MinMs, b.MaxMs = recordMinGap, recordMaxGap
		}
		cfg.Bounds[ch] = b
	}
	return cfg
}

func binnerConfig() binner.Config {
	cfg := binner.DefaultConfig()
	cfg.TempBins = binTemp
	cfg.Window = binWindow
	cfg.Coarse = binCoarse
	cfg.Fine = binFine
	cfg.DefaultWidth = binDefault
	return cfg
}

func openStore() (*store.Store, func(), error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("failed to close db", "err", cerr)
		}
	}, nil
}

func runRecordCmd(cmd *cobra.Command, _ []string) error {
	applyIntConfig(cmd, "words", &practiceWords, fileCfg.Practice.Words)
	applyFloatConfig(cmd, "caps", &practiceCaps, fileCfg.Practice.CapsPct)
	applyFloatConfig(cmd, "punct", &practicePunct, fileCfg.Practice.PunctPct)
	applyStringConfig(cmd, "punct-set", &practicePunctSet, fileCfg.Practice.PunctSet)
	applyStringConfig(cmd, "wordlist", &practiceWordList, fileCfg.Practice.WordList)
	applyStringConfig(cmd, "keys", &practiceKeys, fileCfg.Practice.Keys)
	applyIntConfig(cmd, "max-word-len", &practiceMaxLen, fileCfg.Practice.MaxLen)
	applyBoolConfig(cmd, "save", &practiceSave, fileCfg.Practice.Save)

	practice := model.PracticeConfig{
		Words:        practiceWords,
		CapsPct:      practiceCaps,
		PunctPct:     practicePunct,
		PunctSet:     practicePunctSet,
		WordListPath: practiceWordList,
		Keys:         practiceKeys,
		MaxWordLen:   practiceMaxLen,
		Save:         practiceSave,
	}
	if err := validatePractice(practice); err != nil {
		return err
	}
	path := practice.WordListPath
	if path == "" {
		path = config.DefaultWordListPath()
	}
	words, err := wordlist.Resolve(path, wordlist.Filter{Keys: practice.Keys, MaxLen: practice.MaxWordLen})
	if err != nil {
		return err
	}

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	m := tui.NewModel(tui.Options{
		Practice: practice,
		Recorder: recorderConfig(),
		Binner:   binnerConfig(),
		Store:    st,
		Words:    words,
	})
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func validatePractice(cfg model.PracticeConfig) error {
	if cfg.Words <= 0 {
		return fmt.Errorf("--words must be > 0")
	}
	if cfg.CapsPct < 0 || cfg.CapsPct > 1 {
		return fmt.Errorf("--caps must be between 0 and 1")
	}
	if cfg.PunctPct < 0 || cfg.PunctPct > 1 {
		return fmt.Errorf("--punct must be between 0 and 1")
	}
	if cfg.PunctPct > 0 && cfg.PunctSet == "" {
		return fmt.Errorf("--punct-set must not be empty")
	}
	if cfg.MaxWordLen < 0 {
		return fmt.Errorf("--max-word-len must be >= 0")
	}
	return nil
}

func newTransformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform [file]",
		Short: "Transform an event log into a feature document",
		Long: "Reads key events (JSON Lines or CSV) from a file or stdin, derives the\n" +
			"pp/rr/pr/rp interval series and prints the 68-entry feature document.",
		Args: cobra.MaximumNArgs(1),
		RunE: runTransformCmd,
	}
	cmd.Flags().StringVar(&transformFormat, "format", "", "input format: jsonl or csv (default: from extension, jsonl for stdin)")
	cmd.Flags().BoolVar(&transformSave, "save", false, "store the session")
	cmd.Flags().StringVarP(&transformOut, "out", "o", "", "write the document to a file instead of stdout")
	cmd.Flags().BoolVar(&transformPretty, "pretty", false, "indent JSON output")
	return cmd
}

type transformOutput struct {
	ID         int64                                  `json:"id,omitempty"`
	Ref        string                                 `json:"ref,omitempty"`
	Summary    map[model.Channel]model.ChannelSummary `json:"summary"`
	Metrics    stats.Metrics                          `json:"metrics"`
	Features   features.Document                      `json:"features"`
	Partitions []features.ChannelPartition            `json:"partitions"`
}

func runTransformCmd(cmd *cobra.Command, args []string) error {
	var format eventlog.Format
	if transformFormat != "" {
		parsed, err := eventlog.ParseFormat(transformFormat)
		if err != nil {
			return err
		}
		format = parsed
	}

	var (
		events []model.Event
		err    error
	)
	if len(args) == 0 || args[0] == "-" {
		if format == "" {
			format = eventlog.FormatJSONL
		}
		events, err = eventlog.Read(cmd.InOrStdin(), format)
	} else {
		events, err = eventlog.ReadFile(args[0], format)
	}
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	slog.Debug("events read", "count", len(events))

	res := recorder.Replay(recorderConfig(), events, ingest.TypedText(events))
	p := profile.Build(res, recordScale, binnerConfig())
	out := transformOutput{
		Summary:    res.Summary,
		Metrics:    p.Metrics,
		Features:   p.Document,
		Partitions: p.Document.Partitions,
	}

	if transformSave {
		st, closeStore, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore()
		rec, err := p.Record(model.SourceFile)
		if err != nil {
			return err
		}
		if out.ID, err = st.InsertSession(cmd.Context(), rec); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		stored, err := st.GetSession(cmd.Context(), out.ID)
		if err != nil {
			return err
		}
		out.Ref = stored.Ref
		slog.Info("session saved", "id", out.ID, "ref", out.Ref)
	}

	w := cmd.OutOrStdout()
	if transformOut != "" {
		f, err := os.Create(transformOut)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				slog.Error("failed to close output", "err", cerr)
			}
		}()
		w = f
	}
	return writeJSON(w, out, transformPretty)
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultAddr, "listen address")
	cmd.Flags().StringSliceVar(&serveCORS, "cors-origin", nil, "allowed CORS origins (default: any)")
	cmd.Flags().IntVar(&serveMaxBodyKB, "max-body-kb", defaultMaxBodyKB, "maximum request body size in KiB")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Serve.Addr)
	applyIntConfig(cmd, "max-body-kb", &serveMaxBodyKB, fileCfg.Serve.MaxBodyKB)
	if !cmd.Flags().Changed("cors-origin") && len(fileCfg.Serve.CORSOrigins) > 0 {
		serveCORS = fileCfg.Serve.CORSOrigins
	}
	if serveMaxBodyKB <= 0 {
		return fmt.Errorf("--max-body-kb must be > 0")
	}

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	srv := server.New(server.Options{
		Store:        st,
		Recorder:     recorderConfig(),
		Binner:       binnerConfig(),
		CORSOrigins:  serveCORS,
		MaxBodyBytes: int64(serveMaxBodyKB) << 10,
	})
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, serveAddr)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Browse stored sessions",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsSource, "source", "", "source filter (terminal, api, file)")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N sessions")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().BoolVar(&statsPlain, "plain", false, "print a summary instead of the interactive browser")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	var sinceTime *time.Time
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		sinceTime = &parsed
	}
	if statsCurveWindow < 1 {
		return fmt.Errorf("--curve-window must be >= 1")
	}
	cfg := model.StatsConfig{
		Source:      statsSource,
		Since:       sinceTime,
		Last:        statsLast,
		CurveWindow: statsCurveWindow,
	}

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if statsPlain || !term.IsTerminal(int(os.Stdout.Fd())) {
		report, err := stats.BuildReport(cmd.Context(), st, cfg)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if err := stats.RenderSummary(w, report.Sessions); err != nil {
			return err
		}
		return stats.RenderCurves(w, report.Window, cfg.CurveWindow)
	}

	program := tea.NewProgram(statsui.NewModel(st, cfg), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run stats TUI: %w", err)
	}
	return nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one stored session",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().BoolVar(&showJSON, "json", false, "print the feature document as JSON")
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	rec, err := st.GetSession(cmd.Context(), id)
	if err != nil {
		return err
	}
	p := profile.FromRecord(rec)
	w := cmd.OutOrStdout()
	if showJSON {
		return writeJSON(w, transformOutput{
			ID:         rec.ID,
			Ref:        rec.Ref,
			Summary:    p.Result.Summary,
			Metrics:    p.Metrics,
			Features:   p.Document,
			Partitions: p.Document.Partitions,
		}, true)
	}

	if _, err := fmt.Fprintf(w, "Session %d (%s, %s)\nEnded %s, %d presses, %d releases\n\n",
		rec.ID, rec.Ref, rec.Source, rec.EndedAt.Local().Format(time.DateTime),
		rec.PressEvents, rec.ReleaseEvents); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderMetrics(w, p.Metrics); err != nil {
		return err
	}
	if err := stats.RenderHistograms(w, p.Document.Partitions, 0, 6, false); err != nil {
		return err
	}
	for _, part := range p.Document.Partitions {
		if err := stats.RenderPartitionTable(w, part, p.ScaleFactor); err != nil {
			return err
		}
	}
	return nil
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest event logs written to a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchCmd,
	}
	cmd.Flags().BoolVar(&watchScan, "scan", false, "ingest existing files before watching")
	cmd.Flags().DurationVar(&watchDebounce, "debounce", ingest.DefaultDebounce, "quiet period before a file is read")
	return cmd
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	dir := args[0]
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	in := ingest.New(ingest.Options{
		Recorder: recorderConfig(),
		Binner:   binnerConfig(),
		Sink:     st,
		Debounce: watchDebounce,
	})
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if watchScan {
		if _, err := in.Dir(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return in.Watch(ctx, dir)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := configPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}
