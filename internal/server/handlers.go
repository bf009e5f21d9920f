package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/keyprofile/internal/binner"
	"github.com/verte-zerg/keyprofile/internal/eventlog"
	"github.com/verte-zerg/keyprofile/internal/features"
	"github.com/verte-zerg/keyprofile/internal/model"
	"github.com/verte-zerg/keyprofile/internal/profile"
	"github.com/verte-zerg/keyprofile/internal/recorder"
	"github.com/verte-zerg/keyprofile/internal/stats"
	"github.com/verte-zerg/keyprofile/internal/store"
)

type transformRequest struct {
	Series map[string][]float64 `json:"series"`
}

type transformResponse struct {
	Features   features.Document           `json:"features"`
	Partitions []features.ChannelPartition `json:"partitions"`
}

type createSessionRequest struct {
	Text      string        `json:"text"`
	StartedAt *time.Time    `json:"started_at"`
	Events    []model.Event `json:"events"`
}

type sessionResponse struct {
	ID         int64                                  `json:"id"`
	Ref        string                                 `json:"ref"`
	Source     string                                 `json:"source"`
	Text       string                                 `json:"text"`
	StartedAt  time.Time                              `json:"started_at"`
	EndedAt    time.Time                              `json:"ended_at"`
	Summary    map[model.Channel]model.ChannelSummary `json:"summary"`
	Metrics    stats.Metrics                          `json:"metrics"`
	Features   features.Document                      `json:"features"`
	Partitions []features.ChannelPartition            `json:"partitions"`
}

type sessionListItem struct {
	ID          int64                                  `json:"id"`
	Ref         string                                 `json:"ref"`
	Source      string                                 `json:"source"`
	EndedAt     time.Time                              `json:"ended_at"`
	TextLength  int                                    `json:"text_length"`
	DurationMs  int64                                  `json:"duration_ms"`
	PressEvents int                                    `json:"press_events"`
	Summary     map[model.Channel]model.ChannelSummary `json:"summary"`
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer func() {
		_ = r.Body.Close()
	}()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		ErrorResponse(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return body, true
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req transformRequest
	if err := json.Unmarshal(body, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	series := model.Series{}
	for name, values := range req.Series {
		ch, ok := model.ParseChannel(name)
		if !ok {
			ErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("unknown channel %q", name))
			return
		}
		for i, v := range values {
			if math.Abs(v) > binner.MaxSample {
				ErrorResponse(w, http.StatusBadRequest,
					fmt.Sprintf("%s[%d] is outside ±%d", name, i, int64(binner.MaxSample)))
				return
			}
		}
		series[ch] = values
	}
	doc := features.Transform(series, s.opts.Binner)
	JSONResponse(w, http.StatusOK, transformResponse{Features: doc, Partitions: doc.Partitions})
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.opts.Store == nil {
		ErrorResponse(w, http.StatusServiceUnavailable, "session storage is disabled")
		return false
	}
	return true
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := eventlog.ValidateSession(generic); err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	var req createSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := eventlog.Normalize(req.Events)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	start := s.now()
	if req.StartedAt != nil {
		start = *req.StartedAt
	}
	res := recorder.ReplayAt(s.opts.Recorder, events, req.Text, start)
	p := profile.Build(res, s.opts.Recorder.ScaleFactor, s.opts.Binner)
	rec, err := p.Record(model.SourceAPI)
	if err != nil {
		slog.Error("failed to encode session", "error", err)
		ErrorResponse(w, http.StatusInternalServerError, "failed to encode session")
		return
	}
	rec.Ref = uuid.NewString()
	id, err := s.opts.Store.InsertSession(r.Context(), rec)
	if err != nil {
		slog.Error("failed to store session", "error", err)
		ErrorResponse(w, http.StatusInternalServerError, "failed to store session")
		return
	}
	rec.ID = id
	slog.Info("session stored", "id", id, "ref", rec.Ref, "presses", rec.PressEvents)
	JSONResponse(w, http.StatusCreated, newSessionResponse(rec, p))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	cfg, err := statsConfigFromQuery(r)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.opts.Store.ListSessions(r.Context(), cfg)
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		ErrorResponse(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	items := make([]sessionListItem, 0, len(sessions))
	for _, agg := range sessions {
		items = append(items, sessionListItem{
			ID:          agg.SessionID,
			Ref:         agg.Ref,
			Source:      agg.Source,
			EndedAt:     agg.EndedAt,
			TextLength:  agg.TextLength,
			DurationMs:  agg.DurationMs,
			PressEvents: agg.PressEvents,
			Summary:     agg.Summaries,
		})
	}
	JSONResponse(w, http.StatusOK, items)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	rec, err := s.opts.Store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		ErrorResponse(w, http.StatusNotFound, fmt.Sprintf("session %d not found", id))
		return
	}
	if err != nil {
		slog.Error("failed to load session", "id", id, "error", err)
		ErrorResponse(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	JSONResponse(w, http.StatusOK, newSessionResponse(rec, profile.FromRecord(rec)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	err := s.opts.Store.DeleteSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		ErrorResponse(w, http.StatusNotFound, fmt.Sprintf("session %d not found", id))
		return
	}
	if err != nil {
		slog.Error("failed to delete session", "id", id, "error", err)
		ErrorResponse(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		ErrorResponse(w, http.StatusBadRequest, "session id must be a positive integer")
		return 0, false
	}
	return id, true
}

func statsConfigFromQuery(r *http.Request) (model.StatsConfig, error) {
	q := r.URL.Query()
	cfg := model.StatsConfig{Source: q.Get("source")}
	if v := q.Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("last must be a non-negative integer")
		}
		cfg.Last = n
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v)
		if err != nil {
			return cfg, err
		}
		cfg.Since = &since
	}
	return cfg, nil
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("since must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func newSessionResponse(rec model.SessionRecord, p profile.Profile) sessionResponse {
	return sessionResponse{
		ID:         rec.ID,
		Ref:        rec.Ref,
		Source:     rec.Source,
		Text:       rec.Text,
		StartedAt:  rec.StartedAt,
		EndedAt:    rec.EndedAt,
		Summary:    p.Result.Summary,
		Metrics:    p.Metrics,
		Features:   p.Document,
		Partitions: p.Document.Partitions,
	}
}
