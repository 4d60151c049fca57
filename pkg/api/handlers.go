package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bdougie/vibe-check/pkg/aggregate"
	"github.com/bdougie/vibe-check/pkg/api/indexstore"
	"github.com/bdougie/vibe-check/pkg/recorder"
	"github.com/bdougie/vibe-check/pkg/sysinfo"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// runEntry is the JSON shape of an indexed run.
type runEntry struct {
	ID                 uint    `json:"id"`
	RunID              string  `json:"run_id"`
	DiscoveryPath      string  `json:"discovery_path"`
	Model              string  `json:"model"`
	Task               string  `json:"task"`
	Difficulty         string  `json:"difficulty"`
	Success            bool    `json:"success"`
	CompletionTime     float64 `json:"completion_time"`
	PromptsSent        int     `json:"prompts_sent"`
	CharsSent          int     `json:"chars_sent"`
	CharsReceived      int     `json:"chars_received"`
	HumanInterventions int     `json:"human_interventions"`
	FilesModified      int     `json:"files_modified"`
	LinesAdded         int     `json:"lines_added"`
	LinesRemoved       int     `json:"lines_removed"`
	Revision           string  `json:"revision,omitempty"`
	Dirty              bool    `json:"dirty,omitempty"`
	StartedAt          float64 `json:"started_at,omitempty"`
	CompletedAt        float64 `json:"completed_at,omitempty"`
}

func newRunEntry(run *indexstore.Run) runEntry {
	return runEntry{
		ID:                 run.ID,
		RunID:              run.RunID,
		DiscoveryPath:      run.DiscoveryPath,
		Model:              run.Model,
		Task:               run.Task,
		Difficulty:         run.Difficulty,
		Success:            run.Success,
		CompletionTime:     run.CompletionTime,
		PromptsSent:        run.PromptsSent,
		CharsSent:          run.CharsSent,
		CharsReceived:      run.CharsReceived,
		HumanInterventions: run.HumanInterventions,
		FilesModified:      run.FilesModified,
		LinesAdded:         run.LinesAdded,
		LinesRemoved:       run.LinesRemoved,
		Revision:           run.Revision,
		Dirty:              run.Dirty,
		StartedAt:          run.StartedAt,
		CompletedAt:        run.CompletedAt,
	}
}

type runsResponse struct {
	Generated int64      `json:"generated"`
	Count     int        `json:"count"`
	Runs      []runEntry `json:"runs"`
}

type statsResponse struct {
	Generated int64                       `json:"generated"`
	GroupBy   string                      `json:"group_by"`
	Overall   *aggregate.Stats            `json:"overall"`
	Groups    map[string]*aggregate.Stats `json:"groups"`
}

type rankingsResponse struct {
	Generated int64                       `json:"generated"`
	Metric    string                      `json:"metric"`
	GroupBy   string                      `json:"group_by"`
	Ranking   []string                    `json:"ranking"`
	Groups    map[string]*aggregate.Stats `json:"groups"`
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSystem returns host system information.
func (s *server) handleSystem(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sysinfo.Capture(r.Context(), s.log))
}

// handleListRuns returns indexed runs, optionally filtered by model, task
// or difficulty query parameters, newest first.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := indexstore.RunFilter{
		Model:      q.Get("model"),
		Task:       q.Get("task"),
		Difficulty: q.Get("difficulty"),
	}

	runs, err := s.indexStore.ListRuns(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs: " + err.Error()})

		return
	}

	entries := make([]runEntry, 0, len(runs))
	for i := range runs {
		entries = append(entries, newRunEntry(&runs[i]))
	}

	writeJSON(w, http.StatusOK, runsResponse{
		Generated: time.Now().Unix(),
		Count:     len(entries),
		Runs:      entries,
	})
}

// handleGetRun returns a single indexed run by ID.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid run id"})

		return
	}

	run, err := s.indexStore.GetRun(r.Context(), uint(id))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"getting run: " + err.Error()})

		return
	}

	if run == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})

		return
	}

	writeJSON(w, http.StatusOK, newRunEntry(run))
}

// handleStats returns overall and per-group statistics computed over all
// indexed runs. The group_by query parameter selects the grouping key
// (model, task or difficulty; default model).
func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = "model"
	}

	key, err := aggregate.KeyFor(groupBy)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	records, err := s.loadIndexedRecords(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs: " + err.Error()})

		return
	}

	groups := s.agg.GroupBy(records, key)

	groupStats := make(map[string]*aggregate.Stats, len(groups))
	for k, group := range groups {
		groupStats[k] = s.agg.ComputeStats(group)
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Generated: time.Now().Unix(),
		GroupBy:   groupBy,
		Overall:   s.agg.ComputeStats(records),
		Groups:    groupStats,
	})
}

// handleRankings returns group keys ordered by a ranking metric. Metrics
// follow the aggregate package (default success_rate); grouping follows
// the same group_by parameter as the stats endpoint.
func (s *server) handleRankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	groupBy := q.Get("group_by")
	if groupBy == "" {
		groupBy = "model"
	}

	key, err := aggregate.KeyFor(groupBy)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	metric := aggregate.MetricSuccessRate

	if m := q.Get("metric"); m != "" {
		metric, err = aggregate.ParseMetric(m)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}
	}

	records, err := s.loadIndexedRecords(r)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs: " + err.Error()})

		return
	}

	groups := s.agg.GroupBy(records, key)

	groupStats := make(map[string]*aggregate.Stats, len(groups))
	for k, group := range groups {
		groupStats[k] = s.agg.ComputeStats(group)
	}

	writeJSON(w, http.StatusOK, rankingsResponse{
		Generated: time.Now().Unix(),
		Metric:    string(metric),
		GroupBy:   groupBy,
		Ranking:   s.agg.Rank(groupStats, metric, nil),
		Groups:    groupStats,
	})
}

// loadIndexedRecords rebuilds run records from the index for aggregation.
func (s *server) loadIndexedRecords(r *http.Request) ([]*recorder.RunRecord, error) {
	runs, err := s.indexStore.ListAllRuns(r.Context())
	if err != nil {
		return nil, err
	}

	records := make([]*recorder.RunRecord, 0, len(runs))
	for i := range runs {
		records = append(records, runs[i].Record())
	}

	return records, nil
}

// handleFileRequest serves raw result files from the results directories.
func (s *server) handleFileRequest(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"file path is required"})

		return
	}

	if err := s.fileServer.ServeFile(w, r, filePath); err != nil {
		s.log.WithError(err).WithField("path", filePath).
			Debug("File request failed")

		writeJSON(w, http.StatusNotFound, errorResponse{"file not found"})
	}
}
