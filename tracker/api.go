package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prestec-labs/floortrack/internal/device"
	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/repo"
	"github.com/prestec-labs/floortrack/internal/runexport"
	"github.com/prestec-labs/floortrack/internal/service/runledger"
	"github.com/prestec-labs/floortrack/internal/service/setupstation"
	"github.com/prestec-labs/floortrack/internal/service/skidtracker"
)

type trackerAPI struct {
	logger   *slog.Logger
	runs     *runledger.Service
	skids    *skidtracker.Service
	setups   *setupstation.Service
	counter  *device.CounterClient
	exporter *runexport.Exporter
}

func newTrackerAPI(logger *slog.Logger, runs *runledger.Service, skids *skidtracker.Service, setups *setupstation.Service, counter *device.CounterClient, exporter *runexport.Exporter) *trackerAPI {
	return &trackerAPI{
		logger:   logger,
		runs:     runs,
		skids:    skids,
		setups:   setups,
		counter:  counter,
		exporter: exporter,
	}
}

func (api *trackerAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", api.handleRunLogin)
	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("POST /runs/{run_id}/logout", api.handleRunLogout)
	mux.HandleFunc("POST /runs/{run_id}/end", api.handleRunEnd)

	mux.HandleFunc("POST /runs/{run_id}/skids", api.handleStartSkid)
	mux.HandleFunc("GET /runs/{run_id}/skids", api.handleListSkids)
	mux.HandleFunc("POST /skids/end", api.handleEndSkid)

	mux.HandleFunc("POST /setups", api.handleSetupLogin)
	mux.HandleFunc("POST /setups/logout", api.handleSetupLogout)

	mux.HandleFunc("GET /machines/{machine}/count", api.handleReadCount)
	mux.HandleFunc("POST /machines/{machine}/count/reset", api.handleResetCount)

	mux.HandleFunc("POST /exports/runs", api.handleExportRuns)
}

type runResponse struct {
	RunID            string  `json:"run_id"`
	Stage            string  `json:"stage"`
	ProductionNumber string  `json:"production_number"`
	RunNumber        string  `json:"run_number,omitempty"`
	Part             string  `json:"part"`
	Component        string  `json:"component,omitempty"`
	SkidNumber       *int    `json:"skid_number,omitempty"`
	Operator         string  `json:"operator"`
	Machine          string  `json:"machine"`
	StartedAt        *string `json:"started_at,omitempty"`
	EndedAt          *string `json:"ended_at,omitempty"`
	StartCount       *int64  `json:"start_count"`
	EndCount         *int64  `json:"end_count"`
	ScrapCount       *int64  `json:"scrap_count"`
	Notes            string  `json:"notes,omitempty"`
	Open             bool    `json:"open"`
}

func runResponseFromDomain(run domain.Run) runResponse {
	return runResponse{
		RunID:            run.ID,
		Stage:            string(run.Stage),
		ProductionNumber: run.ProductionNumber,
		RunNumber:        run.RunNumber,
		Part:             run.Part,
		Component:        run.Component,
		SkidNumber:       run.SkidNumber,
		Operator:         run.Operator,
		Machine:          run.Machine,
		StartedAt:        timeStringPtr(run.StartedAt),
		EndedAt:          timeStringPtr(run.EndedAt),
		StartCount:       run.StartCount,
		EndCount:         run.EndCount,
		ScrapCount:       run.ScrapCount,
		Notes:            run.Notes,
		Open:             run.Open,
	}
}

type skidResponse struct {
	SkidID           string  `json:"skid_id"`
	RunID            string  `json:"run_id"`
	ProductionNumber string  `json:"production_number"`
	Part             string  `json:"part"`
	SkidNumber       int     `json:"skid_number"`
	StartCount       *int64  `json:"start_count"`
	EndCount         *int64  `json:"end_count"`
	StartedAt        string  `json:"started_at"`
	EndedAt          *string `json:"ended_at,omitempty"`
	Notes            string  `json:"notes,omitempty"`
}

func skidResponseFromDomain(skid domain.Skid) skidResponse {
	return skidResponse{
		SkidID:           skid.ID,
		RunID:            skid.RunID,
		ProductionNumber: skid.ProductionNumber,
		Part:             skid.Part,
		SkidNumber:       skid.SkidNumber,
		StartCount:       skid.StartCount,
		EndCount:         skid.EndCount,
		StartedAt:        skid.StartedAt.UTC().Format(time.RFC3339Nano),
		EndedAt:          timeStringPtr(skid.EndedAt),
		Notes:            skid.Notes,
	}
}

type runLoginRequest struct {
	Stage            string `json:"stage"`
	ProductionNumber string `json:"production_number"`
	RunNumber        string `json:"run_number,omitempty"`
	Part             string `json:"part"`
	Component        string `json:"component,omitempty"`
	SkidNumber       *int   `json:"skid_number,omitempty"`
	Operator         string `json:"operator"`
	Machine          string `json:"machine"`
}

func (api *trackerAPI) handleRunLogin(w http.ResponseWriter, r *http.Request) {
	var req runLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	stage := domain.NormalizeStage(req.Stage)
	if stage == "" {
		api.writeError(w, r, http.StatusBadRequest, "unknown_stage")
		return
	}

	run, err := api.runs.Login(r.Context(), runledger.LoginParams{
		Stage:            stage,
		ProductionNumber: strings.TrimSpace(req.ProductionNumber),
		RunNumber:        strings.TrimSpace(req.RunNumber),
		Part:             strings.TrimSpace(req.Part),
		Component:        strings.TrimSpace(req.Component),
		SkidNumber:       req.SkidNumber,
		Operator:         strings.TrimSpace(req.Operator),
		Machine:          strings.TrimSpace(req.Machine),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, runResponseFromDomain(run))
}

func (api *trackerAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := repo.RunFilter{
		ProductionNumber: strings.TrimSpace(query.Get("production_number")),
		Part:             strings.TrimSpace(query.Get("part")),
		Machine:          strings.TrimSpace(query.Get("machine")),
	}
	if raw := strings.TrimSpace(query.Get("stage")); raw != "" {
		stage := domain.NormalizeStage(raw)
		if stage == "" {
			api.writeError(w, r, http.StatusBadRequest, "unknown_stage")
			return
		}
		filter.Stage = stage
	}
	if raw := strings.TrimSpace(query.Get("open")); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			api.writeError(w, r, http.StatusBadRequest, "invalid_open")
			return
		}
		filter.OpenOnly = open
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			api.writeError(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		filter.Limit = limit
	}

	runs, err := api.runs.ListRuns(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponseFromDomain(run))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (api *trackerAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, runResponseFromDomain(run))
}

type runCloseRequest struct {
	EndCount *int64 `json:"end_count,omitempty"`
	Scrap    *int64 `json:"scrap,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Operator string `json:"operator"`
}

func (api *trackerAPI) handleRunLogout(w http.ResponseWriter, r *http.Request) {
	var req runCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	closed, err := api.runs.Logout(r.Context(), r.PathValue("run_id"), req.EndCount, req.Scrap, req.Notes, strings.TrimSpace(req.Operator))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"closed": closed})
}

func (api *trackerAPI) handleRunEnd(w http.ResponseWriter, r *http.Request) {
	var req runCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	closed, err := api.runs.EndRun(r.Context(), r.PathValue("run_id"), req.EndCount, req.Scrap, req.Notes, strings.TrimSpace(req.Operator))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"closed": closed})
}

type startSkidRequest struct {
	Operator string `json:"operator"`
}

func (api *trackerAPI) handleStartSkid(w http.ResponseWriter, r *http.Request) {
	var req startSkidRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	skid, err := api.skids.StartSkid(r.Context(), r.PathValue("run_id"), strings.TrimSpace(req.Operator))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, skidResponseFromDomain(skid))
}

func (api *trackerAPI) handleListSkids(w http.ResponseWriter, r *http.Request) {
	skids, err := api.skids.ListSkids(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]skidResponse, 0, len(skids))
	for _, skid := range skids {
		out = append(out, skidResponseFromDomain(skid))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"skids": out})
}

type endSkidRequest struct {
	RunID            string `json:"run_id"`
	ProductionNumber string `json:"production_number"`
	Part             string `json:"part"`
	SkidNumber       int    `json:"skid_number"`
	Pieces           int64  `json:"pieces"`
	Notes            string `json:"notes,omitempty"`
	Operator         string `json:"operator"`
	Machine          string `json:"machine,omitempty"`
	Stage            string `json:"stage"`
}

func (api *trackerAPI) handleEndSkid(w http.ResponseWriter, r *http.Request) {
	var req endSkidRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	stage := domain.NormalizeStage(req.Stage)
	if stage == "" {
		api.writeError(w, r, http.StatusBadRequest, "unknown_stage")
		return
	}
	if req.SkidNumber < 1 {
		api.writeError(w, r, http.StatusBadRequest, "invalid_skid_number")
		return
	}

	closed, err := api.skids.EndSkid(r.Context(), skidtracker.EndSkidParams{
		RunID:            strings.TrimSpace(req.RunID),
		ProductionNumber: strings.TrimSpace(req.ProductionNumber),
		Part:             strings.TrimSpace(req.Part),
		SkidNumber:       req.SkidNumber,
		Pieces:           req.Pieces,
		Notes:            req.Notes,
		Operator:         strings.TrimSpace(req.Operator),
		Machine:          strings.TrimSpace(req.Machine),
		Stage:            stage,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"closed": closed})
}

type setupLoginRequest struct {
	ProductionNumber string `json:"production_number"`
	Part             string `json:"part"`
	Component        string `json:"component,omitempty"`
	RunNumber        string `json:"run_number"`
	Operator         string `json:"operator"`
	Machine          string `json:"machine"`
}

func (api *trackerAPI) handleSetupLogin(w http.ResponseWriter, r *http.Request) {
	var req setupLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	session, err := api.setups.Login(r.Context(), setupstation.LoginParams{
		ProductionNumber: strings.TrimSpace(req.ProductionNumber),
		Part:             strings.TrimSpace(req.Part),
		Component:        strings.TrimSpace(req.Component),
		RunNumber:        strings.TrimSpace(req.RunNumber),
		Operator:         strings.TrimSpace(req.Operator),
		Machine:          strings.TrimSpace(req.Machine),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": session.ID,
		"started_at": session.StartedAt.UTC().Format(time.RFC3339Nano),
		"open":       session.Open,
	})
}

type setupLogoutRequest struct {
	Part          string `json:"part"`
	RunNumber     string `json:"run_number"`
	StartedAt     string `json:"started_at"`
	Difficulty    string `json:"difficulty,omitempty"`
	Assistance    string `json:"assistance,omitempty"`
	AssistedBy    string `json:"assisted_by,omitempty"`
	SetupComplete string `json:"setup_complete"`
	Notes         string `json:"notes,omitempty"`
	Operator      string `json:"operator"`
}

func (api *trackerAPI) handleSetupLogout(w http.ResponseWriter, r *http.Request) {
	var req setupLogoutRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	startedAt, err := time.Parse(time.RFC3339Nano, req.StartedAt)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_started_at")
		return
	}

	closed, err := api.setups.Logout(r.Context(), setupstation.LogoutParams{
		Part:          strings.TrimSpace(req.Part),
		RunNumber:     strings.TrimSpace(req.RunNumber),
		StartedAt:     startedAt,
		Difficulty:    strings.TrimSpace(req.Difficulty),
		Assistance:    strings.TrimSpace(req.Assistance),
		AssistedBy:    strings.TrimSpace(req.AssistedBy),
		SetupComplete: strings.TrimSpace(req.SetupComplete),
		Notes:         req.Notes,
		Operator:      strings.TrimSpace(req.Operator),
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"closed": closed})
}

func (api *trackerAPI) handleReadCount(w http.ResponseWriter, r *http.Request) {
	machine := r.PathValue("machine")
	count, err := api.counter.Read(r.Context(), machine)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"machine": machine,
		"count":   count.Ptr(),
		"known":   count.Known,
	})
}

func (api *trackerAPI) handleResetCount(w http.ResponseWriter, r *http.Request) {
	machine := r.PathValue("machine")
	if err := api.counter.Reset(r.Context(), machine); err != nil {
		if errors.Is(err, device.ErrUnknownMachine) {
			api.writeError(w, r, http.StatusBadRequest, "unknown_machine")
			return
		}
		api.writeError(w, r, http.StatusBadGateway, "device_unavailable")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"machine": machine, "reset": true})
}

type exportRunsRequest struct {
	Stage            string `json:"stage,omitempty"`
	ProductionNumber string `json:"production_number,omitempty"`
	Part             string `json:"part,omitempty"`
}

func (api *trackerAPI) handleExportRuns(w http.ResponseWriter, r *http.Request) {
	var req exportRunsRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	filter := repo.RunFilter{
		ProductionNumber: strings.TrimSpace(req.ProductionNumber),
		Part:             strings.TrimSpace(req.Part),
	}
	if raw := strings.TrimSpace(req.Stage); raw != "" {
		stage := domain.NormalizeStage(raw)
		if stage == "" {
			api.writeError(w, r, http.StatusBadRequest, "unknown_stage")
			return
		}
		filter.Stage = stage
	}

	result, err := api.exporter.Export(r.Context(), filter)
	if err != nil {
		api.writeError(w, r, http.StatusBadGateway, "export_failed")
		return
	}
	api.writeJSON(w, http.StatusOK, result)
}

func (api *trackerAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, device.ErrUnknownMachine):
		api.writeError(w, r, http.StatusBadRequest, "unknown_machine")
	case errors.Is(err, runledger.ErrOpenSkid):
		api.writeError(w, r, http.StatusConflict, "open_skid")
	case errors.Is(err, skidtracker.ErrRunClosed):
		api.writeError(w, r, http.StatusConflict, "run_closed")
	default:
		api.logger.Error("request failed",
			"request_id", r.Header.Get("X-Request-Id"),
			"path", r.URL.Path,
			"error", err,
		)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *trackerAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *trackerAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func timeStringPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
