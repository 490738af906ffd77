// Package runexport serializes closed runs and their skids as
// newline-delimited JSON and uploads the batch to object storage, where
// supervisors reconcile piece counts against the physical paperwork.
package runexport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/repo"
)

// ObjectStore is the slice of the storage client the exporter needs.
// *minio.Client satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Exporter struct {
	runs   repo.RunRepository
	skids  repo.SkidRepository
	store  ObjectStore
	bucket string
	logger *slog.Logger
}

func New(runs repo.RunRepository, skids repo.SkidRepository, store ObjectStore, bucket string, logger *slog.Logger) *Exporter {
	if runs == nil || skids == nil || store == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{runs: runs, skids: skids, store: store, bucket: bucket, logger: logger}
}

// Result describes one uploaded batch.
type Result struct {
	ObjectKey string `json:"object_key"`
	Runs      int    `json:"runs"`
	Skids     int    `json:"skids"`
	SHA256    string `json:"sha256"`
}

type exportSkid struct {
	SkidNumber int    `json:"skid_number"`
	StartCount *int64 `json:"start_count"`
	EndCount   *int64 `json:"end_count"`
	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type exportRun struct {
	RunID            string       `json:"run_id"`
	Stage            string       `json:"stage"`
	ProductionNumber string       `json:"production_number"`
	RunNumber        string       `json:"run_number,omitempty"`
	Part             string       `json:"part"`
	Component        string       `json:"component,omitempty"`
	Operator         string       `json:"operator"`
	Machine          string       `json:"machine"`
	StartedAt        string       `json:"started_at,omitempty"`
	EndedAt          string       `json:"ended_at,omitempty"`
	StartCount       *int64       `json:"start_count"`
	EndCount         *int64       `json:"end_count"`
	ScrapCount       *int64       `json:"scrap_count"`
	Notes            string       `json:"notes,omitempty"`
	Skids            []exportSkid `json:"skids"`
}

// Export uploads every closed run matching the filter, one JSON line per run
// with its skids inlined. Open runs are skipped; they are still changing.
func (e *Exporter) Export(ctx context.Context, filter repo.RunFilter) (Result, error) {
	runs, err := e.runs.ListRuns(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("run export: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	exported := 0
	skidTotal := 0
	for _, run := range runs {
		if run.EndedAt == nil {
			continue
		}
		skids, err := e.skids.ListByRun(ctx, run.ID)
		if err != nil {
			return Result{}, fmt.Errorf("run export: skids for %s: %w", run.ID, err)
		}
		if err := enc.Encode(exportRunFromDomain(run, skids)); err != nil {
			return Result{}, fmt.Errorf("run export: %w", err)
		}
		exported++
		skidTotal += len(skids)
	}

	body := buf.Bytes()
	sum := sha256.Sum256(body)
	key := "exports/runs/" + time.Now().UTC().Format("20060102T150405Z") + ".ndjson"

	putCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := e.store.PutObject(putCtx, e.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"}); err != nil {
		return Result{}, fmt.Errorf("run export: upload: %w", err)
	}

	e.logger.Info("run history exported",
		"object_key", key,
		"runs", exported,
		"skids", skidTotal,
	)
	return Result{
		ObjectKey: key,
		Runs:      exported,
		Skids:     skidTotal,
		SHA256:    hex.EncodeToString(sum[:]),
	}, nil
}

func exportRunFromDomain(run domain.Run, skids []domain.Skid) exportRun {
	out := exportRun{
		RunID:            run.ID,
		Stage:            string(run.Stage),
		ProductionNumber: run.ProductionNumber,
		RunNumber:        run.RunNumber,
		Part:             run.Part,
		Component:        run.Component,
		Operator:         run.Operator,
		Machine:          run.Machine,
		StartedAt:        timeString(run.StartedAt),
		EndedAt:          timeString(run.EndedAt),
		StartCount:       run.StartCount,
		EndCount:         run.EndCount,
		ScrapCount:       run.ScrapCount,
		Notes:            run.Notes,
		Skids:            make([]exportSkid, 0, len(skids)),
	}
	for _, skid := range skids {
		out.Skids = append(out.Skids, exportSkid{
			SkidNumber: skid.SkidNumber,
			StartCount: skid.StartCount,
			EndCount:   skid.EndCount,
			StartedAt:  skid.StartedAt.UTC().Format(time.RFC3339Nano),
			EndedAt:    timeString(skid.EndedAt),
			Notes:      skid.Notes,
		})
	}
	return out
}

func timeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
