package runexport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/prestec-labs/floortrack/internal/domain"
	"github.com/prestec-labs/floortrack/internal/repo"
)

type fakeRunRepo struct {
	runs []domain.Run
}

func (f *fakeRunRepo) CreateRun(ctx context.Context, run domain.Run) error { return nil }

func (f *fakeRunRepo) GetRun(ctx context.Context, id string) (domain.Run, error) {
	return domain.Run{}, repo.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	return f.runs, nil
}

func (f *fakeRunRepo) CloseRun(ctx context.Context, id string, endedAt time.Time, endCount, scrap *int64, notes string) (bool, error) {
	return false, nil
}

type fakeSkidRepo struct {
	byRun map[string][]domain.Skid
}

func (f *fakeSkidRepo) ClaimNext(ctx context.Context, skid domain.Skid) (domain.Skid, error) {
	return skid, nil
}

func (f *fakeSkidRepo) OpenSkid(ctx context.Context, runID string) (domain.Skid, error) {
	return domain.Skid{}, repo.ErrNotFound
}

func (f *fakeSkidRepo) CloseSkid(ctx context.Context, runID string, skidNumber int, endCount *int64, notes string, endedAt time.Time) (bool, error) {
	return false, nil
}

func (f *fakeSkidRepo) ListByRun(ctx context.Context, runID string) ([]domain.Skid, error) {
	return f.byRun[runID], nil
}

type fakeStore struct {
	bucket string
	key    string
	body   []byte
}

func (f *fakeStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.bucket = bucketName
	f.key = objectName
	f.body = body
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, nil
}

func int64p(v int64) *int64 { return &v }

func timep(t time.Time) *time.Time { return &t }

func TestExportWritesClosedRunsOnly(t *testing.T) {
	started := time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC)
	ended := started.Add(8 * time.Hour)

	runs := &fakeRunRepo{runs: []domain.Run{
		{
			ID: "run-closed", Stage: domain.StagePress, ProductionNumber: "PN-9",
			RunNumber: "R1", Part: "P1", Operator: "operator-7", Machine: "P-101",
			StartedAt: timep(started), EndedAt: timep(ended),
			StartCount: int64p(0), EndCount: int64p(380), ScrapCount: int64p(5),
		},
		{
			ID: "run-open", Stage: domain.StagePress, ProductionNumber: "PN-9",
			RunNumber: "R2", Part: "P1", Operator: "operator-8", Machine: "P-102",
			StartedAt: timep(started),
		},
	}}
	skids := &fakeSkidRepo{byRun: map[string][]domain.Skid{
		"run-closed": {
			{RunID: "run-closed", SkidNumber: 1, StartCount: int64p(0), EndCount: int64p(250), StartedAt: started, EndedAt: timep(ended)},
			{RunID: "run-closed", SkidNumber: 2, StartCount: int64p(250), EndCount: int64p(400), StartedAt: started, EndedAt: timep(ended)},
		},
	}}
	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	exporter := New(runs, skids, store, "floortrack-exports", logger)
	result, err := exporter.Export(context.Background(), repo.RunFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Runs != 1 || result.Skids != 2 {
		t.Fatalf("expected 1 run and 2 skids, got %+v", result)
	}
	if store.bucket != "floortrack-exports" {
		t.Fatalf("unexpected bucket %q", store.bucket)
	}
	if !strings.HasPrefix(result.ObjectKey, "exports/runs/") || !strings.HasSuffix(result.ObjectKey, ".ndjson") {
		t.Fatalf("unexpected object key %q", result.ObjectKey)
	}

	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(store.body))
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("bad ndjson line: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if lines[0]["run_id"] != "run-closed" {
		t.Fatalf("open run must not be exported, got %v", lines[0]["run_id"])
	}
	skidList, ok := lines[0]["skids"].([]any)
	if !ok || len(skidList) != 2 {
		t.Fatalf("expected two inlined skids, got %v", lines[0]["skids"])
	}
}

func TestExportEmptyLedgerUploadsEmptyBatch(t *testing.T) {
	store := &fakeStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exporter := New(&fakeRunRepo{}, &fakeSkidRepo{}, store, "floortrack-exports", logger)

	result, err := exporter.Export(context.Background(), repo.RunFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Runs != 0 {
		t.Fatalf("expected zero runs, got %d", result.Runs)
	}
	if len(store.body) != 0 {
		t.Fatalf("expected empty body, got %q", store.body)
	}
}
