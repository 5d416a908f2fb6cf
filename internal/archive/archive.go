// Package archive uploads the artifacts of a finished run to object storage.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sortbench/sortbench/internal/config"
	"github.com/sortbench/sortbench/internal/engine"
	sberrors "github.com/sortbench/sortbench/internal/errors"
	"github.com/sortbench/sortbench/internal/storage"
)

// SummaryObjectName is the object name of the archived summary file.
const SummaryObjectName = "outputfile.summary"

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RunPrefix returns the object prefix holding the artifacts of runID.
func RunPrefix(runID string) string {
	return path.Join("runs", runID) + "/"
}

// SnapshotObject returns the object path of the compressed snapshot.
func SnapshotObject(runID, engineKind string) string {
	return path.Join("runs", runID, fmt.Sprintf("snapshot.%s.sz", engineKind))
}

// SummaryObject returns the object path of the archived summary.
func SummaryObject(runID string) string {
	return path.Join("runs", runID, SummaryObjectName)
}

// Result describes the objects written by Archive.
type Result struct {
	RunID          string
	SnapshotObject string
	SnapshotETag   string
	SummaryObject  string
	SummaryETag    string
}

// Archiver uploads a snappy-compressed engine snapshot and the summary file.
type Archiver struct {
	store      storage.ObjectStorage
	engineKind string
	logger     *zap.Logger
}

// New creates an archiver writing to store.
func New(store storage.ObjectStorage, engineKind string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, engineKind: engineKind, logger: logger}
}

// NewFromConfig builds the archiver selected by cfg.Archive. It returns nil
// when archiving is disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Archiver, error) {
	var (
		store storage.ObjectStorage
		err   error
	)
	switch cfg.Archive.Type {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveLocal:
		store, err = storage.NewLocalStorage(cfg.Archive.Path)
	case config.ArchiveS3:
		s3Cfg := storage.DefaultS3Config()
		if cfg.Archive.S3.Region != "" {
			s3Cfg.Region = cfg.Archive.S3.Region
		}
		if cfg.Archive.S3.Endpoint != "" {
			s3Cfg.Endpoint = cfg.Archive.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		store, err = storage.NewS3Storage(ctx, cfg.Archive.S3.Bucket, s3Cfg, logger)
	default:
		return nil, fmt.Errorf("archive: unsupported type: %s", cfg.Archive.Type)
	}
	if err != nil {
		return nil, sberrors.NewIOError(sberrors.CodeArchiveFailed, "failed to open archive storage", err).
			WithDetails(map[string]interface{}{"type": cfg.Archive.Type})
	}
	return New(store, cfg.Engine, logger), nil
}

// Archive snapshots eng and uploads the snapshot and the summary file under
// runs/<runID>/. A missing summary file is skipped.
func (a *Archiver) Archive(ctx context.Context, eng engine.Engine, runID, summaryPath string) (*Result, error) {
	archiveErr := func(message string, cause error) error {
		return sberrors.NewIOError(sberrors.CodeArchiveFailed, message, cause).
			WithDetails(map[string]interface{}{"run_id": runID})
	}

	res := &Result{RunID: runID, SnapshotObject: SnapshotObject(runID, a.engineKind)}

	tmp, err := os.CreateTemp("", "sortbench-snapshot-*.sz")
	if err != nil {
		return nil, archiveErr("failed to create snapshot file", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeSnapshot(ctx, eng, tmp); err != nil {
		tmp.Close()
		return nil, archiveErr("failed to snapshot database", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, archiveErr("failed to snapshot database", err)
	}

	res.SnapshotETag, err = a.store.Upload(ctx, tmp.Name(), res.SnapshotObject)
	if err != nil {
		return nil, archiveErr("failed to upload snapshot", err)
	}

	if _, err := os.Stat(summaryPath); err == nil {
		res.SummaryObject = SummaryObject(runID)
		res.SummaryETag, err = a.store.Upload(ctx, summaryPath, res.SummaryObject)
		if err != nil {
			return nil, archiveErr("failed to upload summary", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, archiveErr("failed to stat summary", err)
	}

	a.logger.Info("run archived",
		zap.String("run_id", runID),
		zap.String("snapshot", res.SnapshotObject),
		zap.String("summary", res.SummaryObject))
	return res, nil
}

// writeSnapshot streams the engine snapshot through a snappy framed writer.
func writeSnapshot(ctx context.Context, eng engine.Engine, f *os.File) error {
	w := snappy.NewBufferedWriter(f)
	if err := eng.Snapshot(ctx, w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
