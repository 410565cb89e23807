package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/core/chunking"
	"github.com/markdave123-py/vectorsync/internal/core/embedding"
	"github.com/markdave123-py/vectorsync/internal/core/identity"
	"github.com/markdave123-py/vectorsync/internal/core/progress"
	"github.com/markdave123-py/vectorsync/internal/core/vectorstore"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// runState carries what one run has learned so far, for the final result.
type runState struct {
	start    time.Time
	res      *identity.Resolution
	run      *progress.Run
	strategy string
	records  int
	chunks   int
	stored   int
	failed   int
}

func (s *runState) metadata() *models.ResultMetadata {
	md := &models.ResultMetadata{
		RecordCount:    s.records,
		ChunksStored:   s.stored,
		FailedChunks:   s.failed,
		VectorsStored:  s.stored,
		Strategy:       s.strategy,
		ProcessingTime: time.Since(s.start).Round(time.Millisecond).String(),
	}
	if s.res != nil {
		md.SourceID = s.res.SourceID
		md.CollectionName = s.res.CollectionName
	}
	return md
}

// ProcessFile runs resolve, extract, chunk, embed and store for one source.
// It always returns a result; failures are described by its status and
// message, never by a panic.
func (i *DocumentIngestor) ProcessFile(ctx context.Context, filePath, rawRef string, opts Options) (result models.ProcessingResult) {
	st := &runState{start: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error("pipeline panicked", "source", rawRef, "panic", r)
			result = i.fail(ctx, st, fmt.Errorf("internal error: %v", r))
		}
	}()

	mode := i.cfg.Mode
	if opts.Lenient {
		mode = identity.Lenient
	}
	res, err := i.deps.Resolver.Resolve(ctx, rawRef, mode)
	if err != nil {
		return i.fail(ctx, st, err)
	}
	st.res = res
	log := i.logger.With("source_id", res.SourceID, "collection", res.CollectionName)

	fileType, path, err := i.describe(ctx, res, filePath, opts)
	if err != nil {
		return i.fail(ctx, st, err)
	}

	unlock, err := i.lock(ctx, res.CollectionName)
	if err != nil {
		return i.fail(ctx, st, err)
	}
	defer unlock()

	st.run = i.deps.Tracker.Start(ctx, res.SourceID)
	st.run.Stage(ctx, models.StageExtracting, progress.PercentExtracting, "")

	local, cleanup, err := i.materialize(ctx, path)
	if err != nil {
		return i.fail(ctx, st, err)
	}
	defer cleanup()

	content, err := i.deps.Extractor.Extract(ctx, local, fileType)
	if err != nil {
		return i.fail(ctx, st, err)
	}
	st.strategy = content.Strategy
	st.records = content.RecordCount()

	chunks, err := i.deps.Chunker.Chunk(content, i.chunkOptions(res, path, opts))
	if err != nil {
		return i.fail(ctx, st, err)
	}
	st.chunks = len(chunks)
	st.run.Stage(ctx, models.StageExtracting, progress.PercentChunked,
		fmt.Sprintf("%d chunks from %s", len(chunks), content.Strategy))
	log.Info("content chunked", "strategy", content.Strategy, "records", st.records, "chunks", len(chunks))

	dim := i.deps.Gateway.Dimension()
	if err := i.deps.Gateway.EnsureCollection(ctx, res.CollectionName, dim, i.cfg.Distance); err != nil {
		return i.fail(ctx, st, err)
	}

	st.run.SetTotal(len(chunks))
	st.run.Stage(ctx, models.StageEmbedding, progress.EmbeddingStart, "")

	stats, err := i.deps.Batcher.Embed(ctx, chunks,
		func(ctx context.Context, b embedding.Batch) error {
			n, err := i.deps.Gateway.Upsert(ctx, res.CollectionName, toPoints(res, b.Items))
			st.stored += n
			return err
		},
		func(processed, total, percent int) {
			st.run.Batch(ctx, processed, total, percent)
		},
	)
	st.failed = stats.Failed
	if err != nil {
		return i.fail(ctx, st, err)
	}

	if err := i.deps.Gateway.DeleteStale(ctx, res.CollectionName, len(chunks)); err != nil {
		log.Warn("stale chunk cleanup failed", "err", err)
	}
	i.recordMetrics(ctx, st)

	status := models.StatusCompleted
	if content.Structured() {
		status = models.StatusConnected
	}
	msg := fmt.Sprintf("stored %d of %d chunks", st.stored, len(chunks))
	if st.failed > 0 {
		msg += fmt.Sprintf(", %d with placeholder vectors", st.failed)
	}
	st.run.Complete(ctx, status, msg)

	resultStatus := models.ResultSuccess
	if st.failed == len(chunks) {
		resultStatus = models.ResultPartialSuccess
	}
	log.Info("pipeline finished", "status", status, "stored", st.stored, "failed", st.failed,
		"took", time.Since(st.start))
	return models.ProcessingResult{
		Status:   resultStatus,
		Chunks:   len(chunks),
		Message:  msg,
		Metadata: st.metadata(),
	}
}

// describe settles the file path and type, checking the source row unless told not to.
func (i *DocumentIngestor) describe(ctx context.Context, res *identity.Resolution, filePath string, opts Options) (models.FileType, string, error) {
	fileType := opts.FileType
	if !opts.SkipRecordCheck && res.Canonical {
		src, err := i.deps.Store.GetSource(ctx, res.SourceID)
		if err != nil {
			return "", "", fmt.Errorf("load source %d: %w", res.SourceID, err)
		}
		if src == nil {
			return "", "", fmt.Errorf("source %d: %w", res.SourceID, core.ErrSourceNotFound)
		}
		if filePath == "" {
			filePath = src.FilePath
		}
		if fileType == "" {
			fileType = src.DeclaredType
		}
	}
	if filePath == "" {
		return "", "", errors.New("no file path given and none recorded on the source")
	}
	if fileType == "" {
		ft, ok := models.FileTypeFromPath(filePath)
		if !ok {
			return "", "", fmt.Errorf("cannot tell the file type of %s", filePath)
		}
		fileType = ft
	}
	return fileType, filePath, nil
}

// lock serializes runs on one collection, in process first and then across
// processes when a RunLocker is configured.
func (i *DocumentIngestor) lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := i.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	if i.deps.Locker == nil {
		return unlockLocal, nil
	}
	unlockRemote, err := i.deps.Locker.Lock(ctx, key)
	if err != nil {
		unlockLocal()
		return nil, fmt.Errorf("run lock %s: %w", key, err)
	}
	return func() {
		unlockRemote()
		unlockLocal()
	}, nil
}

func (i *DocumentIngestor) materialize(ctx context.Context, path string) (string, func(), error) {
	if i.deps.Files == nil {
		return path, func() {}, nil
	}
	local, cleanup, err := i.deps.Files.Materialize(ctx, path)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	return local, cleanup, nil
}

func (i *DocumentIngestor) chunkOptions(res *identity.Resolution, path string, opts Options) chunking.Options {
	co := chunking.Options{
		TargetChars:     i.cfg.TargetChars,
		MinChars:        i.cfg.MinChars,
		OverlapElements: i.cfg.OverlapElements,
		MaxRowsPerChunk: i.cfg.MaxRowsPerChunk,
		Combine:         true,
		Filename:        filepath.Base(path),
		SourceID:        res.SourceID,
	}
	if opts.ChunkSize > 0 {
		co.TargetChars = opts.ChunkSize
	}
	if opts.ChunkOverlap != nil {
		co.OverlapElements = *opts.ChunkOverlap
	}
	return co
}

// toPoints builds one point per chunk. The id is derived from the collection
// and chunk index only, so a re-run overwrites the same points.
func toPoints(res *identity.Resolution, items []embedding.Embedded) []models.VectorPoint {
	var sourceRef any = res.SourceID
	if !res.Canonical {
		sourceRef = res.Token
	}
	points := make([]models.VectorPoint, 0, len(items))
	for _, it := range items {
		meta := make(map[string]any, len(it.Chunk.Metadata)+1)
		for k, v := range it.Chunk.Metadata {
			meta[k] = v
		}
		meta["sourceId"] = sourceRef
		payload := map[string]any{
			"text":     it.Chunk.Text,
			"sourceId": sourceRef,
			"metadata": meta,
		}
		if it.Placeholder {
			payload["embeddingStatus"] = "placeholder"
		}
		points = append(points, models.VectorPoint{
			ID:      vectorstore.ChunkKey(res.CollectionName, it.Chunk.Index),
			Vector:  it.Vector,
			Payload: payload,
		})
	}
	return points
}

func (i *DocumentIngestor) recordMetrics(ctx context.Context, st *runState) {
	if !st.res.Canonical {
		return
	}
	vectors, err := i.deps.Gateway.Count(ctx, st.res.CollectionName)
	if err != nil {
		i.logger.Warn("count vectors", "collection", st.res.CollectionName, "err", err)
		vectors = st.stored
	}
	m := models.SourceMetrics{RecordCount: st.records, ChunkCount: st.chunks, VectorsStored: vectors}
	if err := i.deps.Store.UpdateMetrics(ctx, st.res.SourceID, m); err != nil && !errors.Is(err, core.ErrSourceNotFound) {
		i.logger.Error("update metrics", "source_id", st.res.SourceID, "err", err)
	}
	patch := map[string]any{
		"collection":   st.res.CollectionName,
		"strategy":     st.strategy,
		"failedChunks": st.failed,
	}
	if err := i.deps.Store.MergeMetadata(ctx, st.res.SourceID, patch); err != nil && !errors.Is(err, core.ErrSourceNotFound) {
		i.logger.Error("update source metadata", "source_id", st.res.SourceID, "err", err)
	}
}

// fail moves the run to error and turns err into a result.
func (i *DocumentIngestor) fail(ctx context.Context, st *runState, err error) models.ProcessingResult {
	// the status write-back must outlive a cancelled run context
	wctx := context.WithoutCancel(ctx)
	if st.run != nil {
		st.run.Fail(wctx, err)
	}
	md := st.metadata()
	if kind := core.KindOf(err); kind != core.KindUnknown {
		md.ErrorKind = kind.String()
	}
	i.logger.Error("pipeline failed", "source_id", md.SourceID, "collection", md.CollectionName,
		"kind", md.ErrorKind, "err", err)
	return models.ProcessingResult{
		Status:   models.ResultError,
		Chunks:   st.chunks,
		Message:  err.Error(),
		Metadata: md,
	}
}
