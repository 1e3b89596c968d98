package safepkt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/safepkt/internal/store"
	"github.com/jward/safepkt/internal/syntax"
)

// workItem holds everything a discovery worker needs for one file.
type workItem struct {
	path    string
	lang    string
	content []byte
	fileID  int64
	skipped int
	batch   *store.BatchedStore
}

// IndexFilesParallel indexes files using a three-phase pipeline:
//
//	Phase A (serial):   Hash check, delete old data, insert file records.
//	Phase B (parallel): Parse and discover into per-file batches.
//	Phase C (serial):   Commit batches to SQLite.
func (e *Engine) IndexFilesParallel(ctx context.Context, paths []string) error {
	// ---- Phase A: Serial file preparation ----
	var items []*workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(ctx, path)
		if err != nil {
			e.dropPrepared(items)
			return fmt.Errorf("prepare %s: %w", path, err)
		}
		if skip {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil
	}

	// ---- Phase B: Parallel discovery ----
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(runtime.NumCPU(), len(items))))
	for _, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := e.discoverInto(gctx, item, item.batch); err != nil {
				// A bad file fails alone; the rest still commit.
				mu.Lock()
				errs = append(errs, fmt.Errorf("discover %s: %w", item.path, err))
				mu.Unlock()
				item.batch = nil
				return nil
			}
			item.batch.SetSkipped(item.fileID, item.skipped)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.dropPrepared(items)
		return err
	}

	// ---- Phase C: Serial commit ----
	for _, item := range items {
		if item.batch == nil {
			// Drop the record so the next run retries the file.
			_ = e.store.DeleteFileData(item.fileID)
			continue
		}
		if err := e.store.CommitBatch(item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.path, err))
		}
	}

	e.logger.Info("indexed files", zap.Int("files", len(items)), zap.Int("errors", len(errs)))
	if len(errs) > 0 {
		return fmt.Errorf("parallel indexing had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// dropPrepared removes the file records of items that never reached
// commit, so their hashes cannot mark them unchanged on the next run.
func (e *Engine) dropPrepared(items []*workItem) {
	if len(items) == 0 {
		return
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.fileID)
	}
	if err := e.store.DeleteFiles(ids); err != nil {
		e.logger.Warn("drop prepared files failed", zap.Int("files", len(ids)), zap.Error(err))
	}
}

// prepareFile does Phase A work for a single file: hash check, cleanup, file
// record. skip=true means the file is unchanged or unsupported.
func (e *Engine) prepareFile(_ context.Context, path string) (*workItem, bool, error) {
	lang, ok := syntax.LanguageForFile(path)
	if !ok {
		return nil, true, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read file: %w", err)
	}
	hash := store.ContentHash(content)

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return nil, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return nil, true, nil // unchanged
	}
	if existing != nil {
		if err := e.store.DeleteFileData(existing.ID); err != nil {
			return nil, false, fmt.Errorf("delete old data: %w", err)
		}
	}

	fileID, err := e.store.InsertFile(&store.File{
		Path:        path,
		Language:    lang,
		Hash:        hash,
		LineCount:   bytes.Count(content, []byte{'\n'}) + 1,
		LastIndexed: time.Now(),
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert file: %w", err)
	}

	return &workItem{
		path:    path,
		lang:    lang,
		content: content,
		fileID:  fileID,
		batch:   store.NewBatchedStore(),
	}, false, nil
}
