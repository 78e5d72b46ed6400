package addonkit

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/yeka/zip"
	"golang.org/x/sync/errgroup"
)

type zipTask struct {
	index  int // position in the central directory, stable across readers
	target string
}

// extractZip enumerates the archive once, creates directories up front, then
// extracts files in chunks, one reader per worker.
func extractZip(ctx context.Context, j *extractJob) error {
	rc, err := zip.OpenReader(j.archive.Path)
	if err != nil {
		return corrupt(j.archive.Source, err)
	}
	var (
		dirs  []string
		tasks []zipTask
	)
	for i, f := range rc.File {
		target, ok := j.target(f.Name)
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			dirs = append(dirs, target)
			continue
		}
		if f.Mode()&fs.ModeSymlink != 0 {
			j.skipUnsafe(f.Name)
			continue
		}
		if f.IsEncrypted() && j.password == "" {
			perr := &PasswordRequiredError{Archive: j.archive.Source, Entry: cleanInternal(f.Name)}
			if err := j.entryFailed(f.Name, "", perr); err != nil {
				_ = rc.Close()
				return err
			}
			continue
		}
		dirs = append(dirs, filepath.Dir(target))
		tasks = append(tasks, zipTask{index: i, target: target})
	}
	if err := rc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", j.archive.Source, err)
	}
	if err := j.mkdirs(dirs); err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}

	workers := max(1, min(j.workers, len(tasks)))
	chunk := (len(tasks) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(tasks); start += chunk {
		part := tasks[start:min(start+chunk, len(tasks))]
		g.Go(func() error { return extractZipChunk(gctx, j, part) })
	}
	return g.Wait()
}

func extractZipChunk(ctx context.Context, j *extractJob, tasks []zipTask) error {
	r, err := zip.OpenReader(j.archive.Path)
	if err != nil {
		return corrupt(j.archive.Source, err)
	}
	defer func() { _ = r.Close() }()
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		f := r.File[t.index]
		var n int64
		err := readZipFile(j.archive, f, j.password, func(src io.Reader) error {
			var werr error
			n, werr = writeFile(t.target, src, f.Mode(), j.sink)
			return werr
		})
		if err != nil {
			if err := j.entryFailed(f.Name, t.target, err); err != nil {
				return err
			}
			continue
		}
		j.fileDone(f.Name, n)
	}
	return nil
}
