package addonkit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
	"golang.org/x/sync/errgroup"
)

// CopyTree copies the tree at src into dst. The source is enumerated once;
// directories are created first, sequentially, then files are copied by up
// to workers goroutines, each with its own handles. Copied files are made
// owner-writable. Symlinks are not followed or copied.
func CopyTree(ctx context.Context, src, dst string, sink ProgressSink, workers int) (*ExtractStats, error) {
	if sink == nil {
		sink = NopProgress{}
	}
	if workers < 1 {
		workers = 1
	}
	src, err := filepath.Abs(src)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		dirs  []string
		files []string
	)
	conf := &fastwalk.Config{Follow: false, NumWorkers: workers}
	walkErr := fastwalk.Walk(conf, src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case d.IsDir():
			dirs = append(dirs, rel)
		case d.Type().IsRegular():
			files = append(files, rel)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %s: %w", src, walkErr)
	}
	// parents sort before their children
	slices.Sort(dirs)
	slices.Sort(files)

	stats := &ExtractStats{}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	for _, rel := range dirs {
		if err := os.MkdirAll(filepath.Join(dst, rel), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		stats.Dirs++
	}

	var copied, total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, err := copyFile(filepath.Join(src, rel), filepath.Join(dst, rel), sink)
			if err != nil {
				return err
			}
			copied.Add(1)
			total.Add(n)
			sink.EmitProgress(filepath.ToSlash(rel), PhaseCopy)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.Files = int(copied.Load())
	stats.Bytes = total.Load()
	return stats, nil
}

func copyFile(src, dst string, sink ProgressSink) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer func() { _ = in.Close() }()
	fi, err := in.Stat()
	if err != nil {
		return 0, err
	}
	n, err := writeFile(dst, in, fi.Mode(), sink)
	if err != nil {
		return n, fmt.Errorf("copy %s: %w", src, err)
	}
	return n, nil
}
