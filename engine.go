package addonkit

import (
	"context"
	"runtime"

	"github.com/charmbracelet/log"
)

// Options configures an Engine. The zero value of every field selects a default.
type Options struct {
	Logger   *log.Logger
	Workers  int
	Oracle   LiveryOracle
	Cache    *ScanCache
	Progress ProgressSink
	MaxDepth int
	TempDir  string
}

// Option mutates Options.
type Option func(*Options)

func WithLogger(l *log.Logger) Option    { return func(o *Options) { o.Logger = l } }
func WithWorkers(n int) Option           { return func(o *Options) { o.Workers = n } }
func WithOracle(or LiveryOracle) Option  { return func(o *Options) { o.Oracle = or } }
func WithCache(c *ScanCache) Option      { return func(o *Options) { o.Cache = c } }
func WithProgress(p ProgressSink) Option { return func(o *Options) { o.Progress = p } }
func WithTempDir(dir string) Option      { return func(o *Options) { o.TempDir = dir } }

// WithMaxDepth sets the nesting budget of contexts created by the engine
// when callers pass a nil ScanContext.
func WithMaxDepth(depth int) Option { return func(o *Options) { o.MaxDepth = depth } }

// Engine scans archives for add-ons and installs them. An Engine holds no
// per-scan state and may be shared between goroutines as long as each call
// gets its own ScanContext.
type Engine struct {
	log      *log.Logger
	workers  int
	oracle   LiveryOracle
	cache    *ScanCache
	progress ProgressSink
	maxDepth int
	tempDir  string
}

// NewEngine applies opts over the defaults.
func NewEngine(opts ...Option) *Engine {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	e := &Engine{
		log:      o.Logger,
		workers:  o.Workers,
		oracle:   o.Oracle,
		cache:    o.Cache,
		progress: o.Progress,
		maxDepth: o.MaxDepth,
		tempDir:  o.TempDir,
	}
	if e.log == nil {
		e.log = defaultLogger()
	}
	if e.workers <= 0 {
		e.workers = runtime.NumCPU()
	}
	if e.oracle == nil {
		e.oracle = DefaultLiveryOracle()
	}
	if e.progress == nil {
		e.progress = NopProgress{}
	}
	if e.maxDepth <= 0 {
		e.maxDepth = DefaultMaxDepth
	}
	return e
}

func (e *Engine) newContext() *ScanContext { return NewScanContextWithDepth(e.maxDepth) }

var defaultEngine = NewEngine()

// Scan runs Engine.Scan on a default engine.
func Scan(ctx context.Context, archivePath string, sc *ScanContext, password string) ([]DetectedItem, error) {
	return defaultEngine.Scan(ctx, archivePath, sc, password)
}

// Extract runs Engine.Extract on a default engine.
func Extract(ctx context.Context, item DetectedItem, destination string, sc *ScanContext, password string) (*ExtractStats, error) {
	return defaultEngine.Extract(ctx, item, destination, sc, password)
}
