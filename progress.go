package addonkit

import "sync/atomic"

// Phase tags a progress event.
type Phase int

const (
	PhaseScan Phase = iota
	PhaseExtract
	PhaseCopy
)

func (p Phase) String() string {
	switch p {
	case PhaseScan:
		return "scan"
	case PhaseExtract:
		return "extract"
	case PhaseCopy:
		return "copy"
	}
	return "unknown"
}

// ProgressSink receives progress from concurrent workers; implementations
// must be safe for concurrent use.
type ProgressSink interface {
	AddBytes(n uint64)
	EmitProgress(name string, phase Phase)
}

// NopProgress discards all progress.
type NopProgress struct{}

func (NopProgress) AddBytes(uint64)            {}
func (NopProgress) EmitProgress(string, Phase) {}

// Counter is an atomic ProgressSink. OnFile, when set, is called for every
// emitted name from the worker that produced it.
type Counter struct {
	bytes  atomic.Uint64
	files  atomic.Uint64
	OnFile func(name string, phase Phase, totalBytes uint64)
}

func (c *Counter) AddBytes(n uint64) { c.bytes.Add(n) }

func (c *Counter) EmitProgress(name string, phase Phase) {
	c.files.Add(1)
	if c.OnFile != nil {
		c.OnFile(name, phase, c.bytes.Load())
	}
}

// Bytes is the total reported so far.
func (c *Counter) Bytes() uint64 { return c.bytes.Load() }

// Files is the number of progress events so far.
func (c *Counter) Files() uint64 { return c.files.Load() }

// progressWriter forwards written byte counts to a sink.
type progressWriter struct {
	sink ProgressSink
}

func (w progressWriter) Write(p []byte) (int, error) {
	w.sink.AddBytes(uint64(len(p)))
	return len(p), nil
}
