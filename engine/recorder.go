package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/vivian5285/aitrade/types"
)

// Recorder receives the flat trade event stream. Implementations must be
// safe for concurrent use.
type Recorder interface {
	Record(rec types.TradeRecord)
	Close() error
}

// JSONLRecorder appends trade records as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

// Record writes a single trade event to the underlying JSONL file.
func (r *JSONLRecorder) Record(rec types.TradeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(rec)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// MemoryRecorder keeps records in a slice, for tests and dry runs.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []types.TradeRecord
}

func NewMemoryRecorder() *MemoryRecorder { return &MemoryRecorder{} }

func (r *MemoryRecorder) Record(rec types.TradeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *MemoryRecorder) Close() error { return nil }

// Records returns a copy of everything recorded so far.
func (r *MemoryRecorder) Records() []types.TradeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TradeRecord(nil), r.records...)
}
