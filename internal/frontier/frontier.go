// Package frontier implements the persistent BFS traversal state: a
// FIFO queue of paths to visit and a seen-set keyed by (device,
// inode), checkpointed to disk so a crawl can resume across process
// invocations.
package frontier

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	docerrors "github.com/docseek/docseek/internal/errors"
)

// DevIno identifies a filesystem entry independent of its path, so
// renamed or re-added paths are recognized as genuinely new.
type DevIno struct {
	Device uint64 `json:"device"`
	Inode  uint64 `json:"inode"`
}

// state is the on-disk checkpoint shape: a human-readable JSON
// document with the queue, the seen map, and running counters.
type state struct {
	Queue          []string          `json:"queue"`
	Seen           map[string]DevIno `json:"seen"`
	ProcessedFiles int               `json:"processed_files"`
	ProcessedDirs  int               `json:"processed_dirs"`
	Errors         []string          `json:"errors"`
}

func newState() state {
	return state{Seen: make(map[string]DevIno)}
}

// Frontier is the persistent BFS queue plus seen-set. It is not
// goroutine-safe: exactly one actor dequeues and writes back per
// slice.
type Frontier struct {
	path  string
	lock  *flock.Flock
	state state
}

// Open loads a frontier checkpoint from path, or starts an empty one
// if the file does not yet exist.
func Open(path string) (*Frontier, error) {
	f := &Frontier{
		path:  path,
		lock:  flock.New(path + ".lock"),
		state: newState(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, docerrors.IOError("read frontier checkpoint", err).WithDetail("path", path)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeCorruptStore, "parse frontier checkpoint", err).WithDetail("path", path)
	}
	if st.Seen == nil {
		st.Seen = make(map[string]DevIno)
	}
	f.state = st
	return f, nil
}

// Seed enqueues each root path that exists on disk, if the queue is
// currently empty.
func (f *Frontier) Seed(roots []string) {
	if len(f.state.Queue) > 0 {
		return
	}
	for _, root := range roots {
		if _, err := os.Stat(root); err == nil {
			f.state.Queue = append(f.state.Queue, root)
		}
	}
}

// Reset clears the queue, seen-set, and counters, keeping the same
// backing file. Used by run_complete_index and the reset-frontier CLI
// verb.
func (f *Frontier) Reset() {
	f.state = newState()
}

// Len reports the number of paths remaining in the queue.
func (f *Frontier) Len() int {
	return len(f.state.Queue)
}

// Dequeue pops the front of the queue. ok is false if the queue is empty.
func (f *Frontier) Dequeue() (path string, ok bool) {
	if len(f.state.Queue) == 0 {
		return "", false
	}
	path = f.state.Queue[0]
	f.state.Queue = f.state.Queue[1:]
	return path, true
}

// Seen reports whether path is already visited with the exact same
// (device, inode) pair. A path re-added after being moved or
// recreated has a different identity and is treated as new.
func (f *Frontier) Seen(path string, id DevIno) bool {
	known, ok := f.state.Seen[path]
	return ok && known == id
}

// MarkSeen records path as visited under the given (device, inode).
func (f *Frontier) MarkSeen(path string, id DevIno) {
	f.state.Seen[path] = id
}

// Enqueue appends children of a visited directory to the queue. The
// caller is responsible for filtering hidden entries and exclude
// patterns before calling this.
func (f *Frontier) Enqueue(paths ...string) {
	f.state.Queue = append(f.state.Queue, paths...)
}

// RecordError appends a failure to the error log; the traversal
// itself continues.
func (f *Frontier) RecordError(msg string) {
	f.state.Errors = append(f.state.Errors, msg)
}

// IncFiles/IncDirs bump the processed counters.
func (f *Frontier) IncFiles() { f.state.ProcessedFiles++ }
func (f *Frontier) IncDirs()  { f.state.ProcessedDirs++ }

// Stats is a read-only snapshot of the frontier's counters, used by
// the status CLI verb.
type Stats struct {
	QueueLen       int
	ProcessedFiles int
	ProcessedDirs  int
	ErrorCount     int
}

func (f *Frontier) Stats() Stats {
	return Stats{
		QueueLen:       len(f.state.Queue),
		ProcessedFiles: f.state.ProcessedFiles,
		ProcessedDirs:  f.state.ProcessedDirs,
		ErrorCount:     len(f.state.Errors),
	}
}

// Save persists the full frontier state to disk, guarded by an
// exclusive file lock so concurrent docseek invocations against the
// same store never interleave writes. Called on every slice boundary.
func (f *Frontier) Save() error {
	if err := f.lock.Lock(); err != nil {
		return docerrors.IOError("acquire frontier lock", err).WithDetail("path", f.path)
	}
	defer f.lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return docerrors.IOError("create frontier checkpoint directory", err)
	}

	data, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		return docerrors.Internal("marshal frontier checkpoint", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return docerrors.IOError("write frontier checkpoint temp file", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return docerrors.IOError("rename frontier checkpoint file", err)
	}
	return nil
}
