package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// logRecord is the on-disk line format: the stored prediction plus the raw
// request/response payloads.
type logRecord struct {
	StoredPrediction
	RawInput  json.RawMessage `json:"raw_input,omitempty"`
	RawOutput json.RawMessage `json:"raw_output,omitempty"`
}

// LogFile is the embedded Store: one JSON line per record, appended under a
// single writer lock and fsync'd before Append returns. Reads are served
// from an in-memory index rebuilt by replaying the file on open, so a read
// sees a snapshot taken at the moment it acquires the lock.
type LogFile struct {
	mu     sync.RWMutex
	f      *os.File
	path   string
	nextID int64
	end    int64 // offset past the last committed record
	recs   []logRecord
}

// OpenLogFile opens (or creates) the log at path and replays it. A trailing
// partial line from a crashed writer is dropped; everything fsync'd before
// the crash is recovered with its original ids.
func OpenLogFile(path string) (*LogFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &UnavailableError{Op: "create log dir", Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, &UnavailableError{Op: "open log", Err: err}
	}
	lf := &LogFile{f: f, path: path, nextID: 1}
	if err := lf.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return lf, nil
}

// replay rebuilds the in-memory index. A torn tail (a line without its
// newline, or one that does not parse) is truncated away so the next append
// starts on a clean record boundary; everything fsync'd before it survives.
func (lf *LogFile) replay() error {
	data, err := io.ReadAll(lf.f)
	if err != nil {
		return &UnavailableError{Op: "replay log", Err: err}
	}
	var valid int64
	for off := 0; off < len(data); {
		nl := bytes.IndexByte(data[off:], '\n')
		if nl < 0 {
			break
		}
		line := data[off : off+nl]
		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			break
		}
		lf.recs = append(lf.recs, rec)
		if rec.ID >= lf.nextID {
			lf.nextID = rec.ID + 1
		}
		off += nl + 1
		valid = int64(off)
	}
	if valid != int64(len(data)) {
		if err := lf.f.Truncate(valid); err != nil {
			return &UnavailableError{Op: "truncate torn log tail", Err: err}
		}
	}
	lf.end = valid
	return nil
}

// Append commits one record. The id is assigned under the writer lock, the
// line is written at the committed end offset and fsync'd, and only then
// does the record become visible to readers, so a caller's own read-back
// always observes its write. A failed write or sync rolls the file back to
// the committed boundary before the lock is released, so a later append can
// never glue onto partial bytes and lose an acknowledged record on replay.
func (lf *LogFile) Append(ctx context.Context, p Prediction) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &UnavailableError{Op: "append", Err: err}
	}
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.f == nil {
		return 0, &UnavailableError{Op: "append", Err: fmt.Errorf("log closed")}
	}
	sp := StoredPrediction{ID: lf.nextID, Prediction: p}
	// Raw payloads live only on disk; the read index stays lean and replayed
	// records compare equal to freshly appended ones.
	sp.Prediction.RawInput, sp.Prediction.RawOutput = nil, nil
	rec := logRecord{
		StoredPrediction: sp,
		RawInput:         p.RawInput,
		RawOutput:        p.RawOutput,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return 0, &UnavailableError{Op: "encode record", Err: err}
	}
	line = append(line, '\n')
	if _, err := lf.f.WriteAt(line, lf.end); err != nil {
		lf.rollback()
		return 0, &UnavailableError{Op: "write record", Err: err}
	}
	if err := lf.f.Sync(); err != nil {
		lf.rollback()
		return 0, &UnavailableError{Op: "sync log", Err: err}
	}
	lf.end += int64(len(line))
	lf.nextID++
	lf.recs = append(lf.recs, rec)
	return rec.ID, nil
}

// rollback restores the file to the last committed boundary after a failed
// append. If even the truncate fails the store closes itself: refusing later
// appends beats corrupting records a client was already acknowledged for.
// Caller holds the writer lock.
func (lf *LogFile) rollback() {
	if err := lf.f.Truncate(lf.end); err != nil {
		lf.f.Close()
		lf.f = nil
	}
}

// RecentAnomalies returns up to limit anomalous records, newest first.
func (lf *LogFile) RecentAnomalies(ctx context.Context, limit int) ([]StoredPrediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, &UnavailableError{Op: "read", Err: err}
	}
	limit = clampLimit(limit)

	lf.mu.RLock()
	defer lf.mu.RUnlock()

	out := make([]StoredPrediction, 0, limit)
	for i := len(lf.recs) - 1; i >= 0 && len(out) < limit; i-- {
		if lf.recs[i].Label {
			out = append(out, lf.recs[i].StoredPrediction)
		}
	}
	return out, nil
}

func (lf *LogFile) Ping(ctx context.Context) error {
	lf.mu.RLock()
	defer lf.mu.RUnlock()
	if lf.f == nil {
		return &UnavailableError{Op: "ping", Err: fmt.Errorf("log closed")}
	}
	if _, err := os.Stat(lf.path); err != nil {
		return &UnavailableError{Op: "ping", Err: err}
	}
	return nil
}

func (lf *LogFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.f == nil {
		return nil
	}
	err := lf.f.Close()
	lf.f = nil
	return err
}
