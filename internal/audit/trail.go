package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// CallRecord is one metered data call, written as a JSON line. Usage rows in
// the database drive billing; the trail is the flat-file copy operators can
// ship or grep without a database connection.
type CallRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	RemoteAddr string    `json:"remote_addr"`
	APIKeyID   string    `json:"api_key_id"`
	UserID     string    `json:"user_id"`
	CostWei    int64     `json:"cost_wei"`
}

// Trail implements asynchronous, buffered call logging with rotation and
// periodic flush. Records are dropped, never blocked on, when the buffer
// is full.
type Trail struct {
	fileTemplate  string        // template for log file name e.g. "/var/log/hashscope/calls-%s.jsonl"
	maxSize       int64         // maximum size in bytes before rotation
	maxFiles      int           // maximum number of rotated files to keep
	flushInterval time.Duration // flush the buffer every flushInterval if not empty

	mu          sync.Mutex
	currentFile string // current active file name (populated from fileTemplate)
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	recordCh chan CallRecord
	doneCh   chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewTrail creates a call trail writing to files derived from fileTemplate.
// bufferSize determines how many records can be queued before drops begin.
func NewTrail(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*Trail, error) {
	trail := &Trail{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		recordCh:      make(chan CallRecord, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := trail.openFile(); err != nil {
		return nil, err
	}

	trail.wg.Add(1)
	go trail.run()

	return trail, nil
}

// newFileName applies the current timestamp to the file template.
func (t *Trail) newFileName() string {
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf(t.fileTemplate, timestamp)
}

// openFile opens (or creates) the active file and prepares the buffered
// writer, creating the directory if needed.
func (t *Trail) openFile() error {
	t.currentFile = t.newFileName()
	dir := filepath.Dir(t.currentFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(t.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	t.currentSize = fi.Size()
	t.file = file
	t.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded rotates to a fresh file when adding n bytes would exceed
// the size limit.
func (t *Trail) rotateIfNeeded(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentSize+int64(n) < t.maxSize {
		return nil
	}

	if err := t.writer.Flush(); err != nil {
		return err
	}
	if err := t.file.Close(); err != nil {
		return err
	}

	return t.openFile()
}

// cleanupOldFiles removes the oldest rotated files if more than maxFiles exist.
func (t *Trail) cleanupOldFiles() error {
	pattern := fmt.Sprintf(t.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - t.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
	return nil
}

// run drains the record channel and flushes on a ticker until shutdown.
func (t *Trail) run() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-t.recordCh:
			t.writeRecord(rec)
		case <-ticker.C:
			t.mu.Lock()
			_ = t.writer.Flush()
			t.mu.Unlock()
		case <-t.doneCh:
			// Drain remaining records.
			for {
				select {
				case rec := <-t.recordCh:
					t.writeRecord(rec)
				default:
					t.mu.Lock()
					_ = t.writer.Flush()
					_ = t.file.Close()
					t.mu.Unlock()
					return
				}
			}
		}
	}
}

func (t *Trail) writeRecord(rec CallRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	line := string(data) + "\n"
	n := len(line)
	_ = t.rotateIfNeeded(n)

	t.mu.Lock()
	_, _ = t.writer.WriteString(line)
	t.currentSize += int64(n)
	t.mu.Unlock()

	_ = t.cleanupOldFiles()
}

// Append queues a record. If the buffer is full the record is dropped;
// billing does not depend on the trail.
func (t *Trail) Append(rec CallRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	select {
	case t.recordCh <- rec:
	default:
	}
}

// Shutdown flushes buffered records and closes the active file. Call it from
// the application's graceful shutdown handler.
func (t *Trail) Shutdown() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	close(t.doneCh)
	t.wg.Wait()
}
