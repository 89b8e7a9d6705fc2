package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
)

const (
	auditQueueSize  = 1000
	auditBufferSize = 1000
	auditRepoWrite  = 3 * time.Second
)

type AuditRepo interface {
	Insert(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error)
}

// AuditService takes audit entries off the request path. One writer goroutine
// drains a bounded queue into the repo and a daily JSON-lines file; the most
// recent entries also stay in memory so the trail is queryable without a repo.
type AuditService struct {
	queue  chan *model.AuditLog
	recent *auditBuffer
	repo   AuditRepo
	file   *dailyFile
	done   chan struct{}

	closeOnce sync.Once
}

// NewAuditService writes files under logDir; an empty logDir disables them.
func NewAuditService(logDir string, repo AuditRepo) (*AuditService, error) {
	var file *dailyFile
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("audit dir: %w", err)
		}
		file = &dailyFile{dir: logDir, prefix: "audit-"}
	}
	s := &AuditService{
		queue:  make(chan *model.AuditLog, auditQueueSize),
		recent: newAuditBuffer(auditBufferSize),
		repo:   repo,
		file:   file,
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Log never blocks; when the queue is full the entry is kept in memory only.
func (s *AuditService) Log(entry *model.AuditLog) {
	if entry == nil {
		return
	}
	s.recent.Add(entry)
	select {
	case s.queue <- entry:
	default:
		metrics.AuditDropped.Inc()
		logger.Warn("audit queue full, entry not persisted", "id", entry.ID, "path", entry.Path)
	}
}

// List prefers the repo and falls back to the in-memory entries.
func (s *AuditService) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	if s.repo != nil {
		records, err := s.repo.List(ctx, q)
		if err == nil {
			return records, nil
		}
		logger.LogError(ctx, err, "audit repo list failed, serving recent entries")
	}
	return s.recent.List(q), nil
}

func (s *AuditService) run() {
	defer close(s.done)
	defer s.file.Close()

	for entry := range s.queue {
		if s.repo != nil {
			ctx, cancel := context.WithTimeout(context.Background(), auditRepoWrite)
			if err := s.repo.Insert(ctx, entry); err != nil {
				logger.Error("audit repo insert failed", "id", entry.ID, "error", err.Error())
			}
			cancel()
		}
		if err := s.file.Write(entry.CreatedAt, entry); err != nil {
			logger.Error("audit file write failed", "id", entry.ID, "error", err.Error())
		}
	}
}

// Close drains queued entries and stops the writer.
func (s *AuditService) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

// dailyFile appends JSON lines to <dir>/<prefix>YYYY-MM-DD.jsonl, switching
// files when the entry date (UTC) changes. A nil dailyFile discards writes.
type dailyFile struct {
	dir    string
	prefix string

	day string
	f   *os.File
	enc *json.Encoder
}

func (d *dailyFile) Write(at time.Time, v any) error {
	if d == nil {
		return nil
	}
	if day := at.UTC().Format(time.DateOnly); day != d.day || d.f == nil {
		d.Close()
		// 按日轮转
		f, err := os.OpenFile(filepath.Join(d.dir, d.prefix+day+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		d.day, d.f, d.enc = day, f, json.NewEncoder(f)
	}
	return d.enc.Encode(v)
}

func (d *dailyFile) Close() {
	if d == nil || d.f == nil {
		return
	}
	_ = d.f.Close()
	d.f, d.enc = nil, nil
}

// auditBuffer is a fixed-size ring of the newest entries.
type auditBuffer struct {
	mu   sync.Mutex
	ring []*model.AuditLog
	next int
	full bool
}

func newAuditBuffer(size int) *auditBuffer {
	if size <= 0 {
		size = auditBufferSize
	}
	return &auditBuffer{ring: make([]*model.AuditLog, size)}
}

func (b *auditBuffer) Add(entry *model.AuditLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.next] = entry
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
}

// List returns matches newest first.
func (b *auditBuffer) List(q model.AuditQuery) []*model.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.next
	if b.full {
		n = len(b.ring)
	}
	limit := q.PageSize()
	out := make([]*model.AuditLog, 0, min(limit, n))
	for i := 1; i <= n && len(out) < limit; i++ {
		entry := b.ring[(b.next-i+len(b.ring))%len(b.ring)]
		if q.Matches(entry) {
			out = append(out, entry)
		}
	}
	return out
}
