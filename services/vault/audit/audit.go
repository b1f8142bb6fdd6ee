package audit

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"floorbank/core/events"
)

// ErrChainBroken is returned by Verify when a stored record does not hash to
// its recorded digest or does not link to its predecessor.
var ErrChainBroken = errors.New("audit: hash chain broken")

// Record is one persisted engine event. Records form a hash chain: Digest
// covers the previous digest, the sequence number, the type and the
// attributes.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"index;not null"`
	Operation  string    `gorm:"index"`
	Attributes string    `gorm:"type:text;not null"`
	PrevDigest string    `gorm:"size:64;not null"`
	Digest     string    `gorm:"size:64;not null"`
	CreatedAt  time.Time `gorm:"index"`
}

func chainDigest(prev string, seq uint64, eventType, attributes string) string {
	var buf bytes.Buffer
	buf.WriteString(prev)
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	buf.Write(seqBytes[:])
	buf.WriteString(eventType)
	buf.WriteByte(0)
	buf.WriteString(attributes)
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// TableName pins the table name independent of gorm naming strategies.
func (Record) TableName() string { return "vault_events" }

// Decoded returns the attribute map of the record.
func (r Record) Decoded() (map[string]string, error) {
	attrs := map[string]string{}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Open connects to the audit database. DSNs starting with postgres:// or
// postgresql:// use the postgres driver, anything else is a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("audit: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return db, nil
}

// Sink persists renderable events. It implements events.Emitter; write
// failures are logged and never propagate into the engine.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	loaded bool
	seq    uint64
	head   string
}

// NewSink wraps an opened database.
func NewSink(db *gorm.DB, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{db: db, logger: log, now: time.Now}
}

// Emit implements events.Emitter.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || s.db == nil || evt == nil {
		return
	}
	renderable, ok := evt.(events.Renderable)
	if !ok {
		return
	}
	rendered := renderable.Event()
	if rendered == nil {
		return
	}
	payload, err := json.Marshal(rendered.Attributes)
	if err != nil {
		s.logger.Error("audit encode failed", slog.String("type", rendered.Type), slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadHead(); err != nil {
		s.logger.Error("audit head lookup failed", slog.String("type", rendered.Type), slog.Any("error", err))
		return
	}
	seq := s.seq + 1
	record := Record{
		ID:         uuid.New(),
		Seq:        seq,
		Type:       rendered.Type,
		Operation:  rendered.Attributes["operation"],
		Attributes: string(payload),
		PrevDigest: s.head,
		Digest:     chainDigest(s.head, seq, rendered.Type, string(payload)),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Error("audit write failed", slog.String("type", rendered.Type), slog.Any("error", err))
		return
	}
	s.seq = seq
	s.head = record.Digest
}

// loadHead reads the chain tip once. Callers hold s.mu.
func (s *Sink) loadHead() error {
	if s.loaded {
		return nil
	}
	var last Record
	err := s.db.Order("seq DESC").Limit(1).Find(&last).Error
	if err != nil {
		return err
	}
	s.seq = last.Seq
	s.head = last.Digest
	s.loaded = true
	return nil
}

// Verify walks the chain in sequence order and reports the first record that
// does not hash to its digest or link to its predecessor.
func (s *Sink) Verify(ctx context.Context) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit: sink not configured")
	}
	var (
		prev    string
		checked uint64
	)
	const page = 200
	for {
		var batch []Record
		err := s.db.WithContext(ctx).Where("seq > ?", checked).Order("seq ASC").Limit(page).Find(&batch).Error
		if err != nil {
			return checked, fmt.Errorf("audit: verify: %w", err)
		}
		for _, r := range batch {
			if r.Seq != checked+1 || r.PrevDigest != prev {
				return checked, fmt.Errorf("%w: record %d does not link to %d", ErrChainBroken, r.Seq, checked)
			}
			if chainDigest(r.PrevDigest, r.Seq, r.Type, r.Attributes) != r.Digest {
				return checked, fmt.Errorf("%w: record %d digest mismatch", ErrChainBroken, r.Seq)
			}
			prev = r.Digest
			checked = r.Seq
		}
		if len(batch) < page {
			break
		}
	}
	return checked, nil
}

// Query filters List results.
type Query struct {
	Type  string
	Since time.Time
	Limit int
}

// List returns records newest first.
func (s *Sink) List(ctx context.Context, q Query) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: sink not configured")
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	tx := s.db.WithContext(ctx).Model(&Record{})
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since.UTC())
	}
	var records []Record
	if err := tx.Order("seq DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return records, nil
}
