// Package state is the durable key/value store backing stream checkpoints
// and the cross-source dedupe set. Both intake producers call into a single
// instance, so writes are serialized explicitly rather than relying on the
// database driver's own locking.
package state

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/coinbot/internal/model"
)

// Checkpoint is the per-stream monotonic cursor.
type Checkpoint struct {
	StreamName string `gorm:"primaryKey;column:stream_name"`
	Value      string `gorm:"column:value"`
}

func (Checkpoint) TableName() string { return "checkpoints" }

// ProcessedEvent is one row of the dedupe set, keyed by the priority-ordered
// fingerprint computed from model.DedupeKey.
type ProcessedEvent struct {
	DedupeKey  string `gorm:"primaryKey;column:dedupe_key"`
	EventID    string `gorm:"column:event_id"`
	TxHash     string `gorm:"column:tx_hash;index"`
	Sequence   string `gorm:"column:sequence"`
	MarketID   string `gorm:"column:market_id"`
	SeenAtUnix int64  `gorm:"column:seen_at_unix"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }

// Store is the durable state backing checkpoints and dedupe. Safe for
// concurrent use by both intake producers.
type Store struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open opens (creating if absent) the relational store at dsn. A
// "postgres://"/"postgresql://" prefix selects the Postgres driver;
// otherwise dsn is treated as a SQLite file path opened in WAL mode.
func Open(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("state store connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		walDSN := dsn + "?_journal_mode=WAL"
		db, err = gorm.Open(sqlite.Open(walDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("state store initialized (sqlite, WAL)")
	}

	if err := db.AutoMigrate(&Checkpoint{}, &ProcessedEvent{}); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB returns the underlying gorm connection, for other packages (e.g. pnl)
// that persist their own tables into the same database file.
func (s *Store) DB() *gorm.DB { return s.db }

// CheckpointGet returns the stored cursor for stream, or "" if unset.
func (s *Store) CheckpointGet(stream string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row Checkpoint
	err := s.db.Where("stream_name = ?", stream).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// CheckpointSet upserts the cursor for stream.
func (s *Store) CheckpointSet(stream, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := Checkpoint{StreamName: stream, Value: value}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

// DedupeMarkSeen atomically inserts key's fingerprint if absent. Returns
// true iff this call performed the insert.
func (s *Store) DedupeMarkSeen(key model.DedupeKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key.SeenAtUnix == 0 {
		key.SeenAtUnix = time.Now().Unix()
	}
	row := ProcessedEvent{
		DedupeKey:  key.Fingerprint(),
		EventID:    key.EventID,
		TxHash:     key.TxHash,
		Sequence:   key.Sequence,
		MarketID:   key.MarketID,
		SeenAtUnix: key.SeenAtUnix,
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DedupeAlreadySeen reports whether key's fingerprint has been recorded.
func (s *Store) DedupeAlreadySeen(key model.DedupeKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.db.Model(&ProcessedEvent{}).Where("dedupe_key = ?", key.Fingerprint()).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
