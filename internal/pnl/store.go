package pnl

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/web3guy0/coinbot/internal/model"
)

// PositionRecord is the durable row mirrored from the in-memory Tracker.
type PositionRecord struct {
	MarketID string          `gorm:"primaryKey;column:market_id"`
	Outcome  string          `gorm:"primaryKey;column:outcome"`
	Qty      decimal.Decimal `gorm:"column:qty;type:text"`
	AvgPrice decimal.Decimal `gorm:"column:avg_price;type:text"`
}

func (PositionRecord) TableName() string { return "positions" }

// Store persists Tracker positions via gorm. Pass Store.Save as the
// Tracker's persist callback to keep the ledger durable across restarts.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&PositionRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(marketID, outcome string, pos model.Position) {
	row := PositionRecord{MarketID: marketID, Outcome: outcome, Qty: pos.Qty, AvgPrice: pos.AvgPrice}
	s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}, {Name: "outcome"}},
		DoUpdates: clause.AssignmentColumns([]string{"qty", "avg_price"}),
	}).Create(&row)
}

// LoadAll returns every persisted position, keyed by (market_id, outcome),
// for restoring a Tracker's in-memory state at startup.
func (s *Store) LoadAll() ([]PositionRecord, error) {
	var rows []PositionRecord
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
