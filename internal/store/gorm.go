package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/halvely/push-relay-agent/internal/model"
)

// registrationRow is the single-row table holding the serialized state.
type registrationRow struct {
	ID        int    `gorm:"primaryKey"`
	State     []byte `gorm:"type:jsonb"`
	UpdatedAt time.Time
}

const stateRowID = 1

// GormStore keeps the registration state in a one-row table, upserted on
// every save.
type GormStore struct {
	db        *gorm.DB
	tableName string
}

func NewGormStore(db *gorm.DB, tableName string) (*GormStore, error) {
	if tableName == "" {
		tableName = "registration_state"
	}
	if err := db.Table(tableName).AutoMigrate(&registrationRow{}); err != nil {
		return nil, err
	}
	return &GormStore{
		db:        db,
		tableName: tableName,
	}, nil
}

// Load returns the persisted state, or pristine defaults when none exists.
func (s *GormStore) Load(ctx context.Context) (*model.RegistrationState, error) {
	var row registrationRow
	err := s.db.WithContext(ctx).Table(s.tableName).First(&row, stateRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.NewRegistrationState(), nil
	}
	if err != nil {
		return nil, err
	}
	state := model.NewRegistrationState()
	if err := json.Unmarshal(row.State, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Save upserts the state snapshot.
func (s *GormStore) Save(ctx context.Context, state *model.RegistrationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	row := registrationRow{
		ID:        stateRowID,
		State:     raw,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).Create(&row).Error
}

var _ Store = (*GormStore)(nil)
