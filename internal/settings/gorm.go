package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/glitch-battleship/internal/engine"
)

const glitchKey = "currentGlitchPhase"

// Setting is one row of the key/value settings table.
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	IntValue  int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "settings" }

type GormStore struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

// OpenGormStore connects through a pgx pool, hands the pool to gorm as a
// database/sql handle and migrates the settings table.
func OpenGormStore(ctx context.Context, dsn string) (*GormStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	s := &GormStore{db: db, pool: pool}
	if err := db.WithContext(ctx).AutoMigrate(&Setting{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate settings: %w", err), s.Close())
	}
	return s, nil
}

func (s *GormStore) GlitchOverride(ctx context.Context) (engine.Phase, bool, error) {
	var row Setting
	err := s.db.WithContext(ctx).Where("key = ?", glitchKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load glitch override: %w", err)
	}
	phase := engine.Phase(row.IntValue)
	return phase, phase.Valid(), nil
}

func (s *GormStore) SetGlitchOverride(ctx context.Context, phase engine.Phase) error {
	if !phase.Valid() {
		return ErrInvalidPhase
	}
	row := Setting{Key: glitchKey, IntValue: int(phase), UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"int_value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save glitch override: %w", err)
	}
	return nil
}

func (s *GormStore) ClearGlitchOverride(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("key = ?", glitchKey).Delete(&Setting{}).Error; err != nil {
		return fmt.Errorf("clear glitch override: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	var err error
	if sqlDB, dbErr := s.db.DB(); dbErr != nil {
		err = multierr.Append(err, dbErr)
	} else {
		err = multierr.Append(err, sqlDB.Close())
	}
	s.pool.Close()
	return err
}
