package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"market_pulse/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage is the SQLite-backed asset catalog
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the catalog database at dbPath.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; :memory: also needs a single shared connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.Asset{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Asset Operations
// ======================================================================================

// UpsertAsset creates an asset or updates its descriptive fields.
// IsActive is left untouched on existing rows.
func (s *Storage) UpsertAsset(asset *domain.Asset) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "provider_id", "updated_at"}),
	}).Create(asset).Error
}

// GetAsset retrieves one asset by class and symbol
func (s *Storage) GetAsset(class domain.AssetClass, symbol string) (*domain.Asset, error) {
	var asset domain.Asset
	err := s.db.First(&asset, "class = ? AND symbol = ?", class, symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	return &asset, err
}

// ListAssets returns the active assets of a class sorted by symbol
func (s *Storage) ListAssets(class domain.AssetClass) ([]domain.Asset, error) {
	var assets []domain.Asset
	err := s.db.Where("class = ? AND is_active = ?", class, true).Order("symbol").Find(&assets).Error
	return assets, err
}

// SetActive enables or disables an asset
func (s *Storage) SetActive(class domain.AssetClass, symbol string, active bool) error {
	res := s.db.Model(&domain.Asset{}).
		Where("class = ? AND symbol = ?", class, symbol).
		Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteAsset deletes an asset from the catalog
func (s *Storage) DeleteAsset(class domain.AssetClass, symbol string) error {
	return s.db.Where("class = ? AND symbol = ?", class, symbol).Delete(&domain.Asset{}).Error
}

// ProviderIDs returns symbol → provider id for every active asset of a class
// that has one.
func (s *Storage) ProviderIDs(class domain.AssetClass) (map[string]string, error) {
	assets, err := s.ListAssets(class)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(assets))
	for _, a := range assets {
		if a.ProviderID != "" {
			result[a.Symbol] = a.ProviderID
		}
	}
	return result, nil
}
