package domain

import (
	"time"
)

// Asset is a catalog row describing something that can be queried.
// It never carries market values.
type Asset struct {
	Class      AssetClass `gorm:"primaryKey;size:16" json:"type"`
	Symbol     string     `gorm:"primaryKey;size:16" json:"symbol"`
	Name       string     `json:"name"`
	ProviderID string     `json:"provider_id,omitempty"` // e.g. CoinGecko coin id
	IsActive   bool       `json:"is_active" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
