package models

import "gorm.io/gorm"

// Asset classes derived from eToro instrument type IDs.
const (
	AssetClassStock     = "stock"
	AssetClassETF       = "etf"
	AssetClassCrypto    = "crypto"
	AssetClassForex     = "forex"
	AssetClassCommodity = "commodity"
	AssetClassOther     = "other"
)

// Instrument is a tradable asset tracked by the advisor.
// Identity (EtoroID, Symbol) is immutable; classification fields are
// refreshed on every data-acquisition pass.
type Instrument struct {
	gorm.Model
	EtoroID    int64  `gorm:"uniqueIndex"`
	Symbol     string `gorm:"uniqueIndex"`
	Name       string
	AssetClass string
	ExchangeID int64
	Sector     string
	IsActive   bool `gorm:"default:true"`
}

// AssetClassForTypeID maps an eToro instrument type ID to an asset class.
func AssetClassForTypeID(typeID int64) string {
	switch typeID {
	case 5:
		return AssetClassStock
	case 6:
		return AssetClassETF
	case 10:
		return AssetClassCrypto
	case 1:
		return AssetClassForex
	case 4:
		return AssetClassCommodity
	default:
		return AssetClassOther
	}
}
