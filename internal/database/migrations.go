package database

import (
	"gorm.io/gorm"

	"github.com/tickerdeck/tickerdeck/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.CacheEntry{},
		&models.TickerSnapshot{},
		&models.SentimentSnapshot{},
		&models.NewsItem{},
		&models.SymbolMapping{},
		&models.SymbolAlias{},
		&models.MissingSymbol{},
		&models.SyncRun{},
	)
}

// SeedData populates the hand-curated symbol mappings and aliases the
// resolver consults before falling back to constructed chart symbols.
func SeedData(db *gorm.DB) error {
	mappings := []models.SymbolMapping{
		{Symbol: "BTC", ChartSymbol: "COINBASE:BTCUSD", CoinID: "bitcoin", SocialTopic: "bitcoin"},
		{Symbol: "ETH", ChartSymbol: "COINBASE:ETHUSD", CoinID: "ethereum", SocialTopic: "ethereum"},
		{Symbol: "SOL", ChartSymbol: "COINBASE:SOLUSD", CoinID: "solana", SocialTopic: "solana"},
		{Symbol: "DOGE", ChartSymbol: "COINBASE:DOGEUSD", CoinID: "dogecoin", SocialTopic: "dogecoin"},
	}

	for _, mapping := range mappings {
		if err := db.Where(models.SymbolMapping{Symbol: mapping.Symbol}).
			Attrs(mapping).
			FirstOrCreate(&models.SymbolMapping{}).Error; err != nil {
			return err
		}
	}

	aliases := []models.SymbolAlias{
		{Alias: "XBT", Symbol: "BTC"},
		{Alias: "WETH", Symbol: "ETH"},
	}

	for _, alias := range aliases {
		if err := db.Where(models.SymbolAlias{Alias: alias.Alias}).
			Attrs(alias).
			FirstOrCreate(&models.SymbolAlias{}).Error; err != nil {
			return err
		}
	}

	return nil
}
