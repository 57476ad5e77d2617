package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tickerdeck/tickerdeck/internal/models"
	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
)

// Venue is one entry of the ranked venue/quote list used to construct chart
// symbol candidates. Venues quoting in USD on trusted exchanges come before
// USDT venues; the order is fixed so resolution stays deterministic.
type Venue struct {
	Exchange string
	Quote    string
}

// DefaultVenues is the construction priority used when no explicit mapping
// exists for a symbol.
var DefaultVenues = []Venue{
	{Exchange: "COINBASE", Quote: "USD"},
	{Exchange: "KRAKEN", Quote: "USD"},
	{Exchange: "BITSTAMP", Quote: "USD"},
	{Exchange: "BINANCE", Quote: "USDT"},
	{Exchange: "BYBIT", Quote: "USDT"},
	{Exchange: "KUCOIN", Quote: "USDT"},
}

// Resolution is the ordered candidate list for one input symbol. Callers try
// candidates in order and accept the first one the charting widget renders;
// there is no way to validate a candidate without attempting to use it.
type Resolution struct {
	Input      string   `json:"input"`
	Symbol     string   `json:"symbol"`
	Via        string   `json:"via"` // mapping | alias | constructed
	Candidates []string `json:"candidates"`
}

// SymbolService resolves raw symbol strings into chart symbol candidates and
// tracks the ones it could not map.
type SymbolService struct {
	db     *gorm.DB
	venues []Venue
	now    func() time.Time
}

// NewSymbolService constructs a SymbolService using the default venue ranking.
func NewSymbolService(db *gorm.DB) (*SymbolService, error) {
	if db == nil {
		return nil, errors.New("symbol service: db is required")
	}
	return &SymbolService{db: db, venues: DefaultVenues, now: time.Now}, nil
}

// NormalizeSymbol uppercases and strips everything outside [A-Z0-9].
func NormalizeSymbol(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripTrailingDigits drops version-like trailing digits ("GIGA2" -> "GIGA")
// unless the symbol is all digits.
func stripTrailingDigits(symbol string) string {
	trimmed := strings.TrimRight(symbol, "0123456789")
	if trimmed == "" {
		return symbol
	}
	return trimmed
}

// Resolve maps a raw symbol to an ordered candidate list. Priority: exact
// mapping, alias, then constructed venue candidates. A mapping or alias hit
// puts the curated chart symbol first but still appends the constructed
// fallbacks, since the curated entry can go stale when a venue delists.
func (s *SymbolService) Resolve(ctx context.Context, raw string) (Resolution, error) {
	ctx = ensureContext(ctx)

	symbol := NormalizeSymbol(raw)
	if symbol == "" {
		return Resolution{}, apperrors.NewBadRequest("symbol must contain at least one alphanumeric character")
	}

	res := Resolution{Input: raw, Symbol: symbol}

	// 1. Exact mapping, including the digit-suffixed form.
	if mapping, found, err := s.lookupMapping(ctx, symbol); err != nil {
		return Resolution{}, err
	} else if found {
		res.Via = "mapping"
		res.Candidates = s.withConstructed(mapping.ChartSymbol, symbol)
		return res, nil
	}

	// 2. Alias list.
	if canonical, found, err := s.lookupAlias(ctx, symbol); err != nil {
		return Resolution{}, err
	} else if found {
		res.Via = "alias"
		res.Symbol = canonical
		if mapping, ok, err := s.lookupMapping(ctx, canonical); err != nil {
			return Resolution{}, err
		} else if ok {
			res.Candidates = s.withConstructed(mapping.ChartSymbol, canonical)
			return res, nil
		}
		res.Candidates = s.constructed(canonical)
		return res, nil
	}

	// 3. No explicit mapping: strip version-like digits and retry the tables
	// once before falling back to construction.
	stripped := stripTrailingDigits(symbol)
	if stripped != symbol {
		if mapping, found, err := s.lookupMapping(ctx, stripped); err != nil {
			return Resolution{}, err
		} else if found {
			res.Via = "mapping"
			res.Symbol = stripped
			res.Candidates = s.withConstructed(mapping.ChartSymbol, stripped)
			return res, nil
		}
		res.Symbol = stripped
	}

	if err := s.recordMiss(ctx, res.Symbol); err != nil {
		return Resolution{}, err
	}

	res.Via = "constructed"
	res.Candidates = s.constructed(res.Symbol)
	return res, nil
}

// MissingSymbols lists unresolved symbols ordered by how often they were
// requested, for manual mapping.
func (s *SymbolService) MissingSymbols(ctx context.Context, limit int) ([]models.MissingSymbol, error) {
	ctx = ensureContext(ctx)
	limit = clampLimit(limit, 50, 500)

	var rows []models.MissingSymbol
	if err := s.db.WithContext(ctx).
		Order("occurrences DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("symbol service: missing symbols: %w", err)
	}
	return rows, nil
}

func (s *SymbolService) lookupMapping(ctx context.Context, symbol string) (models.SymbolMapping, bool, error) {
	var mapping models.SymbolMapping
	err := s.db.WithContext(ctx).Take(&mapping, "symbol = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.SymbolMapping{}, false, nil
	}
	if err != nil {
		return models.SymbolMapping{}, false, fmt.Errorf("symbol service: mapping lookup: %w", err)
	}
	return mapping, mapping.ChartSymbol != "", nil
}

func (s *SymbolService) lookupAlias(ctx context.Context, symbol string) (string, bool, error) {
	var alias models.SymbolAlias
	err := s.db.WithContext(ctx).Take(&alias, "alias = ?", symbol).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("symbol service: alias lookup: %w", err)
	}
	return alias.Symbol, alias.Symbol != "", nil
}

func (s *SymbolService) constructed(symbol string) []string {
	out := make([]string, 0, len(s.venues))
	for _, venue := range s.venues {
		out = append(out, venue.Exchange+":"+symbol+venue.Quote)
	}
	return out
}

// withConstructed puts the curated chart symbol first, then the constructed
// fallbacks, dropping any duplicate of the curated entry.
func (s *SymbolService) withConstructed(curated, symbol string) []string {
	out := []string{curated}
	for _, candidate := range s.constructed(symbol) {
		if candidate != curated {
			out = append(out, candidate)
		}
	}
	return out
}

// recordMiss bumps the occurrence counter for an unresolved symbol.
func (s *SymbolService) recordMiss(ctx context.Context, symbol string) error {
	now := s.now().UTC()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"occurrences":  gorm.Expr("occurrences + 1"),
				"last_seen_at": now,
			}),
		}).
		Create(&models.MissingSymbol{
			Symbol:      symbol,
			Occurrences: 1,
			LastSeenAt:  now,
		}).Error
	if err != nil {
		return fmt.Errorf("symbol service: record miss: %w", err)
	}
	return nil
}
