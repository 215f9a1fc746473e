package service

import (
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openwager/wagerbook/internal/domain"
	"github.com/openwager/wagerbook/internal/engine"
)

var authorityIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const maxOutcomes = 16

// CreateMarketRequest represents the input for market creation.
type CreateMarketRequest struct {
	Title               string
	AuthorityID         string
	OutcomeTitles       []string
	PriceLadder         []float64
	EnableCrossMatching bool
}

// MarketResponse is the external view of a market.
type MarketResponse struct {
	MarketID            string    `json:"market_id"`
	Title               string    `json:"title"`
	AuthorityID         string    `json:"authority_id"`
	OutcomeTitles       []string  `json:"outcome_titles"`
	PriceLadder         []float64 `json:"price_ladder"`
	Status              string    `json:"status"`
	EnableCrossMatching bool      `json:"enable_cross_matching"`
	WinningOutcome      *int      `json:"winning_outcome,omitempty"`
	UnsettledCount      int       `json:"unsettled_count"`
	UnclosedCount       int       `json:"unclosed_count"`
	StakeMatchedTotal   int64     `json:"stake_matched_total"`
	CreatedAt           time.Time `json:"created_at"`
}

// LiquidityLevel is one aggregated book level in a snapshot.
type LiquidityLevel struct {
	Outcome int             `json:"outcome"`
	Price   float64         `json:"price"`
	Stake   int64           `json:"stake"`
	Sources []LiquiditySource `json:"sources,omitempty"`
}

// LiquiditySource identifies one source level of cross-matched liquidity.
type LiquiditySource struct {
	Outcome int     `json:"outcome"`
	Price   float64 `json:"price"`
}

// BookResponse is a point-in-time snapshot of both sides of the book.
type BookResponse struct {
	MarketID    string           `json:"market_id"`
	ForSide     []LiquidityLevel `json:"for"`
	AgainstSide []LiquidityLevel `json:"against"`
	QueueLen    int              `json:"queue_len"`
	Escrow      int64            `json:"escrow"`
}

// UpdateCrossLiquidityRequest derives liquidity for a target level from
// source levels on the opposite outcomes.
type UpdateCrossLiquidityRequest struct {
	MarketID      string
	SourceSide    string
	SourcePrices  []CrossSource
	TargetOutcome int
	TargetPrice   float64
}

// CrossSource is one source level reference in a cross update.
type CrossSource struct {
	Outcome int
	Price   float64
}

// MarketService handles market creation, status management, and book
// queries.
type MarketService struct {
	engine *engine.Engine
}

// NewMarketService creates a new MarketService.
func NewMarketService(eng *engine.Engine) *MarketService {
	return &MarketService{engine: eng}
}

// Create validates the request and registers a new market in
// initializing status.
func (s *MarketService) Create(req CreateMarketRequest) (*MarketResponse, error) {
	if req.Title == "" {
		return nil, &domain.ValidationError{Message: "title must not be empty"}
	}
	if !authorityIDRegex.MatchString(req.AuthorityID) {
		return nil, &domain.ValidationError{
			Message: "authority_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if len(req.OutcomeTitles) < 2 || len(req.OutcomeTitles) > maxOutcomes {
		return nil, &domain.ValidationError{
			Message: "market must have between 2 and 16 outcomes",
		}
	}
	for _, title := range req.OutcomeTitles {
		if title == "" {
			return nil, &domain.ValidationError{Message: "outcome titles must not be empty"}
		}
	}
	if len(req.PriceLadder) == 0 {
		return nil, &domain.ValidationError{Message: "price_ladder must not be empty"}
	}
	ladder, err := domain.NewPriceLadder(req.PriceLadder)
	if err != nil {
		return nil, err
	}

	m := &domain.Market{
		MarketID:            uuid.New().String(),
		Title:               req.Title,
		AuthorityID:         req.AuthorityID,
		OutcomeCount:        len(req.OutcomeTitles),
		OutcomeTitles:       req.OutcomeTitles,
		PriceLadder:         ladder,
		Status:              domain.MarketStatusInitializing,
		EnableCrossMatching: req.EnableCrossMatching,
		CreatedAt:           time.Now(),
	}
	s.engine.RegisterMarket(m)
	return toMarketResponse(m), nil
}

// List returns all markets, oldest first.
func (s *MarketService) List() []*MarketResponse {
	markets := s.engine.ListMarkets()
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].CreatedAt.Equal(markets[j].CreatedAt) {
			return markets[i].MarketID < markets[j].MarketID
		}
		return markets[i].CreatedAt.Before(markets[j].CreatedAt)
	})
	out := make([]*MarketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	return out
}

// Get returns a market by ID.
func (s *MarketService) Get(marketID string) (*MarketResponse, error) {
	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// Open transitions an initializing market to open. Authority only.
func (s *MarketService) Open(marketID, callerID string) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.OpenMarket(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// Suspend pauses order intake. Authority only.
func (s *MarketService) Suspend(marketID, callerID string) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.SuspendMarket(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// Resume reopens a suspended market. Authority only.
func (s *MarketService) Resume(marketID, callerID string) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.ResumeMarket(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// Lock stops trading ahead of settlement. Authority only.
func (s *MarketService) Lock(marketID, callerID string) (*MarketResponse, error) {
	if err := s.authorize(marketID, callerID); err != nil {
		return nil, err
	}
	m, err := s.engine.LockMarket(marketID)
	if err != nil {
		return nil, err
	}
	return toMarketResponse(m), nil
}

// Book returns a snapshot of the market's aggregated liquidity.
func (s *MarketService) Book(marketID string) (*BookResponse, error) {
	forSide, againstSide, err := s.engine.BookSnapshot(marketID)
	if err != nil {
		return nil, err
	}
	queueLen, err := s.engine.QueueLen(marketID)
	if err != nil {
		return nil, err
	}
	escrow, err := s.engine.EscrowBalance(marketID)
	if err != nil {
		return nil, err
	}
	return &BookResponse{
		MarketID:    marketID,
		ForSide:     toLevels(forSide),
		AgainstSide: toLevels(againstSide),
		QueueLen:    queueLen,
		Escrow:      escrow,
	}, nil
}

// UpdateCrossLiquidity recomputes derived liquidity for a target level
// from the given source levels.
func (s *MarketService) UpdateCrossLiquidity(req UpdateCrossLiquidityRequest) error {
	var side domain.Side
	switch req.SourceSide {
	case string(domain.SideFor):
		side = domain.SideFor
	case string(domain.SideAgainst):
		side = domain.SideAgainst
	default:
		return &domain.ValidationError{Message: "source_side must be 'for' or 'against'"}
	}
	sources := make([]engine.LiquidityKey, 0, len(req.SourcePrices))
	for _, src := range req.SourcePrices {
		p, err := domain.ParsePrice(src.Price)
		if err != nil {
			return err
		}
		sources = append(sources, engine.LiquidityKey{Outcome: src.Outcome, Price: p})
	}
	target, err := domain.ParsePrice(req.TargetPrice)
	if err != nil {
		return err
	}
	return s.engine.UpdateCrossLiquidity(req.MarketID, side, sources, engine.LiquidityKey{
		Outcome: req.TargetOutcome,
		Price:   target,
	})
}

func (s *MarketService) authorize(marketID, callerID string) error {
	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return err
	}
	if callerID != m.AuthorityID {
		return domain.ErrNotAuthorized
	}
	return nil
}

func toMarketResponse(m *domain.Market) *MarketResponse {
	return &MarketResponse{
		MarketID:            m.MarketID,
		Title:               m.Title,
		AuthorityID:         m.AuthorityID,
		OutcomeTitles:       m.OutcomeTitles,
		PriceLadder:         m.PriceLadder.Floats(),
		Status:              string(m.Status),
		EnableCrossMatching: m.EnableCrossMatching,
		WinningOutcome:      m.WinningOutcome,
		UnsettledCount:      m.UnsettledCount,
		UnclosedCount:       m.UnclosedCount,
		StakeMatchedTotal:   m.StakeMatchedTotal,
		CreatedAt:           m.CreatedAt,
	}
}

func toLevels(entries []engine.LiquidityEntry) []LiquidityLevel {
	levels := make([]LiquidityLevel, 0, len(entries))
	for _, e := range entries {
		lvl := LiquidityLevel{
			Outcome: e.Outcome,
			Price:   e.Price.Float64(),
			Stake:   e.Stake,
		}
		for _, src := range e.Sources {
			lvl.Sources = append(lvl.Sources, LiquiditySource{
				Outcome: src.Outcome,
				Price:   src.Price.Float64(),
			})
		}
		levels = append(levels, lvl)
	}
	return levels
}
