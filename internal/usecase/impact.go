package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/example/waste-report/internal/repository"
)

const (
	impactCacheKey     = "impact:summary"
	impactReportsLimit = 100
	impactTasksLimit   = 100
	co2KgPerWasteKg    = 0.5
)

var leadingAmount = regexp.MustCompile(`(\d+(\.\d+)?)`)

// ImpactSummary is the aggregate shown on the landing page.
type ImpactSummary struct {
	WasteCollected   float64 `json:"wasteCollected"`
	ReportsSubmitted int     `json:"reportsSubmitted"`
	TokensEarned     int     `json:"tokensEarned"`
	CO2Offset        float64 `json:"co2Offset"`
}

// ImpactRepository defines the reads the impact summary is computed from.
type ImpactRepository interface {
	GetRecentReports(ctx context.Context, limit int) ([]repository.Report, error)
	GetAllRewards(ctx context.Context) ([]repository.Reward, error)
	GetWasteCollectionTasks(ctx context.Context, limit int) ([]repository.Report, error)
}

// ImpactService computes and caches the impact summary.
type ImpactService struct {
	repo   ImpactRepository
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewImpactService constructs the service. A nil cache or non-positive ttl
// disables caching.
func NewImpactService(repo ImpactRepository, cache Cache, ttl time.Duration, logger *zap.Logger) *ImpactService {
	return &ImpactService{repo: repo, cache: cache, ttl: ttl, logger: logger.Named("impact")}
}

// Summary returns the impact figures. Read failures yield the zero summary.
func (s *ImpactService) Summary(ctx context.Context) ImpactSummary {
	if cached, ok := s.fromCache(ctx); ok {
		return cached
	}

	summary, err := s.compute(ctx)
	if err != nil {
		s.logger.Error("error fetching impact data", zap.Error(err))
		return ImpactSummary{}
	}
	s.store(ctx, summary)
	return summary
}

// Invalidate drops the cached summary, e.g. after a new report.
func (s *ImpactService) Invalidate(ctx context.Context) {
	if !s.cachingEnabled() {
		return
	}
	if err := s.cache.Del(ctx, impactCacheKey); err != nil {
		s.logger.Warn("failed to invalidate impact cache", zap.Error(err))
	}
}

func (s *ImpactService) compute(ctx context.Context) (ImpactSummary, error) {
	reports, err := s.repo.GetRecentReports(ctx, impactReportsLimit)
	if err != nil {
		return ImpactSummary{}, err
	}
	rewards, err := s.repo.GetAllRewards(ctx)
	if err != nil {
		return ImpactSummary{}, err
	}
	tasks, err := s.repo.GetWasteCollectionTasks(ctx, impactTasksLimit)
	if err != nil {
		return ImpactSummary{}, err
	}

	var waste float64
	for _, task := range tasks {
		waste += ParseAmount(task.Amount)
	}
	tokens := 0
	for _, reward := range rewards {
		tokens += reward.Points
	}

	return ImpactSummary{
		WasteCollected:   roundTenth(waste),
		ReportsSubmitted: len(reports),
		TokensEarned:     tokens,
		CO2Offset:        roundTenth(waste * co2KgPerWasteKg),
	}, nil
}

// ParseAmount returns the first decimal number found in a free-text amount
// such as "2.5 kg", or 0 when there is none.
func ParseAmount(amount string) float64 {
	match := leadingAmount.FindString(amount)
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return v
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func (s *ImpactService) cachingEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *ImpactService) fromCache(ctx context.Context) (ImpactSummary, bool) {
	if !s.cachingEnabled() {
		return ImpactSummary{}, false
	}
	raw, err := s.cache.Get(ctx, impactCacheKey)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("failed to read impact cache", zap.Error(err))
		}
		return ImpactSummary{}, false
	}
	var summary ImpactSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		s.logger.Warn("failed to decode cached impact summary", zap.Error(err))
		return ImpactSummary{}, false
	}
	return summary, true
}

func (s *ImpactService) store(ctx context.Context, summary ImpactSummary) {
	if !s.cachingEnabled() {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, impactCacheKey, string(raw), s.ttl); err != nil {
		s.logger.Warn("failed to cache impact summary", zap.Error(err))
	}
}
