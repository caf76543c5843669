// Package engine orchestrates one full rating cycle: parallel base scoring,
// optional subsystems, adaptive weighting, composite scaling, temporal
// smoothing, confidence, and best-effort persistence.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/confidence"
	"github.com/tokenwatch/rater/internal/exhaustion"
	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/normalize"
	"github.com/tokenwatch/rater/internal/persistence"
	"github.com/tokenwatch/rater/internal/scoring"
	"github.com/tokenwatch/rater/internal/streak"
	"github.com/tokenwatch/rater/internal/timeframe"
)

// Input bundles the four base signals plus the analysis context for one
// rating cycle.
type Input struct {
	Technical model.TechnicalIndicators `json:"technical"`
	Momentum  model.MomentumAnalysis    `json:"momentum"`
	Volume    model.VolumeAnalysis      `json:"volume"`
	Risk      model.RiskAssessment      `json:"risk"`
	Context   model.AnalysisContext     `json:"context"`
}

// Advisor is an optional external second opinion, consulted only for ratings
// at or above the configured threshold. Failures never degrade the rating.
type Advisor interface {
	Advise(ctx context.Context, token model.TokenData, result model.RatingResult) (model.AdvisoryOpinion, error)
}

// Metrics receives engine instrumentation events. A nil implementation is
// replaced with a no-op.
type Metrics interface {
	RatingComputed(token string, rating float64, elapsed time.Duration)
	ComponentFallback(component string)
	AdvisoryOutcome(blended bool)
}

type nopMetrics struct{}

func (nopMetrics) RatingComputed(string, float64, time.Duration) {}
func (nopMetrics) ComponentFallback(string)                      {}
func (nopMetrics) AdvisoryOutcome(bool)                          {}

// Deps are the engine's injected collaborators. Only Logger is required;
// nil stores fall back to in-memory and null implementations.
type Deps struct {
	RatingStore   persistence.RatingHistoryStore
	MomentumStore persistence.MomentumHistoryStore
	Advisor       Advisor
	Metrics       Metrics
	Logger        zerolog.Logger
}

// Engine computes token ratings. Safe for concurrent use.
type Engine struct {
	cfg     Config
	store   persistence.RatingHistoryStore
	advisor Advisor
	metrics Metrics
	log     zerolog.Logger

	technical  *scoring.TechnicalCalculator
	momentum   *scoring.MomentumCalculator
	volume     *scoring.VolumeCalculator
	risk       *scoring.RiskCalculator
	timeframes *timeframe.Calculator
	streaks    *streak.Calculator
	exhaust    *exhaustion.Calculator
	confidence *confidence.Calculator
	norm       *normalize.Normalizer
	momStore   persistence.MomentumHistoryStore

	// tokenLocks serializes same-token cycles across the history read used
	// for smoothing and the subsequent append. Different tokens proceed in
	// parallel.
	tokenLocks [tokenLockStripes]sync.Mutex
}

const tokenLockStripes = 64

func (e *Engine) tokenLock(token string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(token))
	return &e.tokenLocks[h.Sum32()%tokenLockStripes]
}

// New validates the configuration and wires the calculators. An invalid
// configuration fails construction; no rating is ever attempted with one.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := deps.Logger.With().Str("component", "engine").Logger()

	store := deps.RatingStore
	if store == nil {
		store = persistence.NewMemoryStore()
	}
	momStore := deps.MomentumStore
	if momStore == nil {
		momStore = persistence.NewNullMomentumStore()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Engine{
		cfg:        cfg,
		store:      store,
		advisor:    deps.Advisor,
		metrics:    metrics,
		log:        log,
		technical:  scoring.NewTechnicalCalculator(deps.Logger),
		momentum:   scoring.NewMomentumCalculator(deps.Logger),
		volume:     scoring.NewVolumeCalculator(deps.Logger),
		risk:       scoring.NewRiskCalculator(deps.Logger),
		timeframes: timeframe.New(deps.Logger),
		streaks:    streak.New(momStore, cfg.Streak, deps.Logger),
		exhaust:    exhaustion.New(deps.Logger),
		confidence: confidence.New(deps.Logger),
		norm:       normalize.New(deps.Logger),
		momStore:   momStore,
	}, nil
}

// CalculateRating runs one full rating cycle. The whole call is bounded by
// the overall timeout; on expiry ErrOverallTimeout is returned with no
// partial result. Component failures inside the budget degrade to neutral
// fallbacks instead of failing the call.
func (e *Engine) CalculateRating(ctx context.Context, in Input) (model.RatingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallTimeout)
	defer cancel()

	type outcome struct {
		result model.RatingResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.rate(ctx, in)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		e.log.Error().
			Str("token", in.Context.TokenData.Address).
			Dur("timeout", e.cfg.OverallTimeout).
			Msg("rating cycle exceeded overall timeout")
		return model.RatingResult{}, fmt.Errorf("%w after %s", ErrOverallTimeout, e.cfg.OverallTimeout)
	}
}

func (e *Engine) rate(ctx context.Context, in Input) (model.RatingResult, error) {
	start := time.Now()
	actx := in.Context.Normalize()
	token := actx.TokenData.Address

	recent := e.recentPeriods(ctx, token)
	scores, degraded := e.baseScores(ctx, in, actx, recent)

	weights := e.cfg.Weights
	if e.cfg.AdaptiveWeighting {
		weights = AdjustWeights(weights, *actx.MarketContext, scores)
	}

	tfRes := e.runTimeframes(ctx, actx)
	if tfRes != nil {
		scores.Pattern = tfRes.FinalScore
	}
	tracking := e.runStreak(ctx, in, token)
	exhaust := e.runExhaustion(ctx, in, actx)

	composite := e.composite(scores, weights, tfRes, tracking, exhaust)

	// Advisory only: the composite series per token flags statistical breaks
	// from the recent pattern without altering the score.
	compStats := e.norm.Normalize(composite, "composite:"+token, normalize.Config{
		Method:        normalize.MethodZScore,
		Robust:        true,
		OutlierPolicy: normalize.OutlierNone,
	})
	if compStats.IsOutlier {
		degraded = append(degraded, "score breaks sharply from this token's recent pattern")
	}

	scaled := scaleScore(composite)
	rating := bucketRating(scaled)

	// Single writer per token: the prior read feeding the smoothing blend
	// and the append in persist must not interleave with a concurrent cycle
	// for the same token.
	lock := e.tokenLock(token)
	lock.Lock()

	rating = e.smooth(ctx, token, rating)
	if e.cfg.RiskAdjustment {
		rating = capForRisk(rating, scores.Risk)
	}

	conf := e.confidence.Calculate(confidence.Inputs{
		Scores:             scores,
		Context:            actx,
		HistoricalAccuracy: actx.HistoricalAccuracy,
		Timeframes:         tfRes,
		Streak:             tracking,
		Exhaustion:         exhaust,
	})

	result := model.RatingResult{
		ID:           uuid.NewString(),
		TokenAddress: token,
		Timestamp:    time.Now().UTC(),
		Rating:       rating,
		Confidence:   mathutil.RoundTo(conf, 1),
		Components:   scores,
		Weights:      weights,
	}
	result.Reasoning = buildReasoning(scores, tfRes, tracking, exhaust, degraded)
	result.Recommendation = model.RecommendFor(result.Rating, result.Confidence)
	result.Alerts = buildAlerts(result, scores, tracking, exhaust, e.cfg.ConfidenceThreshold)

	result = e.blendAdvisory(ctx, actx.TokenData, result)

	e.persist(ctx, token, result, tracking, exhaust)
	lock.Unlock()

	e.metrics.RatingComputed(token, result.Rating, time.Since(start))

	e.log.Info().
		Str("token", token).
		Float64("rating", result.Rating).
		Float64("confidence", result.Confidence).
		Str("recommendation", string(result.Recommendation)).
		Dur("elapsed", time.Since(start)).
		Msg("rating computed")

	return result, nil
}

// recentPeriods fetches the momentum history feeding volume persistence
// scoring. Errors degrade to no history.
func (e *Engine) recentPeriods(ctx context.Context, token string) []model.MomentumPeriod {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.SubsystemTimeout)
	defer cancel()

	recent, err := e.momStore.RecentPeriods(fetchCtx, token, e.cfg.StreakTimeframe, persistence.RetainedPeriods)
	if err != nil {
		e.log.Warn().Err(err).Str("token", token).Msg("momentum history unavailable, volume persistence degrades to neutral")
		return nil
	}
	return recent
}

// baseScores runs the four base calculators in parallel, each under the
// component timeout with its neutral fallback.
func (e *Engine) baseScores(ctx context.Context, in Input, actx model.AnalysisContext, recent []model.MomentumPeriod) (model.ScoreComponents, []string) {
	var (
		scores model.ScoreComponents
		mu     sync.Mutex
		wg     sync.WaitGroup

		degraded []string
	)

	run := func(name string, fallback float64, assign func(float64), fn func() float64) {
		defer wg.Done()
		v, ok := e.runComponent(ctx, name, fallback, fn)
		mu.Lock()
		assign(v)
		if !ok {
			degraded = append(degraded, fmt.Sprintf("%s scoring unavailable, neutral %.0f assumed", name, fallback))
		}
		mu.Unlock()
	}

	wg.Add(4)
	go run("technical", scoring.NeutralScore, func(v float64) { scores.Technical = v }, func() float64 {
		return e.technical.Calculate(in.Technical, actx)
	})
	go run("momentum", scoring.NeutralScore, func(v float64) { scores.Momentum = v }, func() float64 {
		return e.momentum.Calculate(in.Momentum, actx)
	})
	go run("volume", scoring.NeutralScore, func(v float64) { scores.Volume = v }, func() float64 {
		return e.volume.CalculateWithHistory(in.Volume, actx, recent)
	})
	go run("risk", scoring.NeutralRiskScore, func(v float64) { scores.Risk = v }, func() float64 {
		return e.risk.Calculate(in.Risk, actx)
	})
	wg.Wait()

	return scores, degraded
}

// runComponent executes fn under the component timeout. Expiry or outer
// cancellation yields the fallback; the computation goroutine is left to
// finish into a buffered channel.
func (e *Engine) runComponent(ctx context.Context, name string, fallback float64, fn func() float64) (float64, bool) {
	out := make(chan float64, 1)
	go func() { out <- fn() }()

	timer := time.NewTimer(e.cfg.ComponentTimeout)
	defer timer.Stop()

	select {
	case v := <-out:
		return v, true
	case <-timer.C:
	case <-ctx.Done():
	}
	e.log.Warn().Str("component", name).Float64("fallback", fallback).Msg("component timed out, using fallback")
	e.metrics.ComponentFallback(name)
	return fallback, false
}

func (e *Engine) runTimeframes(ctx context.Context, actx model.AnalysisContext) *timeframe.Result {
	if !e.cfg.EnableMultiTimeframe || len(actx.MultiTimeframeData) == 0 {
		return nil
	}
	var res timeframe.Result
	if !e.runSubsystem(ctx, "timeframe", func() {
		res = e.timeframes.Calculate(actx.MultiTimeframeData, actx)
	}) {
		neutral := timeframe.NeutralResult()
		return &neutral
	}
	return &res
}

func (e *Engine) runStreak(ctx context.Context, in Input, token string) *model.ConsecutiveMomentumTracking {
	if !e.cfg.EnableConsecutiveMomentum {
		return nil
	}
	period := periodFrom(in)
	subCtx, cancel := context.WithTimeout(ctx, e.cfg.SubsystemTimeout)
	defer cancel()

	tracking, err := e.streaks.CalculateBonus(subCtx, token, e.cfg.StreakTimeframe, period)
	if err != nil {
		e.log.Warn().Err(err).Str("token", token).Msg("streak tracking unavailable, no boost applied")
		return nil
	}
	if len(tracking.Periods) == 0 {
		// Null history store: the subsystem is disabled, not weak.
		return nil
	}
	return &tracking
}

func (e *Engine) runExhaustion(ctx context.Context, in Input, actx model.AnalysisContext) *model.ExhaustionPenaltyResult {
	if !e.cfg.EnableExhaustionPenalty {
		return nil
	}
	var res model.ExhaustionPenaltyResult
	if !e.runSubsystem(ctx, "exhaustion", func() {
		res = e.exhaust.CalculatePenalty(in.Technical, in.Momentum, in.Volume, actx.MultiTimeframeData, actx)
	}) {
		none := model.NoExhaustion()
		return &none
	}
	return &res
}

// runSubsystem time-boxes an optional subsystem. It reports whether fn
// completed inside the budget.
func (e *Engine) runSubsystem(ctx context.Context, name string, fn func()) bool {
	done := make(chan struct{}, 1)
	go func() {
		fn()
		done <- struct{}{}
	}()

	timer := time.NewTimer(e.cfg.SubsystemTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}
	e.log.Warn().Str("subsystem", name).Msg("subsystem timed out, using neutral result")
	e.metrics.ComponentFallback(name)
	return false
}

// periodFrom snapshots the current cycle as a momentum period for streak
// tracking.
func periodFrom(in Input) model.MomentumPeriod {
	return model.MomentumPeriod{
		Timestamp:       time.Now().UTC(),
		RSI:             in.Technical.RSI,
		MACDHistogram:   in.Technical.MACD.Histogram,
		Volume:          in.Volume.CurrentVolume,
		AverageVolume:   in.Volume.AverageVolume,
		VolumeConfirmed: in.Volume.VolumeSpikeFactor >= 1.2,
		TrendDirection:  in.Momentum.Trend,
		Strength:        in.Momentum.Strength,
		ExhaustionRisk:  in.Technical.RSI >= 80 || (in.Technical.RSI > 0 && in.Technical.RSI <= 20),
	}
}

// composite blends the weighted base scores with the subsystem
// contributions and clamps to [0,100].
func (e *Engine) composite(
	scores model.ScoreComponents,
	weights model.Weights,
	tfRes *timeframe.Result,
	tracking *model.ConsecutiveMomentumTracking,
	exhaust *model.ExhaustionPenaltyResult,
) float64 {
	base := scores.Technical*weights.Technical +
		scores.Momentum*weights.Momentum +
		scores.Volume*weights.Volume +
		scores.Risk*weights.Risk

	composite := base
	if tfRes != nil {
		composite += tfRes.FinalScore * e.cfg.MultiTimeframeWeight
	}
	if tracking != nil && tracking.ScoreBoost > 0 {
		composite += (tracking.ScoreBoost / 100) * base * e.cfg.ConsecutiveMomentumWeight
	}
	if exhaust != nil {
		composite += exhaust.TotalPenalty
	}
	return mathutil.ClampScore(composite)
}

// scaleScore spreads the composite through a logistic curve so mid-range
// composites separate and extremes saturate.
func scaleScore(composite float64) float64 {
	return 100 / (1 + math.Exp(-6*(composite/100-0.5)))
}

// bucketRating maps the scaled score onto the 1-10 scale.
func bucketRating(scaled float64) float64 {
	switch {
	case scaled >= 95:
		return 10
	case scaled >= 85:
		return 9
	case scaled >= 75:
		return 8
	case scaled >= 65:
		return 7
	case scaled >= 55:
		return 6
	case scaled >= 45:
		return 5
	case scaled >= 35:
		return 4
	case scaled >= 25:
		return 3
	case scaled >= 15:
		return 2
	default:
		return 1
	}
}

// capForRisk bounds the rating for tokens whose risk subscore signals
// elevated danger, however strong the other components are.
func capForRisk(rating, riskScore float64) float64 {
	switch {
	case riskScore <= 20:
		return math.Min(rating, 4)
	case riskScore <= 35:
		return math.Min(rating, 6)
	}
	return rating
}

// smooth blends the fresh rating with the most recent stored one. Store
// failures or an empty history leave the rating unsmoothed.
func (e *Engine) smooth(ctx context.Context, token string, rating float64) float64 {
	if e.cfg.SmoothingFactor <= 0 {
		return rating
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.SubsystemTimeout)
	defer cancel()

	prior, err := e.store.Latest(fetchCtx, token)
	if err != nil {
		e.log.Warn().Err(err).Str("token", token).Msg("prior rating unavailable, smoothing skipped")
		return rating
	}
	if prior == nil {
		return rating
	}
	alpha := e.cfg.SmoothingFactor
	return mathutil.RoundTo(rating*(1-alpha)+prior.Rating*alpha, 1)
}

// blendAdvisory consults the external advisor for high ratings and blends
// its opinion in. Any failure leaves the technical rating untouched.
func (e *Engine) blendAdvisory(ctx context.Context, token model.TokenData, result model.RatingResult) model.RatingResult {
	if !e.cfg.AdvisoryEnabled || e.advisor == nil || result.Rating < e.cfg.AdvisoryThreshold {
		return result
	}
	advCtx, cancel := context.WithTimeout(ctx, e.cfg.SubsystemTimeout)
	defer cancel()

	opinion, err := e.advisor.Advise(advCtx, token, result)
	if err != nil {
		e.log.Warn().Err(err).Str("token", token.Address).Msg("advisory unavailable, keeping technical rating")
		e.metrics.AdvisoryOutcome(false)
		return result
	}
	advised := mathutil.Clamp(opinion.Rating, 1, 10)

	w := e.cfg.AdvisoryWeight
	result.Rating = mathutil.RoundTo(result.Rating*(1-w)+advised*w, 1)
	if opinion.Rationale != "" {
		result.Reasoning = append(result.Reasoning, "advisor: "+opinion.Rationale)
	}
	result.Recommendation = model.RecommendFor(result.Rating, result.Confidence)
	e.metrics.AdvisoryOutcome(true)
	return result
}

// persist appends the result best-effort. Storage failures are logged, never
// surfaced.
func (e *Engine) persist(ctx context.Context, token string, result model.RatingResult, tracking *model.ConsecutiveMomentumTracking, exhaust *model.ExhaustionPenaltyResult) {
	breakdown := map[string]float64{
		"technical": result.Components.Technical,
		"momentum":  result.Components.Momentum,
		"volume":    result.Components.Volume,
		"risk":      result.Components.Risk,
		"pattern":   result.Components.Pattern,
	}
	if tracking != nil {
		breakdown["streak_boost"] = tracking.ScoreBoost
	}
	if exhaust != nil {
		breakdown["exhaustion_penalty"] = exhaust.TotalPenalty
	}

	writeCtx, cancel := context.WithTimeout(ctx, e.cfg.SubsystemTimeout)
	defer cancel()
	if err := e.store.AppendRating(writeCtx, token, result, breakdown); err != nil {
		e.log.Warn().Err(err).Str("token", token).Msg("rating persistence failed")
	}
}

// History returns up to limit recent ratings for a token, newest first.
func (e *Engine) History(ctx context.Context, token string, limit int) ([]persistence.RatingRecord, error) {
	return e.store.ListByToken(ctx, token, limit)
}
