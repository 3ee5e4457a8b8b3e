package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fhirnlp/internal/config"
	"fhirnlp/internal/model"
)

// ErrQueryLogDisabled is returned by history reads when no query log is configured
var ErrQueryLogDisabled = errors.New("query log is disabled")

const queryLogTimeout = 5 * time.Second

// QueryLogger persists processed queries
type QueryLogger interface {
	LogQuery(ctx context.Context, entry *model.QueryLog) error
	RecentQueries(ctx context.Context, limit int) ([]model.QueryLog, error)
}

// QueryService runs the extract, compile and generate pipeline for one query
type QueryService struct {
	extractor *IntentExtractor
	compiler  *QueryCompiler
	mock      config.MockConfig
	pool      []model.ConditionMatch
	queryLog  QueryLogger
	clock     func() time.Time
	seeder    func() int64
}

// Option customises a QueryService
type Option func(*QueryService)

// WithClock replaces the wall clock used as the reference date
func WithClock(clock func() time.Time) Option {
	return func(s *QueryService) {
		s.clock = clock
	}
}

// WithSeeder replaces the source of seeds for requests that do not carry one
func WithSeeder(seeder func() int64) Option {
	return func(s *QueryService) {
		s.seeder = seeder
	}
}

// WithQueryLog records every processed query. A nil logger disables recording.
func WithQueryLog(queryLog QueryLogger) Option {
	return func(s *QueryService) {
		s.queryLog = queryLog
	}
}

// NewQueryService creates a new query service
func NewQueryService(
	extractor *IntentExtractor,
	compiler *QueryCompiler,
	mock config.MockConfig,
	opts ...Option,
) *QueryService {
	s := &QueryService{
		extractor: extractor,
		compiler:  compiler,
		mock:      mock,
		pool:      extractor.KnownConditions(),
		clock:     time.Now,
		seeder:    func() int64 { return time.Now().UnixNano() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process extracts an intent, compiles it and generates a mock bundle for it.
// Every request draws from its own random source, seeded from the request or
// the service seeder, so the seed in the response reproduces the bundle.
func (s *QueryService) Process(ctx context.Context, req *model.QueryRequest) (*model.QueryResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	now := s.clock()

	seed := s.seeder()
	if req.Seed != nil {
		seed = *req.Seed
	}

	intent := s.extractor.Extract(req.Query)

	compiled, err := s.compiler.Build(intent, now)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query: %w", err)
	}

	generator := NewMockGenerator(rand.New(rand.NewSource(seed)), s.mock, s.pool)
	bundle, err := generator.Generate(intent, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate bundle: %w", err)
	}

	took := time.Since(startTime).Milliseconds()

	log.Debug().
		Str("query", req.Query).
		Str("action", string(intent.Action)).
		Str("resource_type", intent.ResourceType).
		Int("conditions", len(intent.Conditions)).
		Str("fhir_url", compiled.URL).
		Int("total", bundle.Total).
		Int64("seed", seed).
		Int64("took_ms", took).
		Msg("query processed")

	// Log query (non-blocking)
	if entry := s.newQueryLog(req.Query, intent, compiled, bundle.Total, took, now); entry != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), queryLogTimeout)
			defer cancel()
			if err := s.queryLog.LogQuery(ctx, entry); err != nil {
				log.Warn().Err(err).Str("id", entry.ID).Msg("failed to record query log")
			}
		}()
	}

	return &model.QueryResponse{
		OriginalQuery:   req.Query,
		ExtractedIntent: intent,
		FHIRQuery:       compiled,
		FHIRResponse:    bundle,
		Seed:            seed,
		Took:            took,
	}, nil
}

// RecentQueries returns the latest recorded queries, newest first
func (s *QueryService) RecentQueries(ctx context.Context, limit int) ([]model.QueryLog, error) {
	if s.queryLog == nil {
		return nil, ErrQueryLogDisabled
	}
	return s.queryLog.RecentQueries(ctx, limit)
}

// QueryLogEnabled reports whether processed queries are being recorded
func (s *QueryService) QueryLogEnabled() bool {
	return s.queryLog != nil
}

func (s *QueryService) newQueryLog(
	query string,
	intent *model.QueryIntent,
	compiled *model.CompiledQuery,
	total int,
	took int64,
	now time.Time,
) *model.QueryLog {
	if s.queryLog == nil {
		return nil
	}
	intentMap, err := model.ToJSONMap(intent)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode intent for query log")
		return nil
	}
	queryMap, err := model.ToJSONMap(compiled)
	if err != nil {
		log.Warn().Err(err).Msg("failed to encode compiled query for query log")
		return nil
	}

	return &model.QueryLog{
		ID:             uuid.NewString(),
		Query:          query,
		Intent:         intentMap,
		FHIRQuery:      queryMap,
		Modifiers:      model.JSONArray(intent.Modifiers),
		ResultCount:    total,
		ResponseTimeMs: int(took),
		CreatedAt:      now.UTC(),
	}
}
