// Package pipeline orchestrates one scoring request end to end: fetch,
// feature build, pattern detection, neighbor evidence, cross-validation,
// reasoning, fusion, persistence and event publication.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/detect"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
	"github.com/opensource-finance/harrier/internal/fusion"
	"github.com/opensource-finance/harrier/internal/neighbors"
	"github.com/opensource-finance/harrier/internal/oracle"
	"github.com/opensource-finance/harrier/internal/validate"
)

// EngineVersion is stamped into evaluation metadata.
const EngineVersion = "1.0.0"

const (
	activityTTL = 10 * time.Minute
	decisionTTL = 30 * time.Minute
)

// Engine wires the scoring stages to their collaborators. The oracle
// may be nil, in which case every request decides by fallback voting.
type Engine struct {
	cfg       *domain.Config
	ledger    domain.LedgerClient
	cache     domain.Cache
	index     domain.VectorIndex
	repo      domain.Repository
	bus       domain.EventBus
	oracle    domain.ReasoningOracle
	scalers   *features.ScalerStore
	suite     *detect.Suite
	neighbors *neighbors.Model
	validator *validate.CrossValidator
	fuser     *fusion.Fuser
	logger    *slog.Logger

	// Raw reference rows accumulated across loads, keyed by reference.
	// The scaler is always fitted over this whole population so index
	// entries from different loads share one coordinate space.
	refMu  sync.Mutex
	refRaw map[string]*domain.ReferenceVector
}

// New creates a scoring engine.
func New(
	cfg *domain.Config,
	ledger domain.LedgerClient,
	cache domain.Cache,
	index domain.VectorIndex,
	repo domain.Repository,
	bus domain.EventBus,
	reasoner domain.ReasoningOracle,
	scalers *features.ScalerStore,
	suite *detect.Suite,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		ledger:    ledger,
		cache:     cache,
		index:     index,
		repo:      repo,
		bus:       bus,
		oracle:    reasoner,
		scalers:   scalers,
		suite:     suite,
		neighbors: neighbors.NewModel(cfg.Thresholds),
		validator: validate.New(cfg.Thresholds),
		fuser:     fusion.New(cfg.Thresholds),
		logger:    logger,
		refRaw:    make(map[string]*domain.ReferenceVector),
	}
}

// Result is the caller-facing outcome of one scoring request.
type Result struct {
	Evaluation   *domain.Evaluation `json:"evaluation"`
	Features     map[string]float64 `json:"features"`
	TopNeighbors []domain.Neighbor  `json:"topNeighbors"`
}

// Score runs the full pipeline for one address. It returns
// domain.ErrNoEvidence when the reference population is empty; every
// other anomaly degrades into the returned decision instead of failing.
func (e *Engine) Score(ctx context.Context, address string) (*Result, error) {
	start := time.Now()

	count, err := e.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("check reference population: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("score %s: %w", address, domain.ErrNoEvidence)
	}

	// Stage 1: raw activity, cached by address.
	fetchStart := time.Now()
	activity, err := e.activity(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("fetch activity for %s: %w", address, err)
	}
	fetchMs := time.Since(fetchStart).Milliseconds()

	// Stages 2-3: feature build and detectors run concurrently over the
	// request-local snapshot.
	stageStart := time.Now()
	featureMap := features.Extract(activity)

	var (
		wg       sync.WaitGroup
		vector   []float64
		findings domain.FindingSet
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vector = features.ToVector(featureMap)
		if scaler := e.scalers.Current(); scaler != nil {
			vector = scaler.Normalize(vector)
		}
	}()
	go func() {
		defer wg.Done()
		findings = e.suite.Run(ctx, activity, featureMap)
	}()
	wg.Wait()
	stageMs := time.Since(stageStart).Milliseconds()

	// Stage 4: neighbor evidence.
	searchStart := time.Now()
	matches, err := e.index.Search(ctx, vector, e.cfg.Index.K)
	if err != nil {
		return nil, fmt.Errorf("neighbor search for %s: %w", address, err)
	}
	summary := e.neighbors.Summarize(matches)
	searchMs := time.Since(searchStart).Milliseconds()

	// Stage 5: cross-validation, pure.
	report := e.validator.Validate(summary, findings)

	// Stage 6: reasoning. Cancellation here abandons the request with
	// no persistence.
	oracleStart := time.Now()
	verdict, fellBack := e.reason(ctx, address, featureMap, summary, findings, report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	oracleMs := time.Since(oracleStart).Milliseconds()

	// Stage 7: guardrail fusion, pure.
	decision := e.fuser.Fuse(verdict, summary, findings, report)

	eval := &domain.Evaluation{
		ID:        uuid.NewString(),
		Address:   address,
		Timestamp: time.Now().UTC(),
		Decision:  decision,
		Neighbors: summary,
		Findings:  findings,
		Metadata: domain.EvaluationMetadata{
			TraceID:        traceID(ctx),
			FetchMs:        fetchMs,
			FeatureMs:      stageMs,
			DetectMs:       stageMs,
			SearchMs:       searchMs,
			OracleMs:       oracleMs,
			TotalMs:        time.Since(start).Milliseconds(),
			OracleFellBack: fellBack,
			EngineVersion:  EngineVersion,
		},
	}

	e.persist(ctx, eval)
	e.publish(ctx, eval)

	e.logger.Info("scored address",
		"address", address,
		"label", decision.Label,
		"confidence", decision.Confidence,
		"behavioralRisk", findings.BehavioralRisk,
		"neighbors", summary.TotalCount,
		"fallback", fellBack,
		"totalMs", eval.Metadata.TotalMs,
	)

	top := matches
	if len(top) > 5 {
		top = top[:5]
	}
	return &Result{Evaluation: eval, Features: featureMap, TopNeighbors: top}, nil
}

// LoadReference merges the labeled batch into the accumulated raw
// population, fits a new scaler version over the whole population, and
// rebuilds the index with every row normalized under that one version.
// Fitting never runs during scoring; in-flight requests keep the scaler
// version they captured.
func (e *Engine) LoadReference(ctx context.Context, vectors []*domain.ReferenceVector) (int, error) {
	if len(vectors) == 0 {
		return 0, fmt.Errorf("load reference: empty batch")
	}

	e.refMu.Lock()
	defer e.refMu.Unlock()

	for _, v := range vectors {
		e.refRaw[v.Reference] = v
	}

	population := make([]*domain.ReferenceVector, 0, len(e.refRaw))
	raw := make([][]float64, 0, len(e.refRaw))
	for _, v := range e.refRaw {
		population = append(population, v)
		raw = append(raw, v.Vector)
	}

	scaler, err := e.scalers.Fit(raw)
	if err != nil {
		return 0, fmt.Errorf("fit scaler: %w", err)
	}

	normalized := make([]*domain.ReferenceVector, len(population))
	for i, v := range population {
		normalized[i] = &domain.ReferenceVector{
			Reference: v.Reference,
			Flag:      v.Flag,
			Vector:    scaler.Normalize(v.Vector),
		}
	}

	if err := e.index.Upsert(ctx, normalized); err != nil {
		return 0, fmt.Errorf("upsert index: %w", err)
	}
	if e.repo != nil {
		if err := e.repo.SaveReferenceVectors(ctx, vectors); err != nil {
			e.logger.Warn("persist reference vectors failed", "error", err)
		}
	}

	e.logger.Info("reference population loaded",
		"rows", len(vectors),
		"population", len(population),
		"scalerVersion", scaler.Version,
	)
	return len(vectors), nil
}

func (e *Engine) activity(ctx context.Context, address string) (*domain.AccountActivity, error) {
	if e.cache != nil {
		if cached, err := e.cache.GetActivity(ctx, address); err == nil && cached != nil {
			return cached, nil
		}
	}
	activity, err := e.ledger.FetchActivity(ctx, address)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.SetActivity(ctx, address, activity, activityTTL); err != nil {
			e.logger.Warn("cache activity failed", "address", address, "error", err)
		}
	}
	return activity, nil
}

// reason asks the oracle for a tentative verdict, falling back to
// deterministic voting on any oracle failure. Oracle trouble is logged
// but never aborts the pipeline.
func (e *Engine) reason(
	ctx context.Context,
	address string,
	featureMap map[string]float64,
	summary domain.NeighborSummary,
	findings domain.FindingSet,
	report domain.ValidationReport,
) (domain.ScoreDecision, bool) {
	if e.oracle == nil {
		return oracle.FallbackVote(e.cfg.Thresholds, summary, findings, report), true
	}

	resp, err := e.oracle.Decide(ctx, &domain.OracleRequest{
		Address:    address,
		Features:   featureMap,
		Neighbors:  summary,
		Findings:   findings,
		Validation: report,
	})
	if err != nil {
		e.logger.Warn("oracle unavailable, using fallback voting",
			"address", address, "error", err)
		return oracle.FallbackVote(e.cfg.Thresholds, summary, findings, report), true
	}

	return domain.ScoreDecision{
		Label:       resp.Label(),
		Confidence:  resp.Confidence,
		Reasoning:   resp.Reasoning,
		RiskFactors: resp.RiskFactors,
		EdgeCases:   resp.EdgeCases,
	}, false
}

// persist stores the evaluation and, on a non-Undecided outcome, applies
// the additive scoring-ledger update. Persistence trouble is logged but
// the decision is already made.
func (e *Engine) persist(ctx context.Context, eval *domain.Evaluation) {
	if e.repo == nil {
		return
	}
	if err := e.repo.SaveEvaluation(ctx, eval); err != nil {
		e.logger.Warn("save evaluation failed", "evaluationId", eval.ID, "error", err)
	}
	if eval.Decision.Label != domain.LabelUndecided {
		isFraud := eval.Decision.Label == domain.LabelFraud
		if _, err := e.repo.ApplyScoreUpdate(ctx, eval.Address, isFraud, eval.Decision.Confidence); err != nil {
			e.logger.Warn("score update failed", "address", eval.Address, "error", err)
		}
	}
	if e.cache != nil {
		if err := e.cache.SetDecision(ctx, eval.Address, &eval.Decision, decisionTTL); err != nil {
			e.logger.Warn("cache decision failed", "address", eval.Address, "error", err)
		}
	}
}

func (e *Engine) publish(ctx context.Context, eval *domain.Evaluation) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(eval)
	if err != nil {
		e.logger.Warn("marshal evaluation event failed", "error", err)
		return
	}
	if err := e.bus.Publish(ctx, domain.TopicScoreCompleted, payload); err != nil {
		e.logger.Warn("publish completed event failed", "error", err)
	}
	if eval.Decision.Label == domain.LabelFraud {
		if err := e.bus.Publish(ctx, domain.TopicScoreAlert, payload); err != nil {
			e.logger.Warn("publish alert event failed", "error", err)
		}
	}
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
