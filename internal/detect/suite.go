package detect

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// detectorWeights combine the five built-in risk levels into the
// behavioral risk score. Value and network patterns carry the most
// signal; order matches the detector registration order below.
var detectorWeights = map[string]float64{
	domain.DetectorTemporal:   0.15,
	domain.DetectorValue:      0.25,
	domain.DetectorNetwork:    0.25,
	domain.DetectorToken:      0.15,
	domain.DetectorBehavioral: 0.20,
}

// Suite runs the built-in detectors concurrently and folds their risk
// levels into a single weighted score. Operator screening rules, when
// configured, contribute an extra advisory finding.
type Suite struct {
	detectors []Detector
	screening *ScreeningEngine
	logger    *slog.Logger
}

// NewSuite creates a suite with the five built-in detectors.
// screening may be nil.
func NewSuite(screening *ScreeningEngine, logger *slog.Logger) *Suite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suite{
		detectors: []Detector{
			TemporalDetector{},
			ValueDetector{},
			NetworkDetector{},
			TokenDetector{},
			BehavioralDetector{},
		},
		screening: screening,
		logger:    logger,
	}
}

// Run executes every detector against the request-local activity
// snapshot. Detectors only read shared input, so they run in parallel.
func (s *Suite) Run(ctx context.Context, activity *domain.AccountActivity, featureMap map[string]float64) domain.FindingSet {
	findings := make([]domain.PatternFinding, len(s.detectors))

	var wg sync.WaitGroup
	for i, d := range s.detectors {
		wg.Add(1)
		go func(idx int, det Detector) {
			defer wg.Done()
			findings[idx] = det.Detect(activity)
		}(i, d)
	}
	wg.Wait()

	var weighted float64
	for _, f := range findings {
		weighted += f.RiskLevel * detectorWeights[f.Detector]
	}

	if s.screening != nil && s.screening.RulesCount() > 0 {
		sf, err := s.screening.Evaluate(ctx, featureMap)
		if err != nil {
			s.logger.Warn("screening rules evaluation failed", "error", err)
		} else if len(sf.Tags) > 0 {
			findings = append(findings, sf)
		}
	}

	return domain.FindingSet{
		Findings:       findings,
		BehavioralRisk: math.Min(weighted, 1.0),
	}
}
