package detect

import (
	"math"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// TemporalDetector flags timing anomalies: bursts, bot-like regular
// intervals, predominantly night-time activity, and short-lived accounts
// with high volume.
type TemporalDetector struct{}

func (TemporalDetector) Name() string { return domain.DetectorTemporal }

func (TemporalDetector) Detect(activity *domain.AccountActivity) domain.PatternFinding {
	finding := domain.PatternFinding{Detector: domain.DetectorTemporal}

	all := append(append([]domain.TransferRecord{}, activity.Sent...), activity.Received...)
	ts := sortedTimes(all)
	if len(ts) < 2 {
		return finding
	}
	diffs := gaps(ts)

	var risk float64

	// Burst activity: many transfers under a minute apart.
	burst := 0
	for _, d := range diffs {
		if d < 60 {
			burst++
		}
	}
	if burst >= 5 {
		finding.Tags = append(finding.Tags, domain.TagBurstActivity)
		risk += 0.3
	}

	// Regular intervals under an hour suggest automation.
	if len(diffs) >= 10 {
		m := mean(diffs)
		if stddev(diffs) < m*0.1 && m < 3600 {
			finding.Tags = append(finding.Tags, domain.TagRegularInterval)
			risk += 0.2
		}
	}

	// Night-time concentration, 1-5 AM UTC.
	night := 0
	for _, t := range ts {
		hour := time.Unix(int64(t), 0).UTC().Hour()
		if hour >= 1 && hour <= 5 {
			night++
		}
	}
	if float64(night)/float64(len(ts)) > 0.7 {
		finding.Tags = append(finding.Tags, domain.TagNightActivity)
		risk += 0.1
	}

	// Whole history inside a day with heavy volume.
	lifespanHours := (ts[len(ts)-1] - ts[0]) / 3600
	if lifespanHours < 24 && len(ts) > 50 {
		finding.Tags = append(finding.Tags, domain.TagShortLifespanBusy)
		risk += 0.4
	}

	finding.RiskLevel = math.Min(risk, 1.0)
	return finding
}
