package usecases

import (
	"errors"
	"strings"

	"github.com/MyCarrier-DevOps/metric-harvest/internal/domain"
)

// ClassifyAnalysis turns the result of one snapshot analysis into an outcome.
//
//   - no error: Success carrying metrics
//   - *domain.AnalysisError with the incompatible-source signature: IncompatibleSource
//   - any other *domain.AnalysisError: InvalidCode
//   - anything else: UnknownFailure
func ClassifyAnalysis(metrics *domain.SnapshotMetrics, err error) domain.HarvestOutcome {
	if err == nil {
		if metrics == nil {
			metrics = &domain.SnapshotMetrics{}
		}
		return domain.HarvestOutcome{Kind: domain.OutcomeSuccess, Metrics: metrics}
	}

	var analysisErr *domain.AnalysisError
	if errors.As(err, &analysisErr) {
		if analysisErr.Incompatible() {
			return domain.HarvestOutcome{Kind: domain.OutcomeIncompatibleSource, Err: err}
		}
		return domain.HarvestOutcome{Kind: domain.OutcomeInvalidCode, Err: err}
	}
	return domain.HarvestOutcome{Kind: domain.OutcomeUnknownFailure, Err: err}
}

// ShortenMessage flattens a commit message to one line and truncates it to
// maxLen characters followed by "...".
func ShortenMessage(msg string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = domain.DefaultMessageMaxLen
	}
	msg = strings.ReplaceAll(msg, "\n", " ")

	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen]) + "..."
}
