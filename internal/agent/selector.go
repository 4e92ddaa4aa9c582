// internal/agent/selector.go
package agent

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// maxLiveProbes bounds the number of live page queries per validation sweep.
// Candidate lists can carry dozens of selectors; probing them all would stall
// the loop for seconds.
const maxLiveProbes = 10

// SelectorValidation is the outcome of one sweep over candidate elements.
type SelectorValidation struct {
	Working      []string
	Failed       []string
	Best         string
	BestElement  *schemas.ElementCandidate
	ProbesIssued int
}

// SelectorValidator tests candidate selectors against the live page and
// ranks them. Selectors already tried for the same search text are skipped.
type SelectorValidator struct {
	logger       *zap.Logger
	probeTimeout time.Duration
}

// NewSelectorValidator creates a validator with the given per-probe timeout.
func NewSelectorValidator(logger *zap.Logger, probeTimeout time.Duration) *SelectorValidator {
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	return &SelectorValidator{
		logger:       logger.Named("selector_validator"),
		probeTimeout: probeTimeout,
	}
}

// Validate probes each element's suggested selectors in priority order. A
// selector counts as working when it resolves to at least one element whose
// first match is visible and enabled. Every probed selector, working or not,
// is recorded into the mission's selector-attempt ledger, and one interaction
// record is appended for the sweep.
//
// Individual probe failures never propagate; only an infrastructure failure
// (page gone) aborts the sweep.
func (v *SelectorValidator) Validate(
	ctx context.Context,
	page schemas.Page,
	candidates []schemas.ElementCandidate,
	searchText string,
	mem *MissionState,
) (*SelectorValidation, error) {
	ordered := make([]schemas.ElementCandidate, len(candidates))
	copy(ordered, candidates)

	// (visible AND interactive) > visible > interactive > neither.
	sort.SliceStable(ordered, func(i, j int) bool {
		return elementRank(ordered[i]) > elementRank(ordered[j])
	})

	result := &SelectorValidation{}
	for i := range ordered {
		candidate := &ordered[i]
		for _, selector := range candidate.Selectors {
			if result.ProbesIssued >= maxLiveProbes {
				break
			}
			if mem.SelectorTried(searchText, selector) {
				continue
			}

			result.ProbesIssued++
			mem.RecordSelectorAttempt(searchText, selector)

			ok, err := v.probe(ctx, page, selector)
			if err != nil {
				if IsInfrastructureError(err) {
					return nil, err
				}
				// A failed probe just marks the selector bad.
				v.logger.Debug("Selector probe failed",
					zap.String("selector", selector), zap.Error(err))
				ok = false
			}

			if ok {
				result.Working = append(result.Working, selector)
				if result.Best == "" {
					result.Best = selector
					result.BestElement = candidate
				}
			} else {
				result.Failed = append(result.Failed, selector)
			}
		}
		if result.ProbesIssued >= maxLiveProbes {
			break
		}
	}

	if result.Best != "" {
		mem.RecordSuccessfulSelector(searchText, result.Best)
	}
	mem.RecordInteraction(InteractionRecord{
		Step:         mem.Step,
		SearchText:   searchText,
		WorkingCount: len(result.Working),
		FailedCount:  len(result.Failed),
		BestSelector: result.Best,
	})

	v.logger.Info("Selector validation sweep complete",
		zap.String("search_text", searchText),
		zap.Int("working", len(result.Working)),
		zap.Int("failed", len(result.Failed)),
		zap.String("best", result.Best))
	return result, nil
}

// probe checks one selector against the live page.
func (v *SelectorValidator) probe(ctx context.Context, page schemas.Page, selector string) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, v.probeTimeout)
	defer cancel()

	loc := page.Locator(selector)
	count, err := loc.Count(probeCtx)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	first := loc.First()
	visible, err := first.IsVisible(probeCtx)
	if err != nil || !visible {
		return false, err
	}
	enabled, err := first.IsEnabled(probeCtx)
	if err != nil || !enabled {
		return false, err
	}
	return true, nil
}

// elementRank orders candidates for probing.
func elementRank(c schemas.ElementCandidate) int {
	switch {
	case c.Visible && c.Interactive:
		return 3
	case c.Visible:
		return 2
	case c.Interactive:
		return 1
	default:
		return 0
	}
}
