// internal/agent/supervisor.go
package agent

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Decision is the supervisor's verdict after one step.
type Decision struct {
	Continue   bool
	Success    bool
	Reason     string
	Overridden bool
}

// technicalFailureMarkers in a finish reason mean the model is giving up
// over a formatting hiccup, not because the objective is settled.
var technicalFailureMarkers = []string{"parsing failed", "parse error", "json", "error:"}

// successMarkers in a finish reason signal an explicit objective-met claim.
// Kept narrow: words like "found" or "done" also show up in failure phrasing
// ("no results found", "nothing more can be done").
var successMarkers = []string{"success", "complete", "objective met"}

// Supervisor arbitrates termination. The executor never stops a mission and
// the reasoner never gets the final word; this is the sole authority.
type Supervisor struct {
	logger *zap.Logger
}

func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{logger: logger.Named("supervisor")}
}

// Decide applies the termination policy in strict priority order. The policy
// is "never give up over a technical hiccup or an unmet count, always give
// up at the hard step ceiling". Overrides are recorded in history.
func (s *Supervisor) Decide(mem *MissionState) Decision {
	last := mem.LastAction

	if last.Type == ActionFinish {
		reason := strings.ToLower(last.Reason)

		// 1. A parsing hiccup must never end the mission.
		if containsAny(reason, technicalFailureMarkers) {
			mem.RecordHistory(fmt.Sprintf(
				"SUPERVISOR OVERRIDE: finish rejected, reason sounds like a technical failure (%q)", last.Reason))
			s.logger.Info("Overriding finish: technical failure language", zap.String("reason", last.Reason))
			return Decision{Continue: true, Overridden: true, Reason: "finish overridden: technical failure language"}
		}

		// 2. Finishing with results in hand is a success.
		if len(mem.Results) > 0 {
			return Decision{Success: true, Reason: fmt.Sprintf("finished with %d result(s)", len(mem.Results))}
		}

		// 3. An explicit objective-met claim stands even with zero results.
		if containsAny(reason, successMarkers) {
			return Decision{Success: true, Reason: "finished: objective reported met"}
		}

		// 4. Refuse to finish empty-handed while steps remain.
		if mem.Step < mem.MaxSteps {
			mem.RecordHistory(fmt.Sprintf(
				"SUPERVISOR OVERRIDE: finish rejected at step %d/%d with no results", mem.Step, mem.MaxSteps))
			s.logger.Info("Overriding finish: premature with no results",
				zap.Int("step", mem.Step), zap.Int("max_steps", mem.MaxSteps))
			return Decision{Continue: true, Overridden: true, Reason: "finish overridden: premature with no results"}
		}
	}

	// 5. Enough results ends the mission no matter what was proposed.
	if mem.TargetResultCount > 0 && len(mem.Results) >= mem.TargetResultCount {
		return Decision{Success: true, Reason: fmt.Sprintf(
			"target met: %d/%d results", len(mem.Results), mem.TargetResultCount)}
	}

	// 6. The hard ceiling.
	if mem.Step > mem.MaxSteps {
		return Decision{Reason: fmt.Sprintf("step budget exhausted (%d/%d)", mem.Step, mem.MaxSteps)}
	}

	// 7. Keep going.
	return Decision{Continue: true, Reason: "continue"}
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
