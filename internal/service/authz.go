package service

import (
	"fmt"

	"github.com/yourorg/credvault/internal/domain"
	"github.com/yourorg/credvault/internal/observability/metrics"
	"github.com/yourorg/credvault/internal/security"
)

// authorize runs the engine, records the decision metric, and converts a
// denial into domain.ErrForbidden carrying the denying rule. An engine error
// (malformed action/target pair) is passed through untouched: that is a
// defect in the calling code, not a business rejection.
func authorize(engine *security.Engine, p security.Principal, action security.Action, target security.Target) error {
	decision, err := engine.Authorize(p, action, target)
	if err != nil {
		return err
	}
	metrics.ObserveAuthzDecision(string(action), string(decision.Rule), decision.Allowed)
	if !decision.Allowed {
		return fmt.Errorf("%s (rule %s): %w", decision.Reason, decision.Rule, domain.ErrForbidden)
	}
	return nil
}
