package metrics

import (
	"strconv"
	"time"
)

// DeployAction records an executed plan step.
func DeployAction(chainID int64, action, status string) {
	if !enabled {
		return
	}
	deployActionsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), action, status).Inc()
}

// ConfirmationWait records how long a deployment took to confirm.
func ConfirmationWait(chainID int64, d time.Duration) {
	if !enabled {
		return
	}
	confirmationWait.WithLabelValues(strconv.FormatInt(chainID, 10)).Observe(d.Seconds())
}

// Run records an orchestrator run outcome ("ok", "partial" or "aborted").
func Run(chainID int64, result string) {
	if !enabled {
		return
	}
	runsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), result).Inc()
}

// VerificationAttempt records one explorer submission.
func VerificationAttempt(chainID int64, result string) {
	if !enabled {
		return
	}
	verificationAttemptsTotal.WithLabelValues(strconv.FormatInt(chainID, 10), result).Inc()
}
