package contracts

import (
	"fmt"
	"strings"
	"time"

	"envledger/internal/models"
)

// Classification thresholds: a deviation is critical on severity alone
// or when it lasted more than 60 minutes; major on severity or more
// than 30 minutes; everything else is minor.
const (
	criticalDurationMinutes = 60
	majorDurationMinutes    = 30
)

// day offsets added to "now" for the handling timeline, by class
var deviationDeadlines = map[string]map[string]int{
	"CRITICAL": {
		"containment":   0, // same day
		"investigation": 1,
		"capaPlan":      3,
		"qualityReview": 7,
		"closureTarget": 14,
	},
	"MAJOR": {
		"containment":   1,
		"investigation": 3,
		"capaPlan":      7,
		"qualityReview": 14,
		"closureTarget": 30,
	},
	"MINOR": {
		"investigation": 7,
		"qualityReview": 30,
		"closureTarget": 90,
	},
}

var deviationActions = map[string][]string{
	"CRITICAL": {
		"Immediately quarantine affected products",
		"Notify quality director and initiate emergency response",
		"Open CAPA and root-cause investigation",
		"Assess patient/product impact",
		"Document containment actions in the ledger",
	},
	"MAJOR": {
		"Assess affected products and segregate if needed",
		"Notify quality manager",
		"Open CAPA and root-cause investigation",
		"Document interim controls",
	},
	"MINOR": {
		"Record deviation details",
		"Perform trend analysis at next quality review",
		"Verify monitoring equipment calibration",
	},
}

// ClassifyDeviation returns MINOR, MAJOR or CRITICAL for a severity
// string and duration in minutes.
func ClassifyDeviation(severity string, durationMinutes float64) string {
	s := strings.ToLower(severity)
	switch {
	case s == "critical" || durationMinutes > criticalDurationMinutes:
		return "CRITICAL"
	case s == "major" || durationMinutes > majorDurationMinutes:
		return "MAJOR"
	default:
		return "MINOR"
	}
}

// evaluateDeviation classifies a deviation and derives the required
// actions checklist and timeline deadlines.
func (e *Engine) evaluateDeviation(in models.DeviationData) *models.ComplianceResult {
	class := ClassifyDeviation(in.Severity, in.DurationMinutes)

	now := time.Now().UTC()
	deadlines := make(map[string]string, len(deviationDeadlines[class]))
	for milestone, days := range deviationDeadlines[class] {
		deadlines[milestone] = now.AddDate(0, 0, days).Format("2006-01-02")
	}

	result := &models.ComplianceResult{
		ContractID:     ContractDeviation,
		ContractName:   "Deviation Management",
		InputData:      in,
		Classification: class,
		Details: []models.ComplianceDetail{{
			Type:      "CLASSIFICATION",
			Message:   fmt.Sprintf("Deviation %s classified %s (severity=%s, duration=%.0f min)", in.DeviationID, class, in.Severity, in.DurationMinutes),
			Parameter: in.Parameter,
			Value:     in.MeasuredValue,
			Limit:     in.LimitValue,
		}},
		RequiredActions:      append([]string(nil), deviationActions[class]...),
		Deadlines:            deadlines,
		CorrectiveActions:    []models.CorrectiveAction{},
		RegulatoryReferences: []string{"ICH_Q10", "EU_GMP_CHAPTER_1"},
	}

	// A classification is a verdict on handling requirements, not a
	// rule breach by itself: critical deviations are reported as fail
	// so they land in the violation log, major as warning.
	switch class {
	case "CRITICAL":
		result.Status = models.ComplianceFail
		result.CorrectiveActions = append(result.CorrectiveActions, models.CorrectiveAction{
			Action: "Escalate to quality director", Priority: "immediate", Deadline: deadlines["containment"],
		})
	case "MAJOR":
		result.Status = models.ComplianceWarning
		result.CorrectiveActions = append(result.CorrectiveActions, models.CorrectiveAction{
			Action: "Escalate to quality manager", Priority: "high", Deadline: deadlines["containment"],
		})
	default:
		result.Status = models.CompliancePass
	}
	return result
}
