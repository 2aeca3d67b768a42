package contracts

import (
	"fmt"
	"strings"

	"envledger/internal/models"
)

// AuditTrailInput is a logged action with its attribution envelope.
type AuditTrailInput struct {
	UserID     string           `json:"userId"`
	FacilityID string           `json:"facilityId"`
	Timestamp  string           `json:"timestamp"`
	Entry      models.AuditData `json:"entry"`
}

// actions that modify a record and therefore require a change reason
var modifyingActions = map[string]bool{
	"update": true,
	"delete": true,
	"modify": true,
}

// evaluateAuditTrail validates that a logged action carries the
// required attribution, a change reason when it is a modification, and
// before/after values when it is an update.
func (e *Engine) evaluateAuditTrail(in AuditTrailInput) *models.ComplianceResult {
	details := []models.ComplianceDetail{}
	actions := []models.CorrectiveAction{}

	missing := func(field, why string) {
		details = append(details, models.ComplianceDetail{
			Type:    "MISSING_FIELD",
			Message: fmt.Sprintf("audit entry missing %s (%s)", field, why),
		})
		actions = append(actions, models.CorrectiveAction{
			Action:   fmt.Sprintf("Capture %s at the point of entry", field),
			Priority: "high",
		})
	}

	if in.UserID == "" {
		missing("userId", "every action must be attributable")
	}
	if in.Timestamp == "" {
		missing("timestamp", "every action must be time-stamped")
	}
	if in.Entry.Action == "" {
		missing("action", "the performed action must be named")
	}
	if in.Entry.EntityType == "" || in.Entry.EntityID == "" {
		missing("entity reference", "the affected record must be identified")
	}

	action := strings.ToLower(in.Entry.Action)
	if modifyingActions[action] && in.Entry.ChangeReason == "" {
		details = append(details, models.ComplianceDetail{
			Type:    "MISSING_CHANGE_REASON",
			Message: fmt.Sprintf("%s of %s/%s recorded without a change reason", action, in.Entry.EntityType, in.Entry.EntityID),
		})
		actions = append(actions, models.CorrectiveAction{
			Action:   "Require a change reason before committing modifications",
			Priority: "high",
		})
	}
	if action == "update" && (in.Entry.PreviousValue == "" || in.Entry.NewValue == "") {
		details = append(details, models.ComplianceDetail{
			Type:    "MISSING_VALUE_PAIR",
			Message: "update recorded without before/after values",
		})
		actions = append(actions, models.CorrectiveAction{
			Action:   "Capture previous and new values on every update",
			Priority: "high",
		})
	}

	status := models.CompliancePass
	if len(details) > 0 {
		status = models.ComplianceFail
	} else {
		details = append(details, models.ComplianceDetail{
			Type:    "AUDIT_TRAIL_COMPLETE",
			Message: fmt.Sprintf("%s of %s/%s fully attributed", action, in.Entry.EntityType, in.Entry.EntityID),
		})
	}

	return &models.ComplianceResult{
		ContractID:           ContractAuditTrail,
		ContractName:         "Audit Trail Compliance",
		InputData:            in,
		Status:               status,
		Details:              details,
		CorrectiveActions:    actions,
		RegulatoryReferences: []string{"FDA_21_CFR_PART_11", "EU_GMP_ANNEX_11"},
	}
}
