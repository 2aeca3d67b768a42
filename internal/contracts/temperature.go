package contracts

import (
	"fmt"

	"envledger/internal/models"
)

// TemperatureInput is a storage specification plus one reading.
type TemperatureInput struct {
	Spec    models.StorageSpec `json:"spec"`
	Value   float64            `json:"value"`
	RoomID  string             `json:"roomId,omitempty"`
	ReadAt  string             `json:"readAt,omitempty"`
	Sensor  string             `json:"sensor,omitempty"`
	Comment string             `json:"comment,omitempty"`
}

// warningMarginFraction: readings within this fraction of the spec range
// from either bound are flagged as warnings before an excursion occurs.
const warningMarginFraction = 0.10

// evaluateTemperature scores one reading against its storage spec.
// Strictly inside the range is pass; within the margin of either bound
// is warning; outside is fail with a direction-keyed corrective action.
func (e *Engine) evaluateTemperature(in TemperatureInput) *models.ComplianceResult {
	result := &models.ComplianceResult{
		ContractID:           ContractTemperature,
		ContractName:         "Temperature/Humidity Compliance",
		InputData:            in,
		Specifications:       &in.Spec,
		Details:              []models.ComplianceDetail{},
		CorrectiveActions:    []models.CorrectiveAction{},
		RegulatoryReferences: []string{"EU_GMP_ANNEX_11", "WHO_TRS_961_ANNEX_9"},
	}

	spec := in.Spec
	margin := (spec.Max - spec.Min) * warningMarginFraction

	switch {
	case in.Value > spec.Max:
		result.Status = models.ComplianceFail
		result.Details = append(result.Details, models.ComplianceDetail{
			Type:      "ABOVE_MAXIMUM",
			Message:   fmt.Sprintf("%s %.1f%s exceeds maximum %.1f%s", spec.Parameter, in.Value, spec.Unit, spec.Max, spec.Unit),
			Parameter: spec.Parameter,
			Value:     in.Value,
			Limit:     spec.Max,
			Deviation: in.Value - spec.Max,
		})
		result.CorrectiveActions = append(result.CorrectiveActions,
			models.CorrectiveAction{Action: "Lower setpoint and verify cooling unit operation", Priority: "immediate"},
			models.CorrectiveAction{Action: "Quarantine affected stock pending quality review", Priority: "high"},
		)
	case in.Value < spec.Min:
		result.Status = models.ComplianceFail
		result.Details = append(result.Details, models.ComplianceDetail{
			Type:      "BELOW_MINIMUM",
			Message:   fmt.Sprintf("%s %.1f%s below minimum %.1f%s", spec.Parameter, in.Value, spec.Unit, spec.Min, spec.Unit),
			Parameter: spec.Parameter,
			Value:     in.Value,
			Limit:     spec.Min,
			Deviation: spec.Min - in.Value,
		})
		result.CorrectiveActions = append(result.CorrectiveActions,
			models.CorrectiveAction{Action: "Raise setpoint and check for freezing risk", Priority: "immediate"},
			models.CorrectiveAction{Action: "Inspect products for freeze damage", Priority: "high"},
		)
	case in.Value >= spec.Max-margin:
		result.Status = models.ComplianceWarning
		result.Details = append(result.Details, models.ComplianceDetail{
			Type:      "NEAR_MAXIMUM",
			Message:   fmt.Sprintf("%s %.1f%s within %.0f%% margin of maximum %.1f%s", spec.Parameter, in.Value, spec.Unit, warningMarginFraction*100, spec.Max, spec.Unit),
			Parameter: spec.Parameter,
			Value:     in.Value,
			Limit:     spec.Max,
		})
		result.CorrectiveActions = append(result.CorrectiveActions,
			models.CorrectiveAction{Action: "Monitor trend and schedule preventive check of cooling unit", Priority: "medium"},
		)
	case in.Value <= spec.Min+margin:
		result.Status = models.ComplianceWarning
		result.Details = append(result.Details, models.ComplianceDetail{
			Type:      "NEAR_MINIMUM",
			Message:   fmt.Sprintf("%s %.1f%s within %.0f%% margin of minimum %.1f%s", spec.Parameter, in.Value, spec.Unit, warningMarginFraction*100, spec.Min, spec.Unit),
			Parameter: spec.Parameter,
			Value:     in.Value,
			Limit:     spec.Min,
		})
		result.CorrectiveActions = append(result.CorrectiveActions,
			models.CorrectiveAction{Action: "Monitor trend and verify heater/defrost cycle", Priority: "medium"},
		)
	default:
		result.Status = models.CompliancePass
		result.Details = append(result.Details, models.ComplianceDetail{
			Type:      "WITHIN_RANGE",
			Message:   fmt.Sprintf("%s %.1f%s within specification [%.1f, %.1f]%s", spec.Parameter, in.Value, spec.Unit, spec.Min, spec.Max, spec.Unit),
			Parameter: spec.Parameter,
			Value:     in.Value,
		})
	}
	return result
}

// DefaultStorageSpecs 各房间类型的默认储存规格
var DefaultStorageSpecs = map[string]models.StorageSpec{
	"cold_storage": {
		RoomType: "cold_storage", Parameter: "temperature", Min: 2, Max: 8, Unit: "°C",
	},
	"ambient_storage": {
		RoomType: "ambient_storage", Parameter: "temperature", Min: 15, Max: 25, Unit: "°C",
	},
	"controlled_humidity": {
		RoomType: "controlled_humidity", Parameter: "humidity", Min: 30, Max: 60, Unit: "%RH",
	},
	"freezer": {
		RoomType: "freezer", Parameter: "temperature", Min: -25, Max: -15, Unit: "°C",
	},
}
