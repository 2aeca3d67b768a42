package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"envledger/internal/crypto"
	"envledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine() *Engine {
	return NewEngine(crypto.NewProvider(), zap.NewNop())
}

func coldStorageInput(value float64) TemperatureInput {
	return TemperatureInput{
		Spec:   DefaultStorageSpecs["cold_storage"],
		Value:  value,
		RoomID: "ROOM-7",
	}
}

func TestTemperature_WithinRange(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractTemperature, coldStorageInput(5.0))
	require.NoError(t, err)

	assert.Equal(t, models.CompliancePass, result.Status)
	assert.Equal(t, "WITHIN_RANGE", result.Details[0].Type)
	assert.Empty(t, result.CorrectiveActions)
	assert.NotEmpty(t, result.Hash)
}

func TestTemperature_WarningMargin(t *testing.T) {
	e := newTestEngine()

	// cold_storage range is 2–8: the 10% margin is 0.6, so 7.6 is
	// inside the spec but inside the margin of the maximum.
	result, err := e.Execute(ContractTemperature, coldStorageInput(7.6))
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceWarning, result.Status)
	assert.Equal(t, "NEAR_MAXIMUM", result.Details[0].Type)
	assert.NotEmpty(t, result.CorrectiveActions)
}

func TestTemperature_AboveMaximum(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractTemperature, coldStorageInput(9.0))
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceFail, result.Status)
	assert.Equal(t, "ABOVE_MAXIMUM", result.Details[0].Type)
	assert.InDelta(t, 1.0, result.Details[0].Deviation, 1e-9)
	assert.NotEmpty(t, result.CorrectiveActions)
}

func TestTemperature_BelowMinimum(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractTemperature, coldStorageInput(0.5))
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceFail, result.Status)
	assert.Equal(t, "BELOW_MINIMUM", result.Details[0].Type)
	assert.InDelta(t, 1.5, result.Details[0].Deviation, 1e-9)
}

func TestClassifyDeviation(t *testing.T) {
	tests := []struct {
		severity string
		duration float64
		want     string
	}{
		{"major", 35, "MAJOR"},
		{"critical", 10, "CRITICAL"}, // severity alone is sufficient
		{"minor", 20, "MINOR"},
		{"minor", 45, "MAJOR"},    // duration pushes it up
		{"minor", 90, "CRITICAL"}, // duration alone is sufficient
		{"major", 61, "CRITICAL"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyDeviation(tc.severity, tc.duration),
			"severity=%s duration=%.0f", tc.severity, tc.duration)
	}
}

func TestDeviation_CriticalResult(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractDeviation, models.DeviationData{
		DeviationID:     "DEV-9",
		RoomID:          "ROOM-7",
		Parameter:       "temperature",
		Severity:        "critical",
		DurationMinutes: 10,
		MeasuredValue:   12.4,
		LimitValue:      8,
	})
	require.NoError(t, err)

	assert.Equal(t, "CRITICAL", result.Classification)
	assert.Equal(t, models.ComplianceFail, result.Status)
	assert.NotEmpty(t, result.RequiredActions)

	// Deadlines are dates offset from today.
	today := time.Now().UTC().Format("2006-01-02")
	assert.Equal(t, today, result.Deadlines["containment"])
	assert.Contains(t, result.Deadlines, "closureTarget")
}

func TestDeviation_MinorResult(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractDeviation, models.DeviationData{
		DeviationID:     "DEV-10",
		Severity:        "minor",
		DurationMinutes: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, "MINOR", result.Classification)
	assert.Equal(t, models.CompliancePass, result.Status)
	assert.NotContains(t, result.Deadlines, "containment")
}

func alcoaTx(t *testing.T) models.Transaction {
	t.Helper()
	data, err := json.Marshal(map[string]any{"value": 5.0})
	require.NoError(t, err)
	return models.Transaction{
		ID:                   "TXN-1",
		Type:                 models.TxSensorReading,
		Data:                 data,
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
		UserID:               "user-1",
		FacilityID:           "FAC-001",
		RegulatoryReferences: []string{"EU_GMP_ANNEX_11"},
		Metadata:             map[string]string{"retentionYears": "5"},
	}
}

func TestALCOA_AllPrinciplesPass(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractALCOA, alcoaTx(t))
	require.NoError(t, err)

	assert.Equal(t, models.CompliancePass, result.Status)
	assert.Equal(t, 100.0, result.OverallScore)
	require.Len(t, result.Principles, 9)
	for _, p := range result.Principles {
		assert.True(t, p.Passed, p.Principle)
		assert.Equal(t, 100.0, p.Score, p.Principle)
	}
}

func TestALCOA_MissingUserID(t *testing.T) {
	e := newTestEngine()

	tx := alcoaTx(t)
	tx.UserID = ""
	result, err := e.Execute(ContractALCOA, tx)
	require.NoError(t, err)

	assert.NotEqual(t, models.CompliancePass, result.Status)
	assert.Less(t, result.OverallScore, 100.0)

	var attributable *models.PrincipleResult
	for i := range result.Principles {
		if result.Principles[i].Principle == "attributable" {
			attributable = &result.Principles[i]
		}
	}
	require.NotNil(t, attributable)
	assert.False(t, attributable.Passed)
}

func TestALCOA_SeverelyDeficientRecordFails(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractALCOA, models.Transaction{
		ID:   "TXN-2",
		Type: "bogus",
		Data: json.RawMessage(`not json`),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ComplianceFail, result.Status)
}

func TestAuditTrail_CompleteEntry(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractAuditTrail, AuditTrailInput{
		UserID:    "user-1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Entry: models.AuditData{
			Action:        "update",
			EntityType:    "storage_spec",
			EntityID:      "cold_storage",
			PreviousValue: "8",
			NewValue:      "7",
			ChangeReason:  "tightened per QA review",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.CompliancePass, result.Status)
}

func TestAuditTrail_UpdateWithoutReason(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractAuditTrail, AuditTrailInput{
		UserID:    "user-1",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Entry: models.AuditData{
			Action:        "update",
			EntityType:    "storage_spec",
			EntityID:      "cold_storage",
			PreviousValue: "8",
			NewValue:      "7",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ComplianceFail, result.Status)
	types := []string{}
	for _, d := range result.Details {
		types = append(types, d.Type)
	}
	assert.Contains(t, types, "MISSING_CHANGE_REASON")
}

func TestExecute_CountersAndViolations(t *testing.T) {
	e := newTestEngine()

	_, err := e.Execute(ContractTemperature, coldStorageInput(5.0))
	require.NoError(t, err)
	_, err = e.Execute(ContractTemperature, coldStorageInput(9.0))
	require.NoError(t, err)

	var temp models.SmartContract
	for _, c := range e.Contracts() {
		if c.ID == ContractTemperature {
			temp = c
		}
	}
	assert.Equal(t, int64(2), temp.ExecutionCount)
	assert.Equal(t, int64(1), temp.Violations)

	violations := e.Violations(ContractTemperature)
	require.Len(t, violations, 1)
	assert.NotEmpty(t, violations[0].ResultHash)
}

func TestExecute_UnknownContract(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute("SC-NOPE-001", nil)
	assert.Error(t, err)
}

func TestExecute_WrongInputType(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute(ContractTemperature, "not a TemperatureInput")
	assert.Error(t, err)
}

func TestVerifyResultHash(t *testing.T) {
	e := newTestEngine()

	result, err := e.Execute(ContractTemperature, coldStorageInput(5.0))
	require.NoError(t, err)
	assert.True(t, e.VerifyResultHash(*result))

	tampered := *result
	tampered.Status = models.ComplianceFail
	assert.False(t, e.VerifyResultHash(tampered))
}
