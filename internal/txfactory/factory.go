package txfactory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"envledger/internal/models"

	"github.com/google/uuid"
)

// Factory builds unsigned, regulation-tagged transactions. It never
// talks to the ledger and never signs anything.
type Factory struct {
	facilityID string
}

func NewFactory(facilityID string) *Factory {
	return &Factory{facilityID: facilityID}
}

// regulatoryRefs 每种交易类型的法规引用静态表
var regulatoryRefs = map[models.TransactionType][]string{
	models.TxSensorReading:     {"EU_GMP_ANNEX_11", "FDA_21_CFR_PART_11", "WHO_TRS_961_ANNEX_9"},
	models.TxRoomStatusChange:  {"EU_GMP_CHAPTER_3", "WHO_TRS_961_ANNEX_9"},
	models.TxMedicineInventory: {"EU_GMP_CHAPTER_4", "FDA_21_CFR_PART_211"},
	models.TxDeviation:         {"EU_GMP_CHAPTER_1", "ICH_Q10", "FDA_21_CFR_PART_211"},
	models.TxCAPA:              {"ICH_Q10", "ISO_13485_8_5"},
	models.TxAudit:             {"FDA_21_CFR_PART_11", "EU_GMP_ANNEX_11"},
	models.TxAlert:             {"EU_GMP_ANNEX_11"},
	models.TxSmartContract:     {"EU_GMP_ANNEX_11", "FDA_21_CFR_PART_11"},
	models.TxUserAction:        {"FDA_21_CFR_PART_11"},
	models.TxSystem:            {"EU_GMP_ANNEX_11"},
	models.TxComplianceCheck:   {"EU_GMP_ANNEX_11", "FDA_21_CFR_PART_11", "ICH_Q9"},
}

// retentionYears 每种交易类型的最短保存年限
var retentionYears = map[models.TransactionType]int{
	models.TxSensorReading:     5,
	models.TxRoomStatusChange:  5,
	models.TxMedicineInventory: 10,
	models.TxDeviation:         10,
	models.TxCAPA:              10,
	models.TxAudit:             10,
	models.TxAlert:             5,
	models.TxSmartContract:     10,
	models.TxUserAction:        5,
	models.TxSystem:            5,
	models.TxComplianceCheck:   10,
}

// severity rule tables (deviation handling SOP)
var (
	resolutionTimeframes = map[string]string{
		"critical": "24h",
		"major":    "72h",
		"minor":    "7d",
	}
	escalationLevels = map[string]string{
		"critical": "quality_director",
		"major":    "quality_manager",
		"minor":    "supervisor",
	}
)

// NewID returns a fresh transaction id: millisecond timestamp plus a
// random component, collision probability negligible.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), suffix)
}

func (f *Factory) build(txType models.TransactionType, userID string, payload any, metadata map[string]string) (*models.Transaction, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("build %s transaction: %w", txType, err)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["version"] = "1.0"
	if years, ok := retentionYears[txType]; ok {
		metadata["retentionYears"] = fmt.Sprintf("%d", years)
	}
	refs := regulatoryRefs[txType]
	return &models.Transaction{
		ID:                   NewID(),
		Type:                 txType,
		Data:                 data,
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
		UserID:               userID,
		FacilityID:           f.facilityID,
		RegulatoryReferences: append([]string(nil), refs...),
		Metadata:             metadata,
	}, nil
}

// SensorReading builds a sensor_reading transaction.
func (f *Factory) SensorReading(userID string, data models.SensorReadingData) (*models.Transaction, error) {
	return f.build(models.TxSensorReading, userID, data, map[string]string{
		"parameter": data.Parameter,
		"roomId":    data.RoomID,
	})
}

// RoomStatusChange builds a room_status_change transaction.
func (f *Factory) RoomStatusChange(userID string, data models.RoomStatusChangeData) (*models.Transaction, error) {
	return f.build(models.TxRoomStatusChange, userID, data, map[string]string{
		"roomId": data.RoomID,
	})
}

// MedicineInventory builds a medicine_inventory transaction.
func (f *Factory) MedicineInventory(userID string, data models.MedicineInventoryData) (*models.Transaction, error) {
	return f.build(models.TxMedicineInventory, userID, data, map[string]string{
		"batchNo": data.BatchNo,
	})
}

// Deviation builds a deviation transaction. Metadata carries the
// severity-derived handling rules: resolution timeframe, escalation
// path and whether a CAPA is implied.
func (f *Factory) Deviation(userID string, data models.DeviationData) (*models.Transaction, error) {
	severity := strings.ToLower(data.Severity)
	meta := map[string]string{
		"severity": severity,
	}
	if tf, ok := resolutionTimeframes[severity]; ok {
		meta["resolutionTimeframe"] = tf
	}
	if esc, ok := escalationLevels[severity]; ok {
		meta["escalationLevel"] = esc
	}
	if severity == "critical" || severity == "major" {
		meta["capaRequired"] = "true"
	} else {
		meta["capaRequired"] = "false"
	}
	return f.build(models.TxDeviation, userID, data, meta)
}

// CAPA builds a capa transaction.
func (f *Factory) CAPA(userID string, data models.CAPAData) (*models.Transaction, error) {
	return f.build(models.TxCAPA, userID, data, map[string]string{
		"actionType": data.ActionType,
	})
}

// Audit builds an audit transaction.
func (f *Factory) Audit(userID string, data models.AuditData) (*models.Transaction, error) {
	return f.build(models.TxAudit, userID, data, map[string]string{
		"action":     data.Action,
		"entityType": data.EntityType,
	})
}

// Alert builds an alert transaction. Critical alerts escalate.
func (f *Factory) Alert(userID string, data models.AlertData) (*models.Transaction, error) {
	severity := strings.ToLower(data.Severity)
	meta := map[string]string{"severity": severity}
	if esc, ok := escalationLevels[severity]; ok {
		meta["escalationLevel"] = esc
	}
	return f.build(models.TxAlert, userID, data, meta)
}

// ComplianceCheck wraps a contract verdict into a compliance_check
// transaction so it can enter the ledger.
func (f *Factory) ComplianceCheck(userID string, result models.ComplianceResult) (*models.Transaction, error) {
	tx, err := f.build(models.TxComplianceCheck, userID, result, map[string]string{
		"contractId": result.ContractID,
		"status":     string(result.Status),
	})
	if err != nil {
		return nil, err
	}
	tx.RegulatoryReferences = mergeRefs(tx.RegulatoryReferences, result.RegulatoryReferences)
	return tx, nil
}

// UserAction builds a user_action transaction.
func (f *Factory) UserAction(userID string, data models.UserActionData) (*models.Transaction, error) {
	return f.build(models.TxUserAction, userID, data, nil)
}

// System builds a system transaction (also used for the genesis block).
func (f *Factory) System(userID string, data models.SystemData) (*models.Transaction, error) {
	return f.build(models.TxSystem, userID, data, map[string]string{
		"event": data.Event,
	})
}

func mergeRefs(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	out := append([]string(nil), base...)
	for _, r := range base {
		seen[r] = true
	}
	for _, r := range extra {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
