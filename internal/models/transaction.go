package models

import (
	"encoding/json"
	"fmt"
)

// TransactionType enumerates every event category the ledger accepts.
type TransactionType string

const (
	TxSensorReading     TransactionType = "sensor_reading"
	TxRoomStatusChange  TransactionType = "room_status_change"
	TxMedicineInventory TransactionType = "medicine_inventory"
	TxDeviation         TransactionType = "deviation"
	TxCAPA              TransactionType = "capa"
	TxAudit             TransactionType = "audit"
	TxAlert             TransactionType = "alert"
	TxSmartContract     TransactionType = "smart_contract"
	TxUserAction        TransactionType = "user_action"
	TxSystem            TransactionType = "system"
	TxComplianceCheck   TransactionType = "compliance_check"
)

var validTransactionTypes = map[TransactionType]bool{
	TxSensorReading:     true,
	TxRoomStatusChange:  true,
	TxMedicineInventory: true,
	TxDeviation:         true,
	TxCAPA:              true,
	TxAudit:             true,
	TxAlert:             true,
	TxSmartContract:     true,
	TxUserAction:        true,
	TxSystem:            true,
	TxComplianceCheck:   true,
}

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	return validTransactionTypes[t]
}

// Transaction is a single auditable event. Once a transaction is mined
// into a block it is immutable; there is no update API.
type Transaction struct {
	ID                   string            `json:"id"`
	Type                 TransactionType   `json:"type"`
	Data                 json.RawMessage   `json:"data"`
	Timestamp            string            `json:"timestamp"` // RFC3339, set by the producer
	Signature            string            `json:"signature,omitempty"`
	UserID               string            `json:"userId,omitempty"`
	FacilityID           string            `json:"facilityId,omitempty"`
	RegulatoryReferences []string          `json:"regulatoryReferences,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// ValidateBasic checks the locally verifiable required fields. Duplicate
// detection and signature verification need engine state and live in the
// ledger package.
func (tx *Transaction) ValidateBasic() error {
	if tx.ID == "" {
		return fmt.Errorf("missing required field: id")
	}
	if tx.Timestamp == "" {
		return fmt.Errorf("missing required field: timestamp")
	}
	if len(tx.Data) == 0 {
		return fmt.Errorf("missing required field: data")
	}
	if !tx.Type.IsValid() {
		return fmt.Errorf("unknown transaction type: %q", tx.Type)
	}
	return nil
}

// DecodeData unmarshals the payload into a type-specific struct.
func (tx *Transaction) DecodeData(out any) error {
	return json.Unmarshal(tx.Data, out)
}
