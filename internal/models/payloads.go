package models

// Type-specific transaction payloads. Each TransactionType carries one of
// these structs in Transaction.Data; the factory is the only producer.

// SensorReadingData 传感器读数（温度/湿度等环境参数）
type SensorReadingData struct {
	SensorID   string  `json:"sensorId"`
	RoomID     string  `json:"roomId"`
	Parameter  string  `json:"parameter"` // temperature, humidity, pressure
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	RoomType   string  `json:"roomType,omitempty"` // cold_storage, ambient_storage, ...
	RecordedAt string  `json:"recordedAt"`
}

// RoomStatusChangeData 房间状态变更
type RoomStatusChangeData struct {
	RoomID         string `json:"roomId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Reason         string `json:"reason,omitempty"`
}

// MedicineInventoryData 药品库存事件
type MedicineInventoryData struct {
	MedicineID string  `json:"medicineId"`
	BatchNo    string  `json:"batchNo"`
	Action     string  `json:"action"` // received, dispensed, destroyed, quarantined
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	RoomID     string  `json:"roomId,omitempty"`
	ExpiryDate string  `json:"expiryDate,omitempty"`
}

// DeviationData 偏差事件
type DeviationData struct {
	DeviationID     string  `json:"deviationId"`
	RoomID          string  `json:"roomId"`
	Parameter       string  `json:"parameter"`
	Severity        string  `json:"severity"` // minor, major, critical
	DurationMinutes float64 `json:"durationMinutes"`
	MeasuredValue   float64 `json:"measuredValue"`
	LimitValue      float64 `json:"limitValue"`
	Description     string  `json:"description,omitempty"`
}

// CAPAData 纠正与预防措施
type CAPAData struct {
	CAPAID             string `json:"capaId"`
	DeviationID        string `json:"deviationId,omitempty"`
	ActionType         string `json:"actionType"` // corrective, preventive
	Description        string `json:"description"`
	ResponsiblePerson  string `json:"responsiblePerson"`
	DueDate            string `json:"dueDate"`
	EffectivenessCheck bool   `json:"effectivenessCheck"`
}

// AuditData 审计踪迹条目
type AuditData struct {
	Action        string `json:"action"` // create, update, delete, view, login
	EntityType    string `json:"entityType"`
	EntityID      string `json:"entityId"`
	PreviousValue string `json:"previousValue,omitempty"`
	NewValue      string `json:"newValue,omitempty"`
	ChangeReason  string `json:"changeReason,omitempty"`
}

// AlertData 报警事件
type AlertData struct {
	AlertID   string `json:"alertId"`
	AlertType string `json:"alertType"`
	Severity  string `json:"severity"` // info, warning, critical
	Message   string `json:"message"`
	RoomID    string `json:"roomId,omitempty"`
	SourceID  string `json:"sourceId,omitempty"`
}

// UserActionData 用户操作
type UserActionData struct {
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Details string `json:"details,omitempty"`
}

// SystemData 系统事件（也用于创世块）
type SystemData struct {
	Event        string `json:"event"`
	FacilityName string `json:"facilityName,omitempty"`
	Description  string `json:"description,omitempty"`
	Version      string `json:"version,omitempty"`
}
