package models

// ComplianceStatus 合规判定结果状态
type ComplianceStatus string

const (
	CompliancePass    ComplianceStatus = "pass"
	ComplianceFail    ComplianceStatus = "fail"
	ComplianceWarning ComplianceStatus = "warning"
	CompliancePending ComplianceStatus = "pending"
)

// ContractStatus 合约生命周期状态
type ContractStatus string

const (
	ContractActive     ContractStatus = "active"
	ContractPaused     ContractStatus = "paused"
	ContractDeprecated ContractStatus = "deprecated"
	ContractViolated   ContractStatus = "violated"
)

// StorageSpec is a room-type specific storage specification
// (e.g. cold_storage temperature 2–8 °C).
type StorageSpec struct {
	RoomType  string  `json:"roomType"`
	Parameter string  `json:"parameter"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Unit      string  `json:"unit"`
}

// ComplianceDetail 单项判定明细
type ComplianceDetail struct {
	Type      string  `json:"type"` // WITHIN_RANGE, ABOVE_MAXIMUM, BELOW_MINIMUM, NEAR_LIMIT, ...
	Message   string  `json:"message"`
	Parameter string  `json:"parameter,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Limit     float64 `json:"limit,omitempty"`
	Deviation float64 `json:"deviation,omitempty"`
}

// CorrectiveAction 纠正措施建议
type CorrectiveAction struct {
	Action   string `json:"action"`
	Priority string `json:"priority"` // immediate, high, medium, low
	Deadline string `json:"deadline,omitempty"`
}

// PrincipleResult is one ALCOA+ principle evaluation.
type PrincipleResult struct {
	Principle string  `json:"principle"`
	Passed    bool    `json:"passed"`
	Score     float64 `json:"score"` // 0–100
	Message   string  `json:"message,omitempty"`
}

// ComplianceResult is the outcome of one contract execution. The Hash
// field is a content hash of the rest of the result so a stored verdict
// can later be checked for tampering.
type ComplianceResult struct {
	ContractID           string             `json:"contractId"`
	ContractName         string             `json:"contractName"`
	Timestamp            string             `json:"timestamp"`
	InputData            any                `json:"inputData"`
	Specifications       *StorageSpec       `json:"specifications,omitempty"`
	Status               ComplianceStatus   `json:"status"`
	Details              []ComplianceDetail `json:"details"`
	CorrectiveActions    []CorrectiveAction `json:"correctiveActions"`
	RegulatoryReferences []string           `json:"regulatoryReferences"`
	Principles           []PrincipleResult  `json:"principles,omitempty"`
	OverallScore         float64            `json:"overallScore,omitempty"`
	Classification       string             `json:"classification,omitempty"` // MINOR, MAJOR, CRITICAL
	RequiredActions      []string           `json:"requiredActions,omitempty"`
	Deadlines            map[string]string  `json:"deadlines,omitempty"`
	Hash                 string             `json:"hash"`
}

// SmartContract 合约登记信息与计数器快照
type SmartContract struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Framework      string         `json:"framework"` // e.g. "EU GMP Annex 11", "FDA 21 CFR Part 11"
	Status         ContractStatus `json:"status"`
	ExecutionCount int64          `json:"executionCount"`
	Violations     int64          `json:"violations"`
}
