package contracts

import (
	"fmt"
	"sync"
	"time"

	"envledger/internal/crypto"
	"envledger/internal/models"

	"go.uber.org/zap"
)

// Contract ids, fixed at registration.
const (
	ContractTemperature = "SC-TEMP-001"
	ContractDeviation   = "SC-DEV-001"
	ContractALCOA       = "SC-ALCOA-001"
	ContractAuditTrail  = "SC-AUDIT-001"
)

// ViolationRecord 违规日志条目
type ViolationRecord struct {
	Timestamp  string `json:"timestamp"`
	ResultHash string `json:"resultHash"`
	Summary    string `json:"summary"`
}

type contractEntry struct {
	info       models.SmartContract
	violations []ViolationRecord
	execute    func(input any) (*models.ComplianceResult, error)
}

// Engine is the compliance rule engine: a fixed registry of named
// contracts, each a pure function of its input. Execution mutates only
// the contract's own counters, never ledger state.
type Engine struct {
	mu        sync.Mutex
	provider  *crypto.Provider
	logger    *zap.Logger
	contracts map[string]*contractEntry
	order     []string
}

// NewEngine registers the fixed contract set. Contracts live for the
// process lifetime and are never deleted.
func NewEngine(provider *crypto.Provider, logger *zap.Logger) *Engine {
	e := &Engine{
		provider:  provider,
		logger:    logger,
		contracts: make(map[string]*contractEntry),
	}
	e.register(models.SmartContract{
		ID:        ContractTemperature,
		Name:      "Temperature/Humidity Compliance",
		Framework: "EU GMP Annex 11 / WHO TRS 961",
		Status:    models.ContractActive,
	}, func(input any) (*models.ComplianceResult, error) {
		in, ok := input.(TemperatureInput)
		if !ok {
			return nil, fmt.Errorf("contract %s: expected TemperatureInput, got %T", ContractTemperature, input)
		}
		return e.evaluateTemperature(in), nil
	})
	e.register(models.SmartContract{
		ID:        ContractDeviation,
		Name:      "Deviation Management",
		Framework: "ICH Q10",
		Status:    models.ContractActive,
	}, func(input any) (*models.ComplianceResult, error) {
		in, ok := input.(models.DeviationData)
		if !ok {
			return nil, fmt.Errorf("contract %s: expected DeviationData, got %T", ContractDeviation, input)
		}
		return e.evaluateDeviation(in), nil
	})
	e.register(models.SmartContract{
		ID:        ContractALCOA,
		Name:      "ALCOA+ Data Integrity",
		Framework: "FDA 21 CFR Part 11",
		Status:    models.ContractActive,
	}, func(input any) (*models.ComplianceResult, error) {
		in, ok := input.(models.Transaction)
		if !ok {
			return nil, fmt.Errorf("contract %s: expected Transaction, got %T", ContractALCOA, input)
		}
		return e.evaluateALCOA(in), nil
	})
	e.register(models.SmartContract{
		ID:        ContractAuditTrail,
		Name:      "Audit Trail Compliance",
		Framework: "FDA 21 CFR Part 11",
		Status:    models.ContractActive,
	}, func(input any) (*models.ComplianceResult, error) {
		in, ok := input.(AuditTrailInput)
		if !ok {
			return nil, fmt.Errorf("contract %s: expected AuditTrailInput, got %T", ContractAuditTrail, input)
		}
		return e.evaluateAuditTrail(in), nil
	})
	return e
}

func (e *Engine) register(info models.SmartContract, fn func(any) (*models.ComplianceResult, error)) {
	e.contracts[info.ID] = &contractEntry{info: info, execute: fn}
	e.order = append(e.order, info.ID)
}

// Execute runs the named contract against input, finalizes the result
// hash and updates the contract's counters. A "fail" verdict is valid
// output, not an error.
func (e *Engine) Execute(contractID string, input any) (*models.ComplianceResult, error) {
	e.mu.Lock()
	entry, ok := e.contracts[contractID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown contract: %s", contractID)
	}

	result, err := entry.execute(input)
	if err != nil {
		return nil, err
	}
	if err := e.finalize(result); err != nil {
		return nil, err
	}

	e.mu.Lock()
	entry.info.ExecutionCount++
	if result.Status == models.ComplianceFail {
		entry.info.Violations++
		entry.violations = append(entry.violations, ViolationRecord{
			Timestamp:  result.Timestamp,
			ResultHash: result.Hash,
			Summary:    summarize(result),
		})
	}
	e.mu.Unlock()

	if e.logger != nil && result.Status == models.ComplianceFail {
		e.logger.Warn("compliance violation",
			zap.String("contract_id", contractID),
			zap.String("result_hash", result.Hash),
		)
	}
	return result, nil
}

// finalize stamps the timestamp (if the evaluator did not) and computes
// the tamper-evidence hash over the whole result minus the hash field.
func (e *Engine) finalize(result *models.ComplianceResult) error {
	if result.Timestamp == "" {
		result.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	result.Hash = ""
	h, err := e.provider.Hash(result)
	if err != nil {
		return fmt.Errorf("hash compliance result: %w", err)
	}
	result.Hash = h
	return nil
}

// VerifyResultHash re-derives a stored result's content hash.
func (e *Engine) VerifyResultHash(result models.ComplianceResult) bool {
	stored := result.Hash
	result.Hash = ""
	h, err := e.provider.Hash(result)
	if err != nil {
		return false
	}
	return h == stored
}

// Contracts returns a snapshot of the registered contracts in
// registration order.
func (e *Engine) Contracts() []models.SmartContract {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.SmartContract, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.contracts[id].info)
	}
	return out
}

// Violations returns the violation log of one contract.
func (e *Engine) Violations(contractID string) []ViolationRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.contracts[contractID]
	if !ok {
		return nil
	}
	return append([]ViolationRecord(nil), entry.violations...)
}

// SetStatus updates a contract's lifecycle status.
func (e *Engine) SetStatus(contractID string, status models.ContractStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.contracts[contractID]
	if !ok {
		return fmt.Errorf("unknown contract: %s", contractID)
	}
	entry.info.Status = status
	return nil
}

func summarize(result *models.ComplianceResult) string {
	if len(result.Details) > 0 {
		return result.Details[0].Message
	}
	return string(result.Status)
}
