package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"envledger/internal/contracts"
	"envledger/internal/ledger"
	"envledger/internal/models"
	"envledger/internal/report"
	"envledger/internal/txfactory"

	"go.uber.org/zap"
)

// Handler 账本 REST API（使用标准库 http.ServeMux，避免引入第三方路由依赖）
type Handler struct {
	engine     *ledger.Engine
	rules      *contracts.Engine
	facilityID string
	logger     *zap.Logger
	mux        *http.ServeMux
}

func NewHandler(engine *ledger.Engine, rules *contracts.Engine, facilityID string, logger *zap.Logger) *Handler {
	h := &Handler{
		engine:     engine,
		rules:      rules,
		facilityID: facilityID,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	h.handle("/api/v1/transactions", map[string]http.HandlerFunc{
		http.MethodPost: h.submitTransaction,
		http.MethodGet:  h.listTransactions,
	})
	// /api/v1/transactions/{id}/verify
	h.handle("/api/v1/transactions/", map[string]http.HandlerFunc{
		http.MethodGet: h.verifyTransaction,
	})
	h.handle("/api/v1/mine", map[string]http.HandlerFunc{
		http.MethodPost: h.mineBlock,
	})
	h.handle("/api/v1/chain", map[string]http.HandlerFunc{
		http.MethodGet: h.getChain,
	})
	h.handle("/api/v1/chain/validate", map[string]http.HandlerFunc{
		http.MethodGet: h.validateChain,
	})
	h.handle("/api/v1/summary", map[string]http.HandlerFunc{
		http.MethodGet: h.getSummary,
	})
	h.handle("/api/v1/contracts", map[string]http.HandlerFunc{
		http.MethodGet: h.listContracts,
	})
	// /api/v1/contracts/{id}/execute, /api/v1/contracts/{id}/violations
	h.handle("/api/v1/contracts/", map[string]http.HandlerFunc{
		http.MethodPost: h.executeContract,
		http.MethodGet:  h.contractViolations,
	})
	h.handle("/api/v1/reports/audit.xlsx", map[string]http.HandlerFunc{
		http.MethodGet: h.auditReport,
	})
}

func (h *Handler) handle(pattern string, methods map[string]http.HandlerFunc) {
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		fn, ok := methods[r.Method]
		if !ok {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	})
}

type submitTransactionRequest struct {
	ID        string                 `json:"id,omitempty"`
	Type      models.TransactionType `json:"type"`
	Timestamp string                 `json:"timestamp,omitempty"`
	UserID    string                 `json:"userId"`
	Data      json.RawMessage        `json:"data"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
	Signature string                 `json:"signature,omitempty"`
}

// submitTransaction POST /api/v1/transactions
// 未签名的交易由账本引擎代签
func (h *Handler) submitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitTransactionRequest
	if err := readBodyJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx := models.Transaction{
		ID:         req.ID,
		Type:       req.Type,
		Data:       req.Data,
		Timestamp:  req.Timestamp,
		Signature:  req.Signature,
		UserID:     req.UserID,
		FacilityID: h.facilityID,
		Metadata:   req.Metadata,
	}
	if tx.ID == "" {
		tx.ID = txfactory.NewID()
	}
	if tx.Timestamp == "" {
		tx.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	if err := h.engine.AddTransaction(r.Context(), &tx); err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, ledger.ErrInvalidSignature):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// listTransactions GET /api/v1/transactions?type=sensor_reading
func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	txType := r.URL.Query().Get("type")
	if txType == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'type' is required")
		return
	}
	txs := h.engine.GetTransactionsByType(models.TransactionType(txType))
	writeJSON(w, http.StatusOK, map[string]any{
		"type":         txType,
		"count":        len(txs),
		"transactions": txs,
	})
}

// verifyTransaction GET /api/v1/transactions/{id}/verify
func (h *Handler) verifyTransaction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || action != "verify" || id == "" {
		http.NotFound(w, r)
		return
	}
	verified, found := h.engine.VerifyTransaction(id)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"transactionId": id,
			"found":         false,
			"verified":      false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactionId": id,
		"found":         true,
		"verified":      verified,
	})
}

// mineBlock POST /api/v1/mine
func (h *Handler) mineBlock(w http.ResponseWriter, r *http.Request) {
	// 挖矿不受请求断开影响，限时 2 分钟
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	block, err := h.engine.MineBlock(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrMiningInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ledger.ErrNotReady):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Error("mining failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if block == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"block":   nil,
			"message": "no pending transactions",
		})
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

// getChain GET /api/v1/chain
func (h *Handler) getChain(w http.ResponseWriter, r *http.Request) {
	chain := h.engine.Chain()
	writeJSON(w, http.StatusOK, map[string]any{
		"length": len(chain),
		"blocks": chain,
	})
}

// validateChain GET /api/v1/chain/validate
func (h *Handler) validateChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ValidateChain())
}

// getSummary GET /api/v1/summary
func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.GetSummary())
}

// listContracts GET /api/v1/contracts
func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"contracts": h.rules.Contracts()})
}

// executeContract POST /api/v1/contracts/{id}/execute
func (h *Handler) executeContract(w http.ResponseWriter, r *http.Request) {
	id, action, ok := cutContractPath(r.URL.Path)
	if !ok || action != "execute" {
		http.NotFound(w, r)
		return
	}

	input, err := decodeContractInput(id, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.rules.Execute(id, input)
	if err != nil {
		if strings.HasPrefix(err.Error(), "unknown contract") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// contractViolations GET /api/v1/contracts/{id}/violations
func (h *Handler) contractViolations(w http.ResponseWriter, r *http.Request) {
	id, action, ok := cutContractPath(r.URL.Path)
	if !ok || action != "violations" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contractId": id,
		"violations": h.rules.Violations(id),
	})
}

func cutContractPath(path string) (id, action string, ok bool) {
	rest := strings.TrimPrefix(path, "/api/v1/contracts/")
	id, action, ok = strings.Cut(rest, "/")
	if id == "" {
		ok = false
	}
	return id, action, ok
}

// decodeContractInput 按合约类型解码请求体
func decodeContractInput(contractID string, r *http.Request) (any, error) {
	switch contractID {
	case contracts.ContractTemperature:
		var in contracts.TemperatureInput
		if err := readBodyJSON(r, &in); err != nil {
			return nil, fmt.Errorf("decode temperature input: %w", err)
		}
		return in, nil
	case contracts.ContractDeviation:
		var in models.DeviationData
		if err := readBodyJSON(r, &in); err != nil {
			return nil, fmt.Errorf("decode deviation input: %w", err)
		}
		return in, nil
	case contracts.ContractALCOA:
		var in models.Transaction
		if err := readBodyJSON(r, &in); err != nil {
			return nil, fmt.Errorf("decode transaction input: %w", err)
		}
		return in, nil
	case contracts.ContractAuditTrail:
		var in contracts.AuditTrailInput
		if err := readBodyJSON(r, &in); err != nil {
			return nil, fmt.Errorf("decode audit trail input: %w", err)
		}
		return in, nil
	default:
		// Execute 返回 unknown contract 错误
		return nil, nil
	}
}

// auditReport GET /api/v1/reports/audit.xlsx
func (h *Handler) auditReport(w http.ResponseWriter, r *http.Request) {
	data, err := report.GenerateAuditWorkbook(h.engine, h.facilityID)
	if err != nil {
		h.logger.Error("audit report generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}
	filename := fmt.Sprintf("audit_%s_%s.xlsx", h.facilityID, time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
