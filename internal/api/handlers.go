package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"tronsweep/internal/engine"
	"tronsweep/internal/storage"
)

const defaultHistoryLimit = 100

// actionResponse mirrors the original control endpoints: a success flag
// plus a human-readable message.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type attemptResponse struct {
	ID                 int64   `json:"id"`
	AssetID            int64   `json:"asset_id"`
	Symbol             string  `json:"symbol"`
	SourceAddress      string  `json:"source_address"`
	DestinationAddress string  `json:"destination_address"`
	Amount             string  `json:"amount"`
	Status             string  `json:"status"`
	ChainTxID          *string `json:"chain_txid,omitempty"`
	ErrorReason        *string `json:"error_reason,omitempty"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
}

// transactionsResponse pages the ledger: attempts carries at most the
// requested limit, total the full ledger size.
type transactionsResponse struct {
	Total    int64             `json:"total"`
	Attempts []attemptResponse `json:"attempts"`
}

type assetResponse struct {
	ID                int64  `json:"id"`
	Kind              string `json:"kind"`
	ContractAddress   string `json:"contract_address,omitempty"`
	Symbol            string `json:"symbol"`
	Name              string `json:"name,omitempty"`
	Decimals          int32  `json:"decimals"`
	MinTransferAmount string `json:"min_transfer_amount"`
	Enabled           bool   `json:"enabled"`
}

type updateAssetRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

func (s *Server) statusHandler(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, s.ctrl.Status())
}

func (s *Server) startHandler(rw http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(); err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			writeJSON(rw, http.StatusConflict, actionResponse{Message: "Engine is already running"})
			return
		}
		s.logger.Error().Err(err).Msg("engine start failed")
		writeJSON(rw, http.StatusInternalServerError, actionResponse{Message: err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, actionResponse{Success: true, Message: "Engine started successfully"})
}

func (s *Server) stopHandler(rw http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			writeJSON(rw, http.StatusConflict, actionResponse{Message: "Engine is not running"})
			return
		}
		s.logger.Error().Err(err).Msg("engine stop failed")
		writeJSON(rw, http.StatusInternalServerError, actionResponse{Message: err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, actionResponse{Success: true, Message: "Engine stopped successfully"})
}

func (s *Server) transactionsHandler(rw http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(rw, http.StatusBadRequest, actionResponse{Message: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	attempts, err := s.ledger.ListRecentAttempts(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list attempts failed")
		writeJSON(rw, http.StatusInternalServerError, actionResponse{Message: "failed to load transaction history"})
		return
	}

	total, err := s.ledger.CountAttempts(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("count attempts failed")
		writeJSON(rw, http.StatusInternalServerError, actionResponse{Message: "failed to load transaction history"})
		return
	}

	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			ID:                 a.ID,
			AssetID:            a.AssetID,
			Symbol:             a.AssetSymbol,
			SourceAddress:      a.SourceAddress,
			DestinationAddress: a.DestinationAddress,
			Amount:             a.Amount.String(),
			Status:             string(a.Status),
			ChainTxID:          a.ChainTxID,
			ErrorReason:        a.ErrorReason,
			CreatedAt:          a.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:          a.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(rw, http.StatusOK, transactionsResponse{Total: total, Attempts: out})
}

func (s *Server) listAssetsHandler(rw http.ResponseWriter, r *http.Request) {
	assets, err := s.assets.ListAssets(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list assets failed")
		writeJSON(rw, http.StatusInternalServerError, actionResponse{Message: "failed to load assets"})
		return
	}

	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		out = append(out, assetResponse{
			ID:                a.ID,
			Kind:              string(a.Kind),
			ContractAddress:   a.ContractAddress,
			Symbol:            a.Symbol,
			Name:              a.Name,
			Decimals:          a.Decimals,
			MinTransferAmount: a.MinTransferAmount.String(),
			Enabled:           a.Enabled,
		})
	}
	writeJSON(rw, http.StatusOK, out)
}

// updateAssetHandler services the token-management view: only the
// enabled flag and the minimum transfer amount are operator-writable.
func (s *Server) updateAssetHandler(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, actionResponse{Message: "invalid asset id"})
		return
	}

	var req updateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, actionResponse{Message: "request must be JSON"})
		return
	}

	switch req.Field {
	case "enabled":
		var enabled bool
		if err := json.Unmarshal(req.Value, &enabled); err != nil {
			writeJSON(rw, http.StatusBadRequest, actionResponse{Message: "enabled must be a boolean"})
			return
		}
		err = s.assets.SetAssetEnabled(r.Context(), id, enabled)
	case "min_transfer_amount":
		var raw string
		if err := json.Unmarshal(req.Value, &raw); err != nil {
			// Also accept a bare JSON number.
			raw = string(req.Value)
		}
		amount, parseErr := decimal.NewFromString(raw)
		if parseErr != nil || amount.Sign() < 0 || !amount.IsInteger() {
			writeJSON(rw, http.StatusBadRequest, actionResponse{Message: "min_transfer_amount must be a non-negative integer in minor units"})
			return
		}
		err = s.assets.SetAssetMinTransfer(r.Context(), id, amount)
	default:
		writeJSON(rw, http.StatusBadRequest, actionResponse{Message: "field must be enabled or min_transfer_amount"})
		return
	}

	if errors.Is(err, storage.ErrAssetNotFound) {
		writeJSON(rw, http.StatusNotFound, actionResponse{Message: "asset not found"})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Int64("asset_id", id).Msg("asset update failed")
		writeJSON(rw, http.StatusInternalServerError, actionResponse{Message: "asset update failed"})
		return
	}
	writeJSON(rw, http.StatusOK, actionResponse{Success: true, Message: "Asset updated successfully"})
}

func (s *Server) poolHandler(rw http.ResponseWriter, r *http.Request) {
	if s.slots == nil {
		writeJSON(rw, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(rw, http.StatusOK, s.slots.Snapshot())
}

func writeJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(body)
}
