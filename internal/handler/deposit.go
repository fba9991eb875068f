package handler

import (
	"context"
	"net/http"

	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/solana"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DepositService is the deposit lifecycle surface exposed over HTTP.
type DepositService interface {
	Create(ctx context.Context, userID string, req *model.CreateDepositRequest) (*model.DepositSession, error)
	Get(ctx context.Context, userID, id string) (*model.DepositSession, error)
	Detect(ctx context.Context, userID, id string, req *model.DetectDepositRequest) (*model.DepositSession, error)
	Complete(ctx context.Context, userID, id, walletContext string, credential []byte) (*model.DepositSession, error)
	Delete(ctx context.Context, userID, id string) error
}

// DepositHandler serves the /deposits endpoints.
type DepositHandler struct {
	deposits DepositService
	logger   *zap.Logger
}

func NewDepositHandler(deposits DepositService, logger *zap.Logger) *DepositHandler {
	return &DepositHandler{deposits: deposits, logger: logger.Named("http")}
}

// Create handles POST /deposits
// @Summary      Create deposit session
// @Description  Opens a pending deposit session and returns a QR code for the deposit address
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header    string                      true  "Caller identity"
// @Param        request    body      model.CreateDepositRequest  true  "Deposit data"
// @Success      201        {object}  model.DepositResponse
// @Failure      400        {object}  model.ErrorResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /deposits [post]
func (h *DepositHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req model.CreateDepositRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	session, err := h.deposits.Create(r.Context(), userID, &req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	resp := model.NewDepositResponse(session)
	qr, err := solana.GenerateQRCode(session.WalletAddress)
	if err != nil {
		// the session is usable without a QR code
		h.logger.Warn("failed to render deposit QR", zap.String("deposit_id", session.ID), zap.Error(err))
	} else {
		resp.QR = qr
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Get handles GET /deposits/{id}
// @Summary      Get deposit session
// @Tags         deposits
// @Produce      json
// @Param        X-User-ID  header    string  true  "Caller identity"
// @Param        id         path      string  true  "Deposit ID"
// @Success      200        {object}  model.DepositResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /deposits/{id} [get]
func (h *DepositHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	session, err := h.deposits.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.NewDepositResponse(session))
}

// Detect handles POST /deposits/{id}/detect
// @Summary      Record detected transfer
// @Description  Marks a pending session as detected. External wallets must supply sourceAddress for verification.
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header    string                      true  "Caller identity"
// @Param        id         path      string                      true  "Deposit ID"
// @Param        request    body      model.DetectDepositRequest  true  "Detected transfer"
// @Success      200        {object}  model.DepositResponse
// @Failure      400        {object}  model.ErrorResponse
// @Failure      409        {object}  model.ErrorResponse
// @Router       /deposits/{id}/detect [post]
func (h *DepositHandler) Detect(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req model.DetectDepositRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	session, err := h.deposits.Detect(r.Context(), userID, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.NewDepositResponse(session))
}

// Complete handles POST /deposits/{id}/complete
// @Summary      Complete deposit
// @Description  Reconstructs the wallet key, deposits through the sidecar and seals the key for withdrawal
// @Tags         deposits
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header    string                        true  "Caller identity"
// @Param        id         path      string                        true  "Deposit ID"
// @Param        request    body      model.CompleteDepositRequest  true  "Wallet credential"
// @Success      200        {object}  model.DepositResponse
// @Failure      401        {object}  model.ErrorResponse
// @Failure      409        {object}  model.ErrorResponse
// @Failure      503        {object}  model.ErrorResponse
// @Router       /deposits/{id}/complete [post]
func (h *DepositHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req model.CompleteDepositRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer clear(req.Credential) // Always clear credential from memory

	session, err := h.deposits.Complete(r.Context(), userID, mux.Vars(r)["id"], req.Context, req.Credential)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.NewDepositResponse(session))
}

// Delete handles DELETE /deposits/{id}
// @Summary      Delete pending deposit
// @Tags         deposits
// @Produce      json
// @Param        X-User-ID  header    string  true  "Caller identity"
// @Param        id         path      string  true  "Deposit ID"
// @Success      200        {object}  model.StatusResponse
// @Failure      404        {object}  model.ErrorResponse
// @Failure      409        {object}  model.ErrorResponse
// @Router       /deposits/{id} [delete]
func (h *DepositHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.deposits.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Deposit deleted"})
}
