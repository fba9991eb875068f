package handler

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/AlexZinkM/split-custody/internal/apperr"
	"github.com/AlexZinkM/split-custody/internal/model"
	"github.com/AlexZinkM/split-custody/solana"

	"go.uber.org/zap"
)

// WalletService is the custody surface exposed over HTTP.
type WalletService interface {
	Enroll(ctx context.Context, userID string, req *model.EnrollRequest) (*model.WalletMaterial, error)
	RotateCredential(ctx context.Context, userID string, req *model.RotateRequest) error
	Sign(ctx context.Context, userID, walletContext string, credential, rawTx []byte) (*solana.SignedTransaction, error)
	DeleteWallet(ctx context.Context, userID, walletContext string) error
}

// WalletHandler serves the /wallets endpoints.
type WalletHandler struct {
	wallets WalletService
	logger  *zap.Logger
}

func NewWalletHandler(wallets WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logger.Named("http")}
}

// Enroll handles POST /wallets
// @Summary      Enroll split-key wallet
// @Description  Stores encrypted Share A and Share B for the caller. Share B is never returned.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header    string               true  "Caller identity"
// @Param        request    body      model.EnrollRequest  true  "Wallet material"
// @Success      201        {object}  model.WalletResponse
// @Failure      400        {object}  model.ErrorResponse
// @Failure      409        {object}  model.ErrorResponse
// @Router       /wallets [post]
func (h *WalletHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req model.EnrollRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer clear(req.ShareB)

	wallet, err := h.wallets.Enroll(r.Context(), userID, &req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.NewWalletResponse(wallet))
}

// Rotate handles POST /wallets/rotate
// @Summary      Rotate credential
// @Description  Replaces Share A and its KDF parameters. Public key and Share B are unchanged.
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header    string               true  "Caller identity"
// @Param        request    body      model.RotateRequest  true  "New Share A"
// @Success      200        {object}  model.StatusResponse
// @Failure      400        {object}  model.ErrorResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /wallets/rotate [post]
func (h *WalletHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req model.RotateRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.wallets.RotateCredential(r.Context(), userID, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Credential rotated"})
}

// Sign handles POST /wallets/sign
// @Summary      Sign transaction
// @Description  Reconstructs the wallet key with the credential and signs a base64 wire transaction
// @Tags         wallets
// @Accept       json
// @Produce      json
// @Param        X-User-ID  header    string             true  "Caller identity"
// @Param        request    body      model.SignRequest  true  "Credential and transaction"
// @Success      200        {object}  model.SignResponse
// @Failure      400        {object}  model.ErrorResponse
// @Failure      401        {object}  model.ErrorResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /wallets/sign [post]
func (h *WalletHandler) Sign(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	var req model.SignRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer clear(req.Credential) // Always clear credential from memory

	raw, err := base64.StdEncoding.DecodeString(req.Transaction)
	if err != nil {
		writeError(w, h.logger, r, apperr.Validation("transaction must be base64"))
		return
	}

	signed, err := h.wallets.Sign(r.Context(), userID, req.Context, req.Credential, raw)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SignResponse{
		Transaction: base64.StdEncoding.EncodeToString(signed.Raw),
		Signature:   signed.Signature,
	})
}

// Delete handles DELETE /wallets
// @Summary      Delete wallet
// @Description  Removes the wallet for the given context and records the deletion
// @Tags         wallets
// @Produce      json
// @Param        X-User-ID  header    string  true   "Caller identity"
// @Param        context    query     string  false  "Wallet context (default primary)"
// @Success      200        {object}  model.StatusResponse
// @Failure      404        {object}  model.ErrorResponse
// @Router       /wallets [delete]
func (h *WalletHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if err := h.wallets.DeleteWallet(r.Context(), userID, r.URL.Query().Get("context")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.StatusResponse{Success: true, Message: "Wallet deleted"})
}
