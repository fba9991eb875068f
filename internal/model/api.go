package model

import (
	"time"

	"github.com/AlexZinkM/split-custody/internal/common"
)

// EnrollRequest represents request for POST /wallets
type EnrollRequest struct {
	Context          string     `json:"context"`
	PublicKey        string     `json:"publicKey"`
	AuthMethod       AuthMethod `json:"authMethod"`
	ShareACiphertext []byte     `json:"shareACiphertext"`
	ShareANonce      []byte     `json:"shareANonce"`
	ShareASalt       []byte     `json:"shareASalt,omitempty"`
	KDF              *KDFParams `json:"kdf,omitempty"`
	PRFSalt          []byte     `json:"prfSalt,omitempty"`
	PIN              string     `json:"pin,omitempty"`
	ShareB           []byte     `json:"shareB"`
	APIKeyID         string     `json:"apiKeyId,omitempty"`
}

// RotateRequest represents request for POST /wallets/rotate
type RotateRequest struct {
	Context          string     `json:"context"`
	AuthMethod       AuthMethod `json:"authMethod"`
	ShareACiphertext []byte     `json:"shareACiphertext"`
	ShareANonce      []byte     `json:"shareANonce"`
	ShareASalt       []byte     `json:"shareASalt,omitempty"`
	KDF              *KDFParams `json:"kdf,omitempty"`
	PRFSalt          []byte     `json:"prfSalt,omitempty"`
	PIN              string     `json:"pin,omitempty"`
	APIKeyID         string     `json:"apiKeyId,omitempty"`
}

// SignRequest represents request for POST /wallets/sign
type SignRequest struct {
	Context     string `json:"context"`
	Credential  []byte `json:"credential"`
	Transaction string `json:"transaction"` // base64 wire transaction
}

// SignResponse represents response for POST /wallets/sign
type SignResponse struct {
	Transaction string `json:"transaction"`
	Signature   string `json:"signature"`
}

// WalletResponse describes an enrolled wallet without share material.
type WalletResponse struct {
	UserID        string     `json:"userId"`
	Context       string     `json:"context"`
	PublicKey     string     `json:"publicKey"`
	AuthMethod    AuthMethod `json:"authMethod"`
	SchemeVersion int        `json:"schemeVersion"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewWalletResponse builds the public view of w.
func NewWalletResponse(w *WalletMaterial) WalletResponse {
	return WalletResponse{
		UserID:        w.UserID,
		Context:       w.Context,
		PublicKey:     w.PublicKey,
		AuthMethod:    w.AuthMethod,
		SchemeVersion: w.SchemeVersion,
		CreatedAt:     w.CreatedAt,
	}
}

// CreateDepositRequest represents request for POST /deposits
type CreateDepositRequest struct {
	WalletAddress string      `json:"walletAddress"`
	WalletKind    WalletKind  `json:"walletKind"`
	DepositKind   DepositKind `json:"depositKind"`
	Currency      string      `json:"currency"`
	InputMint     string      `json:"inputMint,omitempty"`
}

// DetectDepositRequest represents request for POST /deposits/{id}/detect
type DetectDepositRequest struct {
	Signature      string `json:"signature"`
	AmountLamports uint64 `json:"amountLamports"`
	// SourceAddress, when set, makes the server verify the transfer with the sidecar.
	SourceAddress string `json:"sourceAddress,omitempty"`
}

// CompleteDepositRequest represents request for POST /deposits/{id}/complete
type CompleteDepositRequest struct {
	Context    string `json:"context"`
	Credential []byte `json:"credential"`
}

// DepositResponse represents a deposit session as returned to the owner.
type DepositResponse struct {
	ID                      string        `json:"id"`
	Status                  DepositStatus `json:"status"`
	WalletAddress           string        `json:"walletAddress"`
	DepositKind             DepositKind   `json:"depositKind"`
	Currency                string        `json:"currency"`
	DetectedSignature       string        `json:"detectedSignature,omitempty"`
	DepositAmountLamports   uint64        `json:"depositAmountLamports"`
	WithdrawnAmountLamports uint64        `json:"withdrawnAmountLamports"`
	RemainingLamports       uint64        `json:"remainingLamports"`
	DepositSOL              string        `json:"depositSol"`
	WithdrawalAvailableAt   *time.Time    `json:"withdrawalAvailableAt,omitempty"`
	ExpiresAt               time.Time     `json:"expiresAt"`
	BatchID                 string        `json:"batchId,omitempty"`
	QR                      string        `json:"qr,omitempty"`
}

// NewDepositResponse builds the owner view of d. Sealed key material is never included.
func NewDepositResponse(d *DepositSession) DepositResponse {
	return DepositResponse{
		ID:                      d.ID,
		Status:                  d.Status,
		WalletAddress:           d.WalletAddress,
		DepositKind:             d.DepositKind,
		Currency:                d.Currency,
		DetectedSignature:       d.DetectedSignature,
		DepositAmountLamports:   d.DepositAmountLamports,
		WithdrawnAmountLamports: d.WithdrawnAmountLamports,
		RemainingLamports:       d.RemainingLamports(),
		DepositSOL:              common.LamportsToSOL(d.DepositAmountLamports),
		WithdrawalAvailableAt:   d.WithdrawalAvailableAt,
		ExpiresAt:               d.ExpiresAt,
		BatchID:                 d.BatchID,
	}
}

// StatusResponse is returned by operations without a resource body.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse represents response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Sidecar string `json:"sidecar"`
}
