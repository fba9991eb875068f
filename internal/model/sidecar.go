package model

import "time"

// SidecarResult is embedded in every sidecar response that reports a business outcome.
type SidecarResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Outcome returns the business result of a call.
func (r SidecarResult) Outcome() (bool, string) {
	return r.Success, r.Error
}

// SidecarDepositRequest is the body of POST /deposit.
type SidecarDepositRequest struct {
	UserPrivateKey string `json:"user_private_key"`
	AmountLamports uint64 `json:"amount_lamports"`
}

// SidecarDepositResponse is the reply of POST /deposit.
type SidecarDepositResponse struct {
	SidecarResult
	TxSignature string `json:"tx_signature,omitempty"`
	UserPubkey  string `json:"user_pubkey,omitempty"`
}

// SidecarWithdrawRequest is the body of POST /withdraw. A nil TargetCurrency withdraws SOL.
type SidecarWithdrawRequest struct {
	UserPrivateKey string  `json:"user_private_key"`
	AmountLamports uint64  `json:"amount_lamports"`
	TargetCurrency *string `json:"target_currency,omitempty"`
}

// SidecarWithdrawResponse is the reply of POST /withdraw.
type SidecarWithdrawResponse struct {
	SidecarResult
	TxSignature     string `json:"tx_signature,omitempty"`
	FeeLamports     uint64 `json:"fee_lamports"`
	AmountLamports  uint64 `json:"amount_lamports"`
	IsPartial       bool   `json:"is_partial"`
	Currency        string `json:"currency,omitempty"`
	SwapTxSignature string `json:"swap_tx_signature,omitempty"`
	SwapFailed      bool   `json:"swap_failed,omitempty"`
	SwapError       string `json:"swap_error,omitempty"`
}

// SidecarSwapAndDepositRequest is the body of POST /deposit/swap-and-deposit.
type SidecarSwapAndDepositRequest struct {
	UserPrivateKey string `json:"user_private_key"`
	InputMint      string `json:"input_mint"`
	Amount         uint64 `json:"amount"`
}

// SidecarSwapAndDepositResponse is the reply of POST /deposit/swap-and-deposit.
type SidecarSwapAndDepositResponse struct {
	SidecarResult
	SwapTxSignature    string `json:"swap_tx_signature,omitempty"`
	DepositTxSignature string `json:"deposit_tx_signature,omitempty"`
	SOLAmountLamports  uint64 `json:"sol_amount_lamports"`
	InputMint          string `json:"input_mint,omitempty"`
	InputAmount        uint64 `json:"input_amount"`
	UserPubkey         string `json:"user_pubkey,omitempty"`
}

// SidecarBalanceRequest is the body of POST /withdraw/balance.
type SidecarBalanceRequest struct {
	UserPrivateKey string `json:"user_private_key"`
}

// SidecarBalanceResponse is the reply of POST /withdraw/balance.
type SidecarBalanceResponse struct {
	BalanceLamports uint64  `json:"balance_lamports"`
	BalanceSOL      float64 `json:"balance_sol"`
	UserPubkey      string  `json:"user_pubkey,omitempty"`
}

// SidecarBatchSwapRequest is the body of POST /batch/swap.
type SidecarBatchSwapRequest struct {
	PrivateKey     string `json:"private_key"`
	AmountLamports uint64 `json:"amount_lamports"`
	OutputCurrency string `json:"output_currency"`
}

// SidecarBatchSwapResponse is the reply of POST /batch/swap.
type SidecarBatchSwapResponse struct {
	SidecarResult
	TxSignature    string `json:"tx_signature,omitempty"`
	InputLamports  uint64 `json:"input_lamports"`
	OutputAmount   uint64 `json:"output_amount"`
	OutputCurrency string `json:"output_currency,omitempty"`
}

// SidecarTransferRequest is the body of POST /transfer/sol.
type SidecarTransferRequest struct {
	UserPrivateKey string `json:"user_private_key"`
	Destination    string `json:"destination"`
	AmountLamports uint64 `json:"amount_lamports"`
}

// SidecarTransferResponse is the reply of POST /transfer/sol.
type SidecarTransferResponse struct {
	SidecarResult
	TxSignature string `json:"tx_signature,omitempty"`
}

// SidecarVerifyTransferRequest is the body of POST /verify/sol-transfer.
type SidecarVerifyTransferRequest struct {
	Signature           string  `json:"signature"`
	ExpectedSource      string  `json:"expected_source"`
	ExpectedDestination string  `json:"expected_destination"`
	MinLamports         *uint64 `json:"min_lamports,omitempty"`
}

// SidecarVerifyTransferResponse is the reply of POST /verify/sol-transfer.
type SidecarVerifyTransferResponse struct {
	OK               bool   `json:"ok"`
	Signature        string `json:"signature,omitempty"`
	ObservedLamports uint64 `json:"observed_lamports"`
	Source           string `json:"source,omitempty"`
	Destination      string `json:"destination,omitempty"`
	Error            string `json:"error,omitempty"`
}

// SidecarHealthChecks is the checks object of GET /health.
type SidecarHealthChecks struct {
	RPCConnected bool `json:"rpc_connected"`
	SDKLoaded    bool `json:"sdk_loaded"`
}

// SidecarHealthResponse is the reply of GET /health.
type SidecarHealthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Network   string              `json:"network,omitempty"`
	Checks    SidecarHealthChecks `json:"checks"`
}

// Healthy reports whether the sidecar and its RPC link are up.
func (h SidecarHealthResponse) Healthy() bool {
	return h.Status == "ok" && h.Checks.RPCConnected
}
