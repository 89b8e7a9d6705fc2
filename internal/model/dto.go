package model

import "time"

// OrderPayload is the wire form of a solver order. Numeric fields are decimal
// strings so uint256 values survive JSON.
type OrderPayload struct {
	Signer            string `json:"signer" binding:"required"`
	Sequence          string `json:"sequence" binding:"required"`
	Expiry            string `json:"expiry" binding:"required"` // unix seconds
	Amount            string `json:"amount" binding:"required"` // base units
	ActionsCommitment string `json:"actions_commitment" binding:"required"`
}

// SubmitOrderRequest represents the incoming JSON body of POST /v1/orders
type SubmitOrderRequest struct {
	Order     OrderPayload `json:"order" binding:"required"`
	Signature string       `json:"signature" binding:"required"`
	Value     string       `json:"value" binding:"required"` // base units attached to the claim
}

type SettlementReceipt struct {
	ID                   string    `json:"id"`
	Signer               string    `json:"signer"`
	Digest               string    `json:"digest"`
	Sequence             uint64    `json:"sequence"`
	Amount               string    `json:"amount"`
	AmountDisplay        string    `json:"amount_display"`
	SolverShare          string    `json:"solver_share"`
	SolverShareDisplay   string    `json:"solver_share_display"`
	TreasuryShare        string    `json:"treasury_share"`
	TreasuryShareDisplay string    `json:"treasury_share_display"`
	NextSequence         uint64    `json:"next_sequence"`
	SettledAt            time.Time `json:"settled_at"`
}

type DigestResponse struct {
	Digest    string      `json:"digest"`
	TypedData interface{} `json:"typed_data"`
}

type SettledResponse struct {
	Digest  string `json:"digest"`
	Settled bool   `json:"settled"`
}

type WithdrawalResponse struct {
	Identity      string `json:"identity"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amount_display"`
}

type RescueRequest struct {
	Destination string `json:"destination" binding:"required"`
	Amount      string `json:"amount" binding:"required"` // base units
}

type RescueResponse struct {
	Destination   string `json:"destination"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Reference     string `json:"reference"`
}

type ConfigureHookRequest struct {
	Type            string `json:"type" binding:"required,oneof=none risk contract"`
	ContractAddress string `json:"contract_address,omitempty"`
}

type HookResponse struct {
	Hook     string `json:"hook"`
	Contract string `json:"contract,omitempty"`
}

type BalanceResponse struct {
	Identity      string `json:"identity"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amount_display"`
}

type SequenceResponse struct {
	Identity     string `json:"identity"`
	NextSequence uint64 `json:"next_sequence"`
}

type ReserveResponse struct {
	Owner               string `json:"owner"`
	Treasury            string `json:"treasury"`
	Hook                string `json:"hook"`
	Reserve             string `json:"reserve"`
	ReserveDisplay      string `json:"reserve_display"`
	GeneralFunds        string `json:"general_funds"`
	GeneralFundsDisplay string `json:"general_funds_display"`
	SplitNumerator      int64  `json:"split_numerator"`
	SplitDenominator    int64  `json:"split_denominator"`
	ChainID             int64  `json:"chain_id"`
	VerifyingContract   string `json:"verifying_contract"`
}
