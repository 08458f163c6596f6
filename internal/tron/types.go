package tron

import "encoding/json"

// Transaction is the node-built transaction envelope. RawData is kept
// opaque: it is round-tripped back to the node on broadcast unchanged.
type Transaction struct {
	TxID       string          `json:"txID"`
	RawData    json.RawMessage `json:"raw_data"`
	RawDataHex string          `json:"raw_data_hex"`
	Visible    bool            `json:"visible,omitempty"`
	Signature  []string        `json:"signature,omitempty"`
}

// TokenInfo describes a TRC20 contract.
type TokenInfo struct {
	ContractAddress string
	Name            string
	Symbol          string
	Decimals        int32
}

type accountResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

type createTransactionRequest struct {
	OwnerAddress string `json:"owner_address"`
	ToAddress    string `json:"to_address"`
	Amount       int64  `json:"amount"`
	Visible      bool   `json:"visible"`
}

type triggerRequest struct {
	OwnerAddress     string `json:"owner_address"`
	ContractAddress  string `json:"contract_address"`
	FunctionSelector string `json:"function_selector"`
	Parameter        string `json:"parameter"`
	FeeLimit         int64  `json:"fee_limit,omitempty"`
	CallValue        int64  `json:"call_value"`
	Visible          bool   `json:"visible"`
}

type triggerResponse struct {
	Result struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"result"`
	ConstantResult []string     `json:"constant_result"`
	Transaction    *Transaction `json:"transaction"`
}

type broadcastResponse struct {
	Result  bool   `json:"result"`
	TxID    string `json:"txid"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type getAccountRequest struct {
	Address string `json:"address"`
	Visible bool   `json:"visible"`
}

type txInfoRequest struct {
	Value string `json:"value"`
}

type txInfoResponse struct {
	ID          string `json:"id"`
	BlockNumber int64  `json:"blockNumber"`
	Receipt     struct {
		Result string `json:"result"`
	} `json:"receipt"`
}

type nowBlockResponse struct {
	BlockHeader struct {
		RawData struct {
			Number int64 `json:"number"`
		} `json:"raw_data"`
	} `json:"block_header"`
}
