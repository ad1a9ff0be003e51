package clients

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vitwit/chainrpc/types"
)

var (
	reRevert                = regexp.MustCompile(`(?i)revert`)
	reInsufficientFunds     = regexp.MustCompile(`(?i)insufficient funds`)
	reInsufficientIntrinsic = regexp.MustCompile(`(?i)insufficient funds|base fee exceeds gas limit`)
	reUserDenied            = regexp.MustCompile(`(?i)user denied|ethers-user-denied`)
	reNonce                 = regexp.MustCompile(`(?i)nonce`)
	reTooLow                = regexp.MustCompile(`(?i)too low`)
	reReplacement           = regexp.MustCompile(`(?i)replacement transaction`)
	reUnderpriced           = regexp.MustCompile(`(?i)underpriced`)
	reReplayProtected       = regexp.MustCompile(`(?i)only replay-protected`)
	reMethodMissing         = regexp.MustCompile(`(?i)the method .* does not exist`)
	reHexData               = regexp.MustCompile(`(?i)^0x[0-9a-f]*$`)
)

// actionByMethod names the user-facing action behind a signing or account
// access method.
var actionByMethod = map[string]string{
	"eth_sign":               "signMessage",
	"personal_sign":          "signMessage",
	"eth_signTypedData_v4":   "signTypedData",
	"eth_signTransaction":    "signTransaction",
	"eth_sendTransaction":    "sendTransaction",
	"eth_requestAccounts":    "requestAccess",
	"wallet_requestAccounts": "requestAccess",
}

// Revert selectors.
const (
	errorSelector = "0x08c379a0"
	panicSelector = "0x4e487b71"
)

// rpcErrorValue turns an RPC error into a generic JSON value so nested
// payloads can be searched.
func rpcErrorValue(rpcErr *types.RPCError) map[string]any {
	v := map[string]any{
		"code":    float64(rpcErr.Code),
		"message": rpcErr.Message,
	}
	if len(rpcErr.Data) > 0 {
		var data any
		if err := json.Unmarshal(rpcErr.Data, &data); err == nil {
			v["data"] = data
		}
	}
	return v
}

type revertData struct {
	Message string
	Data    string
}

// spelunkData searches value depth first for an object whose message
// mentions "reverted" and whose data is hex. Strings are parsed as JSON and
// searched too, since some nodes double-encode their error bodies. Object
// keys are visited in sorted order.
func spelunkData(value any) *revertData {
	switch v := value.(type) {
	case nil:
		return nil

	case map[string]any:
		msg, okMsg := v["message"].(string)
		data, okData := v["data"].(string)
		if okMsg && okData && strings.Contains(msg, "reverted") && reHexData.MatchString(data) {
			return &revertData{Message: msg, Data: data}
		}
		for _, key := range sortedKeys(v) {
			if found := spelunkData(v[key]); found != nil {
				return found
			}
		}

	case []any:
		for _, item := range v {
			if found := spelunkData(item); found != nil {
				return found
			}
		}

	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if _, isString := parsed.(string); !isString {
				return spelunkData(parsed)
			}
		}
	}
	return nil
}

// spelunkMessage collects every message string nested inside value.
func spelunkMessage(value any) []string {
	var out []string
	collectMessages(value, &out)
	return out
}

func collectMessages(value any, out *[]string) {
	switch v := value.(type) {
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			*out = append(*out, msg)
		}
		for _, key := range sortedKeys(v) {
			collectMessages(v[key], out)
		}

	case []any:
		for _, item := range v {
			collectMessages(item, out)
		}

	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			if _, isString := parsed.(string); !isString {
				collectMessages(parsed, out)
			}
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// firstParam returns the first positional parameter of payload, which is the
// transaction for every transaction-carrying method.
func firstParam(payload *types.Payload) any {
	if params, ok := payload.Params.([]any); ok && len(params) > 0 {
		return params[0]
	}
	return nil
}

// callException builds a CALL_EXCEPTION for action from the revert payload,
// decoding Error(string) and Panic(uint256) reasons.
func callException(action string, payload *types.Payload, rpcErr *types.RPCError, revert *revertData) *types.Error {
	e := &types.Error{
		Code:        types.ErrCallException,
		Action:      action,
		Transaction: firstParam(payload),
		Payload:     payload,
		RPCError:    rpcErr,
	}

	if revert == nil {
		e.Message = "missing revert data"
		return e
	}

	e.RevertData = revert.Data
	data, err := hexutil.Decode(revert.Data)
	if err != nil || len(data) == 0 {
		e.Message = "missing revert data"
		return e
	}

	selector := strings.ToLower(revert.Data)
	if len(selector) > 10 {
		selector = selector[:10]
	}
	switch selector {
	case errorSelector, panicSelector:
		if reason, err := abi.UnpackRevert(data); err == nil {
			e.Reason = reason
			e.Message = "execution reverted: " + reason
			return e
		}
	}
	e.Message = "execution reverted (unknown custom error)"
	return e
}

// classifyEVMError is the eth_* classification shared by the EVM and Tron
// adapters.
func classifyEVMError(payload *types.Payload, rpcErr *types.RPCError) error {
	method := payload.Method

	if method == "eth_estimateGas" && rpcErr.Message != "" {
		if !reRevert.MatchString(rpcErr.Message) && reInsufficientFunds.MatchString(rpcErr.Message) {
			return &types.Error{
				Code:        types.ErrInsufficientFunds,
				Message:     "insufficient funds",
				Transaction: firstParam(payload),
				Payload:     payload,
				RPCError:    rpcErr,
			}
		}
	}

	value := rpcErrorValue(rpcErr)

	// Only call and estimateGas can carry contract-defined text, so the
	// message patterns below are safe for everything else.
	if method == "eth_call" || method == "eth_estimateGas" {
		action := "call"
		if method == "eth_estimateGas" {
			action = "estimateGas"
		}
		return callException(action, payload, rpcErr, spelunkData(value))
	}

	message := strings.Join(spelunkMessage(value), "\n")

	if reUserDenied.MatchString(rpcErr.Message) {
		action, ok := actionByMethod[method]
		if !ok {
			action = "unknown"
		}
		return &types.Error{
			Code:     types.ErrActionRejected,
			Message:  "user rejected action",
			Action:   action,
			Reason:   "rejected",
			Payload:  payload,
			RPCError: rpcErr,
		}
	}

	isSend := method == "eth_sendRawTransaction" || method == "eth_sendTransaction"
	if isSend {
		if reInsufficientIntrinsic.MatchString(message) {
			return &types.Error{
				Code:        types.ErrInsufficientFunds,
				Message:     "insufficient funds for intrinsic transaction cost",
				Transaction: firstParam(payload),
				Payload:     payload,
				RPCError:    rpcErr,
			}
		}
	}

	if reNonce.MatchString(message) && reTooLow.MatchString(message) {
		return &types.Error{
			Code:        types.ErrNonceExpired,
			Message:     "nonce has already been used",
			Transaction: firstParam(payload),
			Payload:     payload,
			RPCError:    rpcErr,
		}
	}

	if reReplacement.MatchString(message) && reUnderpriced.MatchString(message) {
		return &types.Error{
			Code:        types.ErrReplacementUnderpriced,
			Message:     "replacement fee too low",
			Transaction: firstParam(payload),
			Payload:     payload,
			RPCError:    rpcErr,
		}
	}

	if isSend && reReplayProtected.MatchString(message) {
		return &types.Error{
			Code:        types.ErrUnsupportedOperation,
			Message:     "legacy pre-eip-155 transactions not supported",
			Operation:   method,
			Transaction: firstParam(payload),
			Payload:     payload,
			RPCError:    rpcErr,
		}
	}

	if reMethodMissing.MatchString(message) {
		return &types.Error{
			Code:      types.ErrUnsupportedOperation,
			Message:   "unsupported operation",
			Operation: method,
			Payload:   payload,
			RPCError:  rpcErr,
		}
	}

	return unknownError(payload, rpcErr)
}

func unknownError(payload *types.Payload, rpcErr *types.RPCError) *types.Error {
	return &types.Error{
		Code:     types.ErrUnknown,
		Message:  "could not coalesce error",
		Payload:  payload,
		RPCError: rpcErr,
		Err:      rpcErr,
	}
}
