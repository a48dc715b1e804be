package rpc

import (
	stderrors "errors"

	"lsgw/internal/errors"
	"lsgw/internal/jsonrpc"
)

// errorData is the data member of gateway error responses.
type errorData struct {
	Code           errors.ErrorCode   `json:"code"`
	Backend        string             `json:"backend,omitempty"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggestedFixes,omitempty"`
}

// toRPCError maps handler errors onto JSON-RPC errors. Gateway errors use
// errors.RPCErrorCode with the gateway code in data.code.
func toRPCError(err error) *jsonrpc.Error {
	var ge *errors.GatewayError
	if stderrors.As(err, &ge) {
		return jsonrpc.NewError(errors.RPCErrorCode, ge.Message, errorData{
			Code:           ge.Code,
			Backend:        ge.Backend,
			Details:        ge.Details,
			SuggestedFixes: ge.SuggestedFixes,
		})
	}
	var rpcErr *jsonrpc.Error
	if stderrors.As(err, &rpcErr) {
		return rpcErr
	}
	return jsonrpc.NewError(jsonrpc.InternalError, err.Error(), nil)
}
