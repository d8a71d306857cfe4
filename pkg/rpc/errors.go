package rpc

import (
	"errors"
	"fmt"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// TooManyResultsCode is the JSON-RPC error code providers use when an
// eth_getLogs query would exceed their per-call result cap.
const TooManyResultsCode = -32005

// ErrorKind is the closed set of failure categories surfaced by the client.
type ErrorKind int

const (
	// KindUnexpectedReturnValue: a response arrived but has the wrong shape.
	KindUnexpectedReturnValue ErrorKind = iota + 1
	// KindDecodeIssue: the value is present but fails domain parsing (bad hex).
	KindDecodeIssue
	// KindEncodeIssue: building the request or signed transaction failed locally.
	KindEncodeIssue
	// KindNoResultFound: the node has nothing for the query (e.g. no receipt yet).
	KindNoResultFound
	// KindExecutionError: the node rejected the call.
	KindExecutionError
	// KindTooManyResults: the node's pagination cap was hit.
	KindTooManyResults
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnexpectedReturnValue:
		return "unexpected return value"
	case KindDecodeIssue:
		return "decode issue"
	case KindEncodeIssue:
		return "encode issue"
	case KindNoResultFound:
		return "no result found"
	case KindExecutionError:
		return "execution error"
	case KindTooManyResults:
		return "too many results"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// ClientError is the only error type returned by Client operations.
type ClientError struct {
	Kind ErrorKind
	// Code and Message are set for KindExecutionError and KindTooManyResults.
	Code    int
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. Matching compares Kind only.
var (
	ErrUnexpectedReturnValue = &ClientError{Kind: KindUnexpectedReturnValue}
	ErrDecodeIssue           = &ClientError{Kind: KindDecodeIssue}
	ErrEncodeIssue           = &ClientError{Kind: KindEncodeIssue}
	ErrNoResultFound         = &ClientError{Kind: KindNoResultFound}
	ErrExecution             = &ClientError{Kind: KindExecutionError}
	ErrTooManyResults        = &ClientError{Kind: KindTooManyResults}
)

func (e *ClientError) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindExecutionError || (e.Kind == KindTooManyResults && e.Message != "") {
		msg = fmt.Sprintf("%s %d: %s", msg, e.Code, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ClientError of the same kind.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, cause error) *ClientError {
	return &ClientError{Kind: kind, Err: cause}
}

// ExecutionError builds the error for a node-reported JSON-RPC failure.
func ExecutionError(code int, message string) *ClientError {
	return &ClientError{Kind: KindExecutionError, Code: code, Message: message}
}

// classify maps any transport or decoding failure onto the closed taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		if rpcErr.ErrorCode() == TooManyResultsCode {
			return &ClientError{Kind: KindTooManyResults, Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		}
		return ExecutionError(rpcErr.ErrorCode(), rpcErr.Error())
	}
	return newError(KindUnexpectedReturnValue, err)
}
