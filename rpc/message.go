package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

const protocolVersion = "2.0"

// cancelMethod is the notification method name used for remote-side
// cancellation propagation.
const cancelMethod = "$/cancelRequest"

// ID is a JSON-RPC 2.0 request id: a JSON number or string, never both. A
// numeric id is held as uint64, so a negative or fractional numeric id does
// not decode.
type ID struct {
	Num      uint64
	Str      string
	IsString bool
}

func (id ID) String() string {
	if id.IsString {
		return strconv.Quote(id.Str)
	}
	return strconv.FormatUint(id.Num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsString {
		return json.Marshal(id.Str)
	}
	return json.Marshal(id.Num)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{Num: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rpc: id must be a non-negative integer or a string: %w", err)
	}
	*id = ID{Str: s, IsString: true}
	return nil
}

// wireError is the JSON-RPC 2.0 error object.
type wireError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// errorData is the structured shape carried in wireError.Data for a remote
// execution failure: the remote exception's stack trace and platform code.
// Both fields are always present (possibly null), matching spec.md §4.1/§7.
type errorData struct {
	Stack *string `json:"stack"`
	Code  *string `json:"code"`
}

func marshalErrorData(d errorData) json.RawMessage {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return raw
}

// cancelRequestParams is the payload of a $/cancelRequest notification.
type cancelRequestParams struct {
	ID ID `json:"id"`
}

// message is the wire envelope. It covers all four message shapes (request,
// notification, success response, error response) in one struct so the
// dispatcher can classify a decoded message by field presence alone, the way
// coder-acp-go-sdk's anyMessage does.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

// decodeMessage parses one frame body into a message, preserving the
// distinction between an absent "id" field (notification) and a present one
// (request/response) — a plain struct unmarshal with a *ID field already
// makes that distinction since encoding/json leaves a nil pointer for an
// absent key, so no map-probing is needed here (unlike stefanvanburen-cells's
// Request.UnmarshalJSON, which probes because it also needs to distinguish
// missing "method" from a present empty one — we don't, since an empty
// method name is never valid).
func decodeMessage(body []byte) (*message, error) {
	trimmed := bytes.TrimSpace(body)
	var m message
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("rpc: malformed message: %w", err)
	}
	return &m, nil
}

func inboundKey(id ID) string {
	if id.IsString {
		return "s:" + id.Str
	}
	return "n:" + strconv.FormatUint(id.Num, 10)
}
