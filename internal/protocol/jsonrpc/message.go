package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only protocol version accepted on the wire.
const Version = "2.0"

// Method names from the oracle lifecycle contract.
const (
	MethodReady    = "ready"
	MethodInvoke   = "invoke"
	MethodShutdown = "shutdown"
)

var (
	ErrNotAnObject     = errors.New("jsonrpc: top-level value is not an object")
	ErrBadVersion      = errors.New("jsonrpc: missing or unsupported jsonrpc version")
	ErrLineTooLong     = errors.New("jsonrpc: line exceeds size limit")
	ErrResultAndError  = errors.New("jsonrpc: message carries both result and error")
	ErrEmbeddedNewline = errors.New("jsonrpc: line contains embedded newline")
)

// ErrorObject is the error member of a failure response.
type ErrorObject struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// Message is one JSON-RPC value on the wire. A message carrying Method is a
// request or notification; one carrying Result or Error is a response.
// Payloads stay raw here; decoding them is the caller's concern.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// IsResponse reports whether the message is a success or failure response.
func (m Message) IsResponse() bool {
	return len(m.Result) > 0 || m.Error != nil
}

// EncodeMessage serializes a message to a single line of JSON text without
// the trailing newline. Absent optional fields are omitted entirely.
func EncodeMessage(msg Message) ([]byte, error) {
	if len(msg.Result) > 0 && msg.Error != nil {
		return nil, ErrResultAndError
	}
	if msg.JSONRPC == "" {
		msg.JSONRPC = Version
	}
	line, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: encode message: %w", err)
	}
	return line, nil
}

// DecodeLine parses one line as a JSON-RPC message. The top-level value must
// be a JSON object and the jsonrpc field must be exactly Version.
func DecodeLine(line []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var probe any
	if err := dec.Decode(&probe); err != nil {
		return Message{}, fmt.Errorf("jsonrpc: malformed line: %w", err)
	}
	obj, ok := probe.(map[string]any)
	if !ok {
		return Message{}, ErrNotAnObject
	}
	if v, _ := obj["jsonrpc"].(string); v != Version {
		return Message{}, fmt.Errorf("%w: got %v", ErrBadVersion, obj["jsonrpc"])
	}
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, fmt.Errorf("jsonrpc: malformed line: %w", err)
	}
	if len(msg.Result) > 0 && msg.Error != nil {
		return Message{}, ErrResultAndError
	}
	return msg, nil
}
