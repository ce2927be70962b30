package oracle

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/oraclectl/internal/protocol/felt"
	"github.com/danmuck/oraclectl/internal/protocol/jsonrpc"
)

// runSession drives one engine over scripted input and returns the raw
// output lines alongside Run's result.
func runSession(t *testing.T, registry *Registry, input string) ([]string, error) {
	t.Helper()
	var out bytes.Buffer
	engine := NewEngine(strings.NewReader(input), &out, registry, DefaultConfig(), zerolog.Nop())
	err := engine.Run()

	raw := strings.TrimRight(out.String(), "\n")
	if raw == "" {
		return nil, err
	}
	return strings.Split(raw, "\n"), err
}

func decodeOutput(t *testing.T, line string) jsonrpc.Message {
	t.Helper()
	msg, err := jsonrpc.DecodeLine([]byte(line))
	if err != nil {
		t.Fatalf("engine emitted undecodable line %q: %v", line, err)
	}
	return msg
}

const handshakeAck = `{"jsonrpc":"2.0","id":0,"result":{}}` + "\n"

func TestHandshakeFirstMessageIsReady(t *testing.T) {
	lines, err := runSession(t, Builtins(), handshakeAck)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected only the ready line, got %d lines", len(lines))
	}
	msg := decodeOutput(t, lines[0])
	if msg.Method != jsonrpc.MethodReady {
		t.Fatalf("first emitted message must be ready, got %q", msg.Method)
	}
	if msg.ID == nil || *msg.ID != 0 {
		t.Fatalf("ready must carry the first self-generated id, got %+v", msg.ID)
	}
}

func TestHandshakeUnexpectedIDIsFatal(t *testing.T) {
	lines, err := runSession(t, Builtins(), `{"jsonrpc":"2.0","id":99,"result":{}}`+"\n")
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	// Best-effort error response correlated to the inbound id.
	last := decodeOutput(t, lines[len(lines)-1])
	if last.Error == nil || last.ID == nil || *last.ID != 99 {
		t.Fatalf("expected correlated error response, got %+v", last)
	}
}

func TestHandshakeMissingReplyIsFatal(t *testing.T) {
	_, err := runSession(t, Builtins(), "")
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("end of stream during handshake must be fatal, got %v", err)
	}
}

func TestInvokeSqrtScenario(t *testing.T) {
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":5,"method":"invoke","params":{"selector":"sqrt","calldata":["0x10"]}}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected ready + one response, got %d lines", len(lines))
	}
	want := `{"jsonrpc":"2.0","id":5,"result":["0x4"]}`
	if lines[1] != want {
		t.Fatalf("response mismatch: got=%s want=%s", lines[1], want)
	}
}

func TestInvokePanicScenario(t *testing.T) {
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":6,"method":"invoke","params":{"selector":"panic","calldata":[]}}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	msg := decodeOutput(t, lines[1])
	if msg.ID == nil || *msg.ID != 6 {
		t.Fatalf("response must echo request id, got %+v", msg.ID)
	}
	if msg.Error == nil || !strings.Contains(msg.Error.Message, "oops") {
		t.Fatalf("expected error containing oops, got %+v", msg.Error)
	}
}

func TestInvokeUnknownSelector(t *testing.T) {
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":7,"method":"invoke","params":{"selector":"bogus","calldata":[]}}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	msg := decodeOutput(t, lines[1])
	if msg.Error == nil || !strings.Contains(msg.Error.Message, "bogus") {
		t.Fatalf("expected error citing the unknown selector, got %+v", msg.Error)
	}
	if msg.ID == nil || *msg.ID != 7 {
		t.Fatalf("response must echo request id, got %+v", msg.ID)
	}
}

func TestInvokeBadCalldataKeepsSessionAlive(t *testing.T) {
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":10,"method":"invoke","params":{"selector":"sqrt","calldata":[true]}}` + "\n" +
		`{"jsonrpc":"2.0","id":11,"method":"invoke","params":{"selector":"sqrt","calldata":["0x19"]}}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("dispatch faults must not kill the session: %v", err)
	}
	bad := decodeOutput(t, lines[1])
	if bad.Error == nil || !strings.Contains(bad.Error.Message, "calldata[0]") {
		t.Fatalf("expected positional calldata error, got %+v", bad.Error)
	}
	good := decodeOutput(t, lines[2])
	if string(good.Result) != `["0x5"]` {
		t.Fatalf("session must keep serving after a dispatch fault, got %s", good.Result)
	}
}

func TestInvokeMissingParamsDefaults(t *testing.T) {
	// No params at all: selector defaults to empty, which is unknown.
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":12,"method":"invoke"}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	msg := decodeOutput(t, lines[1])
	if msg.Error == nil || !strings.Contains(msg.Error.Message, `unknown selector ""`) {
		t.Fatalf("expected unknown selector error, got %+v", msg.Error)
	}
}

func TestInvokeEmptyResultStaysOnWire(t *testing.T) {
	registry := NewRegistry()
	registry.Register("drop", func([]felt.Felt) ([]felt.Felt, error) {
		return nil, nil
	})
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":13,"method":"invoke","params":{"selector":"drop","calldata":[]}}` + "\n"
	lines, err := runSession(t, registry, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":13,"result":[]}`
	if lines[1] != want {
		t.Fatalf("empty result must be preserved: got=%s want=%s", lines[1], want)
	}
}

func TestUnknownMethodGetsErrorResponse(t *testing.T) {
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":20,"method":"frobnicate"}` + "\n" +
		`{"jsonrpc":"2.0","id":21,"method":"invoke","params":{"selector":"sqrt","calldata":[4]}}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("unknown methods are recoverable: %v", err)
	}
	msg := decodeOutput(t, lines[1])
	if msg.Error == nil || !strings.Contains(msg.Error.Message, `unknown method "frobnicate"`) {
		t.Fatalf("expected unknown method error, got %+v", msg.Error)
	}
	next := decodeOutput(t, lines[2])
	if string(next.Result) != `["0x2"]` {
		t.Fatalf("session must continue after unknown method, got %+v", next)
	}
}

func TestMissingMethodIsFatalWithCorrelatedError(t *testing.T) {
	input := handshakeAck + `{"jsonrpc":"2.0","id":30}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("missing method must be fatal, got %v", err)
	}
	last := decodeOutput(t, lines[len(lines)-1])
	if last.Error == nil || last.ID == nil || *last.ID != 30 {
		t.Fatalf("expected best-effort error response to id 30, got %+v", last)
	}
}

func TestMalformedLineIsFatal(t *testing.T) {
	input := handshakeAck + "not json\n"
	_, err := runSession(t, Builtins(), input)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("malformed line must be fatal, got %v", err)
	}
}

func TestShutdownProducesNoResponse(t *testing.T) {
	input := handshakeAck + `{"jsonrpc":"2.0","id":8,"method":"shutdown"}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("shutdown is graceful: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("shutdown must not be answered, got %d lines", len(lines))
	}
}

func TestShutdownWithoutIDAccepted(t *testing.T) {
	input := handshakeAck + `{"jsonrpc":"2.0","method":"shutdown"}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("notification-style shutdown is graceful: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("shutdown must not be answered, got %d lines", len(lines))
	}
}

func TestEndOfInputIsGraceful(t *testing.T) {
	lines, err := runSession(t, Builtins(), handshakeAck)
	if err != nil {
		t.Fatalf("end of input is graceful: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("no output expected after end of input, got %d lines", len(lines))
	}
}

func TestResponseCorrelationAcrossRequests(t *testing.T) {
	input := handshakeAck +
		`{"jsonrpc":"2.0","id":100,"method":"invoke","params":{"selector":"sqrt","calldata":["0x51"]}}` + "\n" +
		`{"jsonrpc":"2.0","id":7,"method":"invoke","params":{"selector":"panic","calldata":[]}}` + "\n" +
		`{"jsonrpc":"2.0","id":42,"method":"invoke","params":{"selector":"sqrt","calldata":[144]}}` + "\n"
	lines, err := runSession(t, Builtins(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	wantIDs := []int64{100, 7, 42}
	if len(lines) != len(wantIDs)+1 {
		t.Fatalf("expected one response per request, got %d lines", len(lines))
	}
	for i, want := range wantIDs {
		msg := decodeOutput(t, lines[i+1])
		if msg.ID == nil || *msg.ID != want {
			t.Fatalf("response %d must echo id %d, got %+v", i, want, msg.ID)
		}
	}
}
