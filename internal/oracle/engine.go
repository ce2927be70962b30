package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/oraclectl/internal/observability"
	"github.com/danmuck/oraclectl/internal/protocol/felt"
	"github.com/danmuck/oraclectl/internal/protocol/jsonrpc"
)

// Engine configuration.
type Config struct {
	Limits jsonrpc.Limits
}

// Engine defaults.
func DefaultConfig() Config {
	return Config{
		Limits: jsonrpc.DefaultLimits(),
	}
}

// FatalError marks faults after which the session is no longer trustworthy:
// transport-level decode failures and handshake violations. Dispatch-level
// faults never become fatal.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string { return e.err.Error() }
func (e *FatalError) Unwrap() error { return e.err }

func fatalf(format string, args ...any) *FatalError {
	return &FatalError{err: fmt.Errorf(format, args...)}
}

// Engine runs one oracle session: ready handshake, then a strict
// read-one/respond-once loop until shutdown or end of stream. It owns the
// counter labelling self-originated messages; identifiers supplied by the
// host are echoed verbatim.
type Engine struct {
	reader   *jsonrpc.LineReader
	writer   *jsonrpc.LineWriter
	registry *Registry
	logger   zerolog.Logger
	nextID   int64
}

func NewEngine(in io.Reader, out io.Writer, registry *Registry, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		reader:   jsonrpc.NewLineReader(in, cfg.Limits),
		writer:   jsonrpc.NewLineWriter(out),
		registry: registry,
		logger:   logger,
	}
}

// Run drives the session to completion. A nil return means graceful
// termination (shutdown request or end of input); a *FatalError means the
// session died on a protocol violation and the process should exit non-zero.
func (e *Engine) Run() error {
	if err := e.handshake(); err != nil {
		return err
	}
	return e.serve()
}

func (e *Engine) nextSendID() int64 {
	id := e.nextID
	e.nextID++
	return id
}

func (e *Engine) handshake() error {
	readyID := e.nextSendID()
	ready := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      &readyID,
		Method:  jsonrpc.MethodReady,
	}
	if err := e.send(ready); err != nil {
		return &FatalError{err: err}
	}

	line, err := e.reader.ReadLine()
	if err != nil {
		return fatalf("reading handshake reply: %w", err)
	}
	reply, err := jsonrpc.DecodeLine(line)
	if err != nil {
		return fatalf("handshake reply: %w", err)
	}
	if reply.ID == nil || *reply.ID != readyID {
		reason := fmt.Sprintf("expected message with id %d, got %s", readyID, formatID(reply.ID))
		if reply.ID != nil {
			// Best effort; the session is failing either way.
			_ = e.sendError(reply.ID, reason)
		}
		return fatalf("handshake not acknowledged: %s", reason)
	}
	e.logger.Debug().Int64("id", readyID).Msg("handshake acknowledged")
	return nil
}

func (e *Engine) serve() error {
	for {
		line, err := e.reader.ReadLine()
		if errors.Is(err, io.EOF) {
			e.logger.Debug().Msg("input stream closed")
			return nil
		}
		if err != nil {
			return &FatalError{err: err}
		}

		msg, err := jsonrpc.DecodeLine(line)
		if err != nil {
			return &FatalError{err: err}
		}

		switch msg.Method {
		case "":
			reason := fmt.Sprintf("expected method, got %s", line)
			if msg.ID != nil {
				_ = e.sendError(msg.ID, reason)
			}
			return fatalf("%s", reason)
		case jsonrpc.MethodShutdown:
			e.logger.Debug().Msg("shutdown requested")
			return nil
		case jsonrpc.MethodInvoke:
			if err := e.handleInvoke(msg); err != nil {
				return err
			}
		default:
			e.logger.Warn().Str("method", msg.Method).Msg("unknown method")
			if err := e.sendError(msg.ID, fmt.Sprintf("unknown method %q", msg.Method)); err != nil {
				return &FatalError{err: err}
			}
		}
	}
}

type invokeParams struct {
	Selector string `json:"selector"`
	Calldata []any  `json:"calldata"`
}

func (e *Engine) handleInvoke(msg jsonrpc.Message) error {
	start := time.Now()

	var params invokeParams
	if len(msg.Params) > 0 {
		dec := json.NewDecoder(bytes.NewReader(msg.Params))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			observability.RecordDispatch("", "error", time.Since(start))
			return e.respondError(msg.ID, fmt.Sprintf("invalid invoke params: %v", err))
		}
	}

	result, err := e.dispatch(params.Selector, params.Calldata)
	if err != nil {
		observability.RecordDispatch(params.Selector, "error", time.Since(start))
		e.logger.Warn().Str("selector", params.Selector).Err(err).Msg("invoke failed")
		return e.respondError(msg.ID, err.Error())
	}

	observability.RecordDispatch(params.Selector, "ok", time.Since(start))
	e.logger.Debug().
		Str("selector", params.Selector).
		Int("calldata", len(params.Calldata)).
		Int("results", len(result)).
		Dur("duration", time.Since(start)).
		Msg("invoke dispatched")
	return e.respondResult(msg.ID, result)
}

func (e *Engine) dispatch(selector string, calldata []any) ([]string, error) {
	inputs, err := felt.DecodeSlice(calldata)
	if err != nil {
		return nil, err
	}
	handler, ok := e.registry.Get(selector)
	if !ok {
		return nil, fmt.Errorf("unknown selector %q", selector)
	}
	outputs, err := handler(inputs)
	if err != nil {
		return nil, err
	}
	return felt.EncodeSlice(outputs), nil
}

// respondResult always serializes the result member, [] included; a
// succeeded invoke with zero output felts is still a success on the wire.
func (e *Engine) respondResult(id *int64, result []string) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return &FatalError{err: fmt.Errorf("encoding result: %w", err)}
	}
	msg := jsonrpc.Message{JSONRPC: jsonrpc.Version, ID: id, Result: raw}
	if err := e.send(msg); err != nil {
		return &FatalError{err: err}
	}
	return nil
}

func (e *Engine) respondError(id *int64, reason string) error {
	if err := e.sendError(id, reason); err != nil {
		return &FatalError{err: err}
	}
	return nil
}

func (e *Engine) sendError(id *int64, reason string) error {
	msg := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.ErrorObject{Message: reason},
	}
	return e.send(msg)
}

func (e *Engine) send(msg jsonrpc.Message) error {
	line, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return e.writer.WriteLine(line)
}

func formatID(id *int64) string {
	if id == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *id)
}
