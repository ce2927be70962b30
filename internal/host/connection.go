// Package host drives an oracle from the other side of the pipe: it spawns
// the process, acknowledges the ready handshake and issues invoke calls.
package host

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/oraclectl/internal/protocol/felt"
	"github.com/danmuck/oraclectl/internal/protocol/jsonrpc"
)

const terminateGrace = 5 * time.Second

var (
	ErrEmptyCommand = errors.New("host: empty oracle command")
	ErrMisbehaving  = errors.New("host: oracle process is misbehaving")
)

// Connection is one live session with an oracle. Calls are strictly
// sequential; the zero identifier counter labels host-originated requests.
type Connection struct {
	reader *jsonrpc.LineReader
	writer *jsonrpc.LineWriter
	peek   *bufio.Reader
	input  io.Closer
	wait   func() error
	kill   func() error
	logger zerolog.Logger
	nextID int64
	closed bool
}

// Connect spawns an oracle subprocess and performs the ready handshake.
// The oracle's stderr passes through to this process's stderr.
func Connect(command string, logger zerolog.Logger) (*Connection, error) {
	words := strings.Fields(command)
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(words[0], words[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("host: open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("host: open stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("host: failed to spawn oracle process: %w", err)
	}

	c := newConnection(stdout, stdin, logger)
	c.wait = cmd.Wait
	c.kill = cmd.Process.Kill

	if err := c.initialize(); err != nil {
		c.terminate()
		return nil, err
	}
	return c, nil
}

// NewPipeConnection wires a connection over in-process streams and performs
// the ready handshake. Used to exercise an engine without a subprocess.
func NewPipeConnection(r io.Reader, w io.WriteCloser, logger zerolog.Logger) (*Connection, error) {
	c := newConnection(r, w, logger)
	if err := c.initialize(); err != nil {
		c.terminate()
		return nil, err
	}
	return c, nil
}

func newConnection(r io.Reader, w io.WriteCloser, logger zerolog.Logger) *Connection {
	br := bufio.NewReader(r)
	return &Connection{
		reader: jsonrpc.NewLineReader(br, jsonrpc.DefaultLimits()),
		writer: jsonrpc.NewLineWriter(w),
		input:  w,
		logger: logger,
		peek:   br,
	}
}

func (c *Connection) initialize() error {
	// The first byte decides the transport. Anything but '{' means the
	// process on the other end does not talk line-delimited JSON-RPC.
	first, err := c.peek.Peek(1)
	if err != nil {
		return fmt.Errorf("%w: no bytes received", ErrMisbehaving)
	}
	if first[0] != '{' {
		return fmt.Errorf("%w: expected JSON-RPC message starting with '{', got byte %q", ErrMisbehaving, first[0])
	}

	line, err := c.reader.ReadLine()
	if err != nil {
		return fmt.Errorf("host: expected ready request from oracle: %w", err)
	}
	msg, err := jsonrpc.DecodeLine(line)
	if err != nil {
		return fmt.Errorf("host: expected ready request from oracle: %w", err)
	}
	if msg.Method != jsonrpc.MethodReady || msg.ID == nil {
		reason := "expected ready request from oracle"
		c.replyError(msg.ID, reason)
		return errors.New("host: " + reason)
	}
	// Ready params are ignored, but must still be absent or an object.
	if len(msg.Params) > 0 {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(msg.Params, &obj); err != nil {
			reason := "invalid ready request params, expected null or object"
			c.replyError(msg.ID, reason)
			return errors.New("host: " + reason)
		}
	}

	ack := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      msg.ID,
		Result:  json.RawMessage("{}"),
	}
	if err := c.send(ack); err != nil {
		return fmt.Errorf("host: acknowledge ready: %w", err)
	}
	c.logger.Debug().Int64("id", *msg.ID).Msg("oracle ready")
	return nil
}

// Call runs one selector against calldata and returns the output felts.
// A response correlating to a different identifier fails the session.
func (c *Connection) Call(selector string, calldata []felt.Felt) ([]felt.Felt, error) {
	id := c.nextID
	c.nextID++

	params, err := json.Marshal(struct {
		Selector string   `json:"selector"`
		Calldata []string `json:"calldata"`
	}{Selector: selector, Calldata: felt.EncodeSlice(calldata)})
	if err != nil {
		return nil, fmt.Errorf("host: encode invoke params: %w", err)
	}

	req := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      &id,
		Method:  jsonrpc.MethodInvoke,
		Params:  params,
	}
	if err := c.send(req); err != nil {
		return nil, fmt.Errorf("host: send invoke: %w", err)
	}

	line, err := c.reader.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("host: read invoke response: %w", err)
	}
	msg, err := jsonrpc.DecodeLine(line)
	if err != nil {
		return nil, fmt.Errorf("host: invoke response: %w", err)
	}
	if msg.ID == nil || *msg.ID != id {
		return nil, fmt.Errorf("host: response does not correlate to request id %d", id)
	}
	if msg.Error != nil {
		return nil, errors.New(msg.Error.Message)
	}
	if len(msg.Result) == 0 {
		return nil, errors.New("host: response carries neither result nor error")
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Result))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("host: decode result: %w", err)
	}
	return felt.DecodeSlice(raw)
}

// Close sends the shutdown notification and reaps the process. Safe to call
// once per connection.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	shutdown := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		Method:  jsonrpc.MethodShutdown,
	}
	// Best effort: the oracle may already have gone away.
	if err := c.send(shutdown); err != nil {
		c.logger.Warn().Err(err).Msg("shutdown notification not delivered")
	}
	return c.terminate()
}

func (c *Connection) terminate() error {
	c.closed = true
	_ = c.input.Close()
	if c.wait == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(terminateGrace):
		c.logger.Warn().Msg("oracle did not exit, killing")
		if c.kill != nil {
			_ = c.kill()
		}
		return <-done
	}
}

func (c *Connection) replyError(id *int64, reason string) {
	msg := jsonrpc.Message{
		JSONRPC: jsonrpc.Version,
		ID:      id,
		Error:   &jsonrpc.ErrorObject{Message: reason},
	}
	_ = c.send(msg)
}

func (c *Connection) send(msg jsonrpc.Message) error {
	line, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.writer.WriteLine(line)
}
