// Package jsonrpc owns the line-delimited JSON-RPC 2.0 wire contract.
//
// Ownership boundary:
// - message schema and validation
// - line framing with size limits
package jsonrpc
