package mcphost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// RecoveryAction determines how a failed MCP operation should be
// handled. Unlike the teacher, there is no RetryNewSession action: per
// spec.md §4.1, the host never respawns a subprocess on its own.
type RecoveryAction int

const (
	NoRetry RecoveryAction = iota
	RetryTransient
)

// Timing per spec.md §5 ("implementations should impose one [timeout]
// (e.g., 120s per call)"); OperationTimeout is kept below that ceiling.
const (
	MCPInitTimeout   = 30 * time.Second
	OperationTimeout = 90 * time.Second

	RetryBackoffMin = 250 * time.Millisecond
	RetryBackoffMax = 750 * time.Millisecond
)

// ClassifyError decides whether a CallTool failure is worth one
// transient retry on the existing session, or must be surfaced as-is.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NoRetry
		}
		return RetryTransient
	}

	if isConnectionError(err) {
		return RetryTransient
	}

	if isMCPProtocolError(err) {
		return NoRetry
	}

	return NoRetry
}

func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, e := range []string{"connection refused", "connection reset", "broken pipe", "connection closed"} {
		if strings.Contains(msg, e) {
			return true
		}
	}
	return false
}

func isMCPProtocolError(err error) bool {
	var wireErr *jsonrpc.Error
	if !errors.As(err, &wireErr) {
		return false
	}
	switch wireErr.Code {
	case jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest, jsonrpc.CodeMethodNotFound, jsonrpc.CodeInvalidParams:
		return true
	default:
		return false
	}
}

// schemaToMap round-trips an SDK tool input schema (an opaque `any`
// the SDK already marshals as JSON Schema) into a plain map so the
// rest of the engine can work with it without importing the SDK's
// schema package directly.
func schemaToMap(schema any) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// ExtractTextContent concatenates every text content block of a tool
// result, skipping non-text blocks.
func ExtractTextContent(result *mcpsdk.CallToolResult) string {
	var b strings.Builder
	for i, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

func readDescription(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
