package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// decode binds the request arguments to a typed struct.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var v T
	if req.Params.Arguments == nil {
		return v, nil
	}
	if err := req.BindArguments(&v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}
	return v, nil
}
