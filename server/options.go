package server

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/shared/schema"
	"github.com/graphmem/graphmem/tools"
)

// WithListenAddr overrides the listen address from the config.
func WithListenAddr(addr string) ServerOption {
	return func(b *ServerBuilder) error {
		if addr != "" {
			b.listenAddr = addr
			b.logger.Info("Overriding listen address", zap.String("newAddress", addr))
		}
		return nil
	}
}

// WithTool is a server option to add a single tool.
func WithTool(name string, description string, inputSchema json.RawMessage, annotations *schema.ToolAnnotations, handler capability.ToolHandler) ServerOption {
	return func(b *ServerBuilder) error {
		toolsCap, err := b.EnsureToolsCapability()
		if err != nil {
			return err
		}
		return toolsCap.AddTool(name, description, inputSchema, annotations, handler)
	}
}

// WithDefaultTools registers the full memory-bank tool catalog.
func WithDefaultTools() ServerOption {
	return func(b *ServerBuilder) error {
		toolsCap, err := b.EnsureToolsCapability()
		if err != nil {
			return err
		}
		return tools.RegisterAll(toolsCap)
	}
}
