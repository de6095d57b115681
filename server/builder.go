package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/graphmem/graphmem/graph"
	"github.com/graphmem/graphmem/server/mcp"
	"github.com/graphmem/graphmem/server/mcp/capability"
	"github.com/graphmem/graphmem/server/transport"
	"github.com/graphmem/graphmem/shared"
	"github.com/graphmem/graphmem/shared/config"
)

// ServerBuilder accumulates everything the start functions assemble:
// session manager, provisioner, capabilities and HTTP routing.
type ServerBuilder struct {
	ctx          context.Context
	logger       *zap.Logger
	cfg          *config.Config
	listenAddr   string
	manager      *mcp.Manager
	provisioner  *graph.Provisioner
	transport    *transport.Transport
	mux          *http.ServeMux
	capabilities []shared.ICapability

	// Capability instances (created lazily)
	baseCap  *capability.BaseCapability
	toolsCap *capability.ToolsCapability
}

// EnsureBaseCapability creates the BaseCapability if it doesn't exist.
func (b *ServerBuilder) EnsureBaseCapability() error {
	if b.baseCap == nil {
		b.logger.Debug("Initializing BaseCapability")
		b.baseCap = capability.NewBase(b.logger, b.manager)
		b.capabilities = append(b.capabilities, b.baseCap)
	}
	return nil
}

// EnsureToolsCapability creates the ToolsCapability if it doesn't exist.
func (b *ServerBuilder) EnsureToolsCapability() (*capability.ToolsCapability, error) {
	if err := b.EnsureBaseCapability(); err != nil {
		return nil, err
	}
	if b.toolsCap == nil {
		b.logger.Debug("Initializing ToolsCapability")
		b.toolsCap = capability.NewToolsCapability(b.manager, b.provisioner, b.cfg.RequestTimeout, b.logger)
		b.capabilities = append(b.capabilities, b.toolsCap)
	}
	return b.toolsCap, nil
}

// ServerOption defines a function type for configuring the ServerBuilder.
type ServerOption func(*ServerBuilder) error
