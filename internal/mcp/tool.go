package mcp

import (
	"context"
	"time"

	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

// remote is a tool discovered on an MCP server, exposed as a tools.Tool.
type remote struct {
	client      *client
	name        string
	origName    string
	description string
	params      []tools.Param
	timeout     time.Duration
}

func (r *remote) Name() string           { return r.name }
func (r *remote) Description() string    { return r.description }
func (r *remote) Params() []tools.Param  { return r.params }
func (r *remote) Timeout() time.Duration { return r.timeout }

func (r *remote) Execute(ctx context.Context, args value.Object) (any, error) {
	v, err := r.client.callTool(ctx, r.origName, args)
	if err != nil {
		return nil, tools.Failed(err, "%s", r.name)
	}
	return v, nil
}

var _ tools.Tool = (*remote)(nil)
