// Package turn wires a resolved Agent's onTurn callback (the external
// collaborator named in spec §6) to the WorkQueue's Adapter contract (C5)
// and the ResponseRelay (C4): it is the concrete implementation of
// Adapter.processActivity the rest of the host is written against.
package turn

import (
	"context"
	"fmt"

	"github.com/a2ahost/server/pkg/activity"
	"github.com/a2ahost/server/pkg/registry"
	"github.com/a2ahost/server/pkg/relay"
)

// Context is the turnContext passed to Agent.OnTurn. The inbound Activity's
// ID doubles as the ResponseRelay key: every activity the agent sends
// during this turn is forwarded under that same id.
type Context struct {
	ctx      context.Context
	Identity string
	Inbound  *activity.Activity
	relays   *relay.Registry
}

// Context returns the request-scoped context the agent should use for any
// downstream calls (store lookups, outbound HTTP, etc.).
func (c *Context) Context() context.Context { return c.ctx }

// SendActivity forwards an outbound activity to whatever is draining this
// turn's relay (an SSE stream or a blocking message/send call).
func (c *Context) SendActivity(reply *activity.Activity) {
	c.relays.Send(c.Inbound.ID, reply)
}

// Adapter implements workqueue.Adapter: it resolves into a turn Context and
// invokes the agent, with no further protocol awareness.
type Adapter struct {
	Relays *relay.Registry
}

// ProcessActivity invokes agent.OnTurn with a Context built from the
// inbound activity and identity. The invoke response returned here is
// always nil: this host does not model Invoke-type activities.
func (a *Adapter) ProcessActivity(ctx context.Context, identity string, act any, agent registry.Agent) (any, error) {
	inbound, ok := act.(*activity.Activity)
	if !ok {
		return nil, fmt.Errorf("turn: unexpected activity payload type %T", act)
	}

	tc := &Context{ctx: ctx, Identity: identity, Inbound: inbound, relays: a.Relays}
	if err := agent.OnTurn(tc); err != nil {
		return nil, err
	}
	return nil, nil
}
