package main

import (
	"fmt"

	"github.com/a2ahost/server/pkg/activity"
	"github.com/a2ahost/server/pkg/turn"
)

// echoAgent is the built-in default agent registered under agentType
// "default": it exists so a freshly built a2ahost binary is runnable
// end-to-end (spec §8's streaming scenario) without requiring a
// user-supplied Agent, since the real callback is explicitly an external
// collaborator (spec §6) this repository only defines the interface for.
type echoAgent struct{}

// OnTurn sends one reply activity echoing the inbound text, then signals
// end of turn by simply returning: the worker then marks the turn complete
// on the relay, and the dispatcher settles the task.
func (a *echoAgent) OnTurn(turnContext any) error {
	tc, ok := turnContext.(*turn.Context)
	if !ok {
		return fmt.Errorf("echoAgent: unexpected turn context type %T", turnContext)
	}

	reply := &activity.Activity{
		Type:      "message",
		ChannelID: activity.ChannelIDA2A,
		Text:      fmt.Sprintf("echo: %s", tc.Inbound.Text),
	}
	tc.SendActivity(reply)
	return nil
}
