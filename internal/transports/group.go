package transports

import (
	"context"
	"strings"

	"pulsekeep/internal/models"
)

// groupTransport fans one notification out to the group's member
// channels. Delivery counts as failed only if every member fails.
type groupTransport struct {
	registry *Registry
	deps     Deps
}

func (t *groupTransport) IsNoop(channel *models.Channel, status models.CheckStatus) bool {
	return len(channel.GroupMembers()) == 0
}

func (t *groupTransport) Notify(ctx context.Context, flip *models.Flip, check *models.Check, channel *models.Channel) error {
	members := channel.GroupMembers()
	if len(members) == 0 {
		return nil
	}

	var attempted, failed int
	var errMsgs []string
	for _, code := range members {
		member, err := t.deps.Channels.GetByCode(ctx, code)
		if err != nil {
			return temporaryError("cannot load group member %s: %s", code, err)
		}
		if member == nil || member.Disabled || member.Kind == models.KindGroup {
			// Nested groups are not expanded.
			continue
		}

		transport, err := t.registry.For(member.Kind)
		if err != nil {
			continue
		}
		if transport.IsNoop(member, flip.NewStatus) {
			continue
		}

		attempted++
		if err := transport.Notify(ctx, flip, check, member); err != nil {
			failed++
			errMsgs = append(errMsgs, string(member.Kind)+": "+err.Error())
			t.deps.logger().Warn("group member delivery failed",
				"group", channel.Code, "member", code, "error", err)
		}
	}

	if attempted > 0 && failed == attempted {
		return temporaryError("all group members failed: %s", strings.Join(errMsgs, "; "))
	}
	return nil
}
