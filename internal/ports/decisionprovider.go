package ports

import "context"

// DecisionProvider obtains a raw trade recommendation for the given market
// context. The returned text is untrusted free-form model output; callers
// must run it through the decision parser before acting on any field.
type DecisionProvider interface {
	GetDecision(ctx context.Context, systemPrompt, userPayload string) (string, error)
}
