package tools

import "context"

// Tool execution context keys.
// These replace mutable setter fields on tool instances, making tools
// thread-safe for concurrent conversations. Values are injected into context
// by the agent before dispatch and read by individual tools during Execute().

type toolContextKey string

const ctxConversationID toolContextKey = "tool_conversation_id"

func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxConversationID, id)
}

func ConversationIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxConversationID).(string)
	return v
}
