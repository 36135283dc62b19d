package generic

import "context"

// =============================================================================
// NOTIFIER - User-facing feedback sink
// =============================================================================

type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeAlert   NoticeKind = "alert"
	NoticeInfo    NoticeKind = "info"
)

// Notice is one message for the operator. Topic scopes it (session id,
// shift id) so the API can return only the notices of one wizard.
type Notice struct {
	Kind    NoticeKind
	Topic   string
	Message string
}

// Notifier receives feedback. Implementations must not block the caller on
// slow consumers.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notice) {}
