package normalize

// Field names a canonical message attribute a Rule extracts.
type Field int

const (
	FieldID Field = iota
	FieldAuthor
	FieldBody
	FieldSentAt
)

func (f Field) String() string {
	switch f {
	case FieldID:
		return "id"
	case FieldAuthor:
		return "author"
	case FieldBody:
		return "body"
	case FieldSentAt:
		return "sentAt"
	default:
		return "unknown"
	}
}

// Rule lists candidate payload keys for one Field, in priority order.
// Several rules may target the same Field; they are tried in slice order.
type Rule struct {
	Field Field
	Keys  []string
}

// DefaultRules covers every payload shape the chat backend has produced.
// FieldSentAt values may be RFC3339 strings or epoch numbers; numbers
// below 1e11 are read as seconds, larger ones as milliseconds.
var DefaultRules = []Rule{
	{Field: FieldID, Keys: []string{"id", "messageId", "message_id", "msgId", "uuid", "_id"}},
	{Field: FieldAuthor, Keys: []string{"author", "senderId", "sender", "userName", "username", "user", "from", "name", "userId"}},
	{Field: FieldBody, Keys: []string{"body", "content", "message", "text", "msg"}},
	{Field: FieldSentAt, Keys: []string{"sentAt", "createdAt", "timestamp", "ts", "time", "created_at"}},
}

// DefaultEnvelopeKeys name wrappers that nest the actual record one level down.
var DefaultEnvelopeKeys = []string{"payload", "message", "data", "detail"}

// keys returns the candidate keys for f across rules, in order.
func keys(rules []Rule, f Field) []string {
	var out []string
	for _, r := range rules {
		if r.Field == f {
			out = append(out, r.Keys...)
		}
	}
	return out
}
