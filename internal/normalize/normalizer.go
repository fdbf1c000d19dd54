// Package normalize converts loosely shaped chat payloads into
// canonical models.Message values.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/eldtechnologies/chatline/internal/models"
)

// Normalizer reads payloads with an ordered rule list. It is safe for
// concurrent use once constructed.
type Normalizer struct {
	rules     []Rule
	envelopes []string
	now       func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(n *Normalizer) { n.rules = rules }
}

// WithEnvelopeKeys replaces DefaultEnvelopeKeys.
func WithEnvelopeKeys(keys []string) Option {
	return func(n *Normalizer) { n.envelopes = keys }
}

// WithClock sets the source of receipt time for payloads without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a Normalizer with the default rules.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		rules:     DefaultRules,
		envelopes: DefaultEnvelopeKeys,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts v into a Message. The boolean is false when v is
// not a message: nil, numbers, booleans, arrays, or objects that carry
// neither a body nor an id.
func (n *Normalizer) Normalize(v any) (models.Message, bool) {
	switch x := v.(type) {
	case nil:
		return models.Message{}, false
	case string:
		return n.fromString(x), true
	case json.RawMessage:
		return n.Normalize(Decode(x))
	case []byte:
		return n.Normalize(Decode(x))
	case map[string]any:
		return n.fromObject(x)
	default:
		return models.Message{}, false
	}
}

// NormalizeAll normalizes every value, skipping the ones that are not messages.
func (n *Normalizer) NormalizeAll(values []any) []models.Message {
	out := make([]models.Message, 0, len(values))
	for _, v := range values {
		if m, ok := n.Normalize(v); ok {
			out = append(out, m)
		}
	}
	return out
}

// Decode parses data as JSON, keeping numbers as json.Number. Data that
// is not valid JSON is returned as a string.
func Decode(data []byte) any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(data)
	}
	if dec.More() {
		return string(data)
	}
	return v
}

func (n *Normalizer) fromString(body string) models.Message {
	sentAt := n.now().UnixMilli()
	return models.Message{
		ID:     SyntheticID(models.UnknownAuthor, body, sentAt),
		Author: models.UnknownAuthor,
		Body:   body,
		SentAt: sentAt,
	}
}

func (n *Normalizer) fromObject(outer map[string]any) (models.Message, bool) {
	obj := n.unwrap(outer)

	id, hasID := pickFrom(obj, outer, keys(n.rules, FieldID), toID)
	body, hasBody := pick(obj, keys(n.rules, FieldBody), toBody)
	if !hasBody {
		// An explicitly empty body still counts as a body.
		hasBody = hasEmptyString(obj, keys(n.rules, FieldBody))
	}
	if !hasID && !hasBody {
		return models.Message{}, false
	}

	author, ok := pickFrom(obj, outer, keys(n.rules, FieldAuthor), toID)
	if !ok {
		author = models.UnknownAuthor
	}
	sentAt, ok := pickFrom(obj, outer, keys(n.rules, FieldSentAt), toMillis)
	if !ok {
		sentAt = n.now().UnixMilli()
	}
	if !hasID {
		id = SyntheticID(author, body, sentAt)
	}

	return models.Message{ID: id, Author: author, Body: body, SentAt: sentAt}, true
}

// unwrap descends one envelope level when the outer object has no body
// of its own and an envelope key holds an object.
func (n *Normalizer) unwrap(obj map[string]any) map[string]any {
	if _, ok := pick(obj, keys(n.rules, FieldBody), toBody); ok {
		return obj
	}
	for _, k := range n.envelopes {
		if inner, ok := obj[k].(map[string]any); ok {
			return inner
		}
	}
	return obj
}

// SyntheticID derives a stable id for payloads that carry none, so that
// replaying the same payload always maps to the same id.
func SyntheticID(author, body string, sentAt int64) string {
	h := sha256.New()
	h.Write([]byte(author))
	h.Write([]byte{0})
	h.Write([]byte(body))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(sentAt, 10)))
	return "h-" + hex.EncodeToString(h.Sum(nil))[:32]
}

func pick[T any](obj map[string]any, candidates []string, conv func(any) (T, bool)) (T, bool) {
	for _, k := range candidates {
		raw, ok := obj[k]
		if !ok {
			continue
		}
		if v, ok := conv(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// pickFrom tries the unwrapped record first, then the envelope around it.
func pickFrom[T any](inner, outer map[string]any, candidates []string, conv func(any) (T, bool)) (T, bool) {
	if v, ok := pick(inner, candidates, conv); ok {
		return v, true
	}
	return pick(outer, candidates, conv)
}

func hasEmptyString(obj map[string]any, candidates []string) bool {
	for _, k := range candidates {
		if s, ok := obj[k].(string); ok && s == "" {
			return true
		}
	}
	return false
}

// toID accepts non-blank strings and numbers.
func toID(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		return s, s != ""
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// toBody accepts non-empty strings and numbers.
func toBody(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case json.Number, float64, int, int64:
		return toID(x)
	default:
		return "", false
	}
}

// secondsCutoff separates epoch seconds from epoch milliseconds. Numeric
// timestamps below it are seconds: as milliseconds they would predate
// March 1973, as seconds they reach past the year 5000.
const secondsCutoff = 100_000_000_000

// toMillis accepts epoch seconds or milliseconds as numbers or numeric
// strings, and RFC3339 timestamps.
func toMillis(v any) (int64, bool) {
	var ms int64
	numeric := true
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			ms = i
		} else if f, err := x.Float64(); err == nil {
			ms = int64(f)
		}
	case float64:
		ms = int64(x)
	case int:
		ms = int64(x)
	case int64:
		ms = x
	case time.Time:
		ms, numeric = x.UnixMilli(), false
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			ms = i
			break
		}
		numeric = false
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				ms = t.UnixMilli()
				break
			}
		}
	}
	if numeric && ms > 0 && ms < secondsCutoff {
		ms *= 1000
	}
	return ms, ms > 0
}
