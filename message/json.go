package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dstl/Apex-SAPIENT-Middleware/pkg/timeutil"
	"github.com/dstl/Apex-SAPIENT-Middleware/sapient"
)

// EnvelopeJSON renders a decoded envelope as the JSON mirror stored with
// every message: the common envelope fields plus the content message under
// its field name. Timestamps become ISO strings.
func EnvelopeJSON(env *sapient.Message) (string, error) {
	kind := env.WhichOneof("content")
	if kind == "" {
		return "", fmt.Errorf("envelope has no content")
	}
	body := map[string]any{
		"node_id":        env.GetString("node_id"),
		"destination_id": env.GetString("destination_id"),
		"timestamp":      timeutil.Format(env.GetTime("timestamp")),
		"message_type":   kind,
		"message":        jsonForm(sapient.ToMap(env.GetMessage(kind))),
	}
	out, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// jsonForm rewrites a generic map form into JSON-friendly values.
func jsonForm(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, sub := range val {
			out[k] = jsonForm(sub)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, sub := range val {
			out = append(out, jsonForm(sub))
		}
		return out
	case time.Time:
		return timeutil.Format(val)
	default:
		return val
	}
}
