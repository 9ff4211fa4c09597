// Package triggers holds the trigger adapters and the event shape they share.
package triggers

// Normalize wraps a raw inbound payload as {json: raw} and attaches credentials when present.
func Normalize(raw any, credentials map[string]string) map[string]any {
	event := map[string]any{"json": raw}

	if len(credentials) > 0 {
		attached := make(map[string]any, len(credentials))
		for k, v := range credentials {
			attached[k] = v
		}

		event["credentials"] = attached
	}

	return event
}
