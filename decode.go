package bayeux

import "encoding/json"

// decodeBatch parses an inbound text frame into the Message batch it
// carries. Bayeux always transmits batches as JSON arrays, whether the
// frame arrived over WebSocket or as an HTTP response body; a bare object
// is a protocol violation, not a single-message convenience.
func decodeBatch(payload []byte) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, MalformedJSONDataError{Err: err}
	}
	return messages, nil
}
