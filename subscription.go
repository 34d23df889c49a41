package bayeux

import (
	"encoding/json"
	"fmt"
)

// Subscription is the wire representation of a Bayeux message's
// "subscription" field, which the specification allows to be either a
// single channel string or a JSON array of channel strings.
//
// See also: https://docs.cometd.org/current/reference/#_subscription
type Subscription []Channel

// MarshalJSON encodes a single-channel Subscription as a bare string, and
// anything else as an array, matching what servers expect to see.
func (s Subscription) MarshalJSON() ([]byte, error) {
	if len(s) == 1 {
		return json.Marshal(s[0])
	}
	return json.Marshal([]Channel(s))
}

// UnmarshalJSON accepts either a bare string or an array of strings.
func (s *Subscription) UnmarshalJSON(data []byte) error {
	var single Channel
	if err := json.Unmarshal(data, &single); err == nil {
		*s = Subscription{single}
		return nil
	}

	var many []Channel
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("subscription field is neither a string nor an array: %w", err)
	}
	*s = Subscription(many)
	return nil
}
