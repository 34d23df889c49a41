package bayeux

import "encoding/json"

// encodeHandshake builds the /meta/handshake envelope. Per the spec this is
// the one envelope that never carries a clientId.
func encodeHandshake(supportedConnectionTypes []string) Message {
	return Message{
		Channel:                  MetaHandshake,
		Version:                  ProtocolVersion,
		MinimumVersion:           ProtocolMinimumVersion,
		SupportedConnectionTypes: supportedConnectionTypes,
		ID:                       nextMessageID(),
	}
}

// encodeConnect builds the /meta/connect keep-alive envelope.
func encodeConnect(clientID, connectionType string, ext map[string]interface{}) Message {
	return Message{
		Channel:        MetaConnect,
		ClientID:       clientID,
		ConnectionType: connectionType,
		Ext:            ext,
		ID:             nextMessageID(),
	}
}

// encodeDisconnect builds the /meta/disconnect envelope.
func encodeDisconnect(clientID string) Message {
	return Message{
		Channel:  MetaDisconnect,
		ClientID: clientID,
		ID:       nextMessageID(),
	}
}

// encodeSubscribe builds the /meta/subscribe envelope covering every channel
// in one aggregated request, as the registry's shared-entry model expects.
func encodeSubscribe(clientID string, channels []Channel, ext map[string]interface{}) Message {
	return Message{
		Channel:      MetaSubscribe,
		ClientID:     clientID,
		Subscription: Subscription(channels),
		Ext:          ext,
		ID:           nextMessageID(),
	}
}

// encodeUnsubscribe builds the /meta/unsubscribe envelope covering every
// channel being dropped in one request.
func encodeUnsubscribe(clientID string, channels []Channel) Message {
	return Message{
		Channel:      MetaUnsubscribe,
		ClientID:     clientID,
		Subscription: Subscription(channels),
		ID:           nextMessageID(),
	}
}

// encodePublish builds an application-level publish envelope.
func encodePublish(clientID string, channel Channel, data interface{}, ext map[string]interface{}) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, MalformedObjectDataError{Err: err}
	}
	return Message{
		Channel:  channel,
		ClientID: clientID,
		Data:     raw,
		Ext:      ext,
		ID:       nextMessageID(),
	}, nil
}

// encodeBatchForHTTP wraps a single message in the one-element array the
// HTTP transport expects on the wire, as opposed to WebSocket, which sends a
// bare object.
func encodeBatchForHTTP(m Message) ([]byte, error) {
	data, err := json.Marshal([]Message{m})
	if err != nil {
		return nil, MalformedObjectDataError{Err: err}
	}
	return data, nil
}

// encodeSingleForWebsocket marshals a single message as a bare JSON object,
// the wire form WebSocket sends use.
func encodeSingleForWebsocket(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, MalformedObjectDataError{Err: err}
	}
	return data, nil
}
