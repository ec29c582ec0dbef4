// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
//
// Every message carries a topic (a session id for go-affect). A client
// subscribed to a topic receives only that topic's messages; a client
// subscribed to AllTopics receives everything.
package hub

// AllTopics subscribes a client to every topic.
const AllTopics = ""

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data (e.g., msgpack envelopes)
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Topic string
	Type  MessageType
	Data  []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(topic string, data []byte) Message {
	return Message{Topic: topic, Type: BinaryMessage, Data: data}
}
