package realtime

import "encoding/json"

// Inbound event types. These match the method names the push service invokes
// on connected clients. Payloads are opaque to this layer.
const (
	EventJournalEntry = "ReceiveJournalEntry"
	EventPost         = "ReceivePost"
	EventMoodEntry    = "ReceiveMoodEntry"
	EventNotification = "ReceiveNotification"
)

// Outbound invoke method names.
const (
	methodJoinUserGroup        = "JoinUserGroup"
	methodBroadcastToPartner   = "BroadcastToPartner"
	methodBroadcastToFollowers = "BroadcastToFollowers"
	methodNotifyUser           = "NotifyUser"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// invokeFrame is an outbound method invocation on the push service.
type invokeFrame struct {
	Method    string        `json:"method"`
	Args      []interface{} `json:"args"`
	Timestamp int64         `json:"timestamp"`
}
