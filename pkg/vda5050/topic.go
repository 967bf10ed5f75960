package vda5050

// Topic names a core VDA 5050 MQTT topic. Extension topics are opaque
// strings outside this enum. The client has no extension-topic registry:
// a topic is publishable or subscribable only if the RoleConfig passed
// to mqttclient.New lists it, and the built-in role configs list core
// topics only.
type Topic string

const (
	TopicConnection     Topic = "connection"
	TopicOrder          Topic = "order"
	TopicState          Topic = "state"
	TopicVisualization  Topic = "visualization"
	TopicInstantActions Topic = "instantActions"
	TopicFactsheet      Topic = "factsheet"
)

// CoreTopics lists the six well-known topics, in the order the VDA 5050
// specification introduces them.
var CoreTopics = []Topic{
	TopicConnection,
	TopicOrder,
	TopicState,
	TopicVisualization,
	TopicInstantActions,
	TopicFactsheet,
}

// IsCore reports whether t is one of the six well-known topics, as opposed
// to an extension topic string.
func (t Topic) IsCore() bool {
	for _, c := range CoreTopics {
		if c == t {
			return true
		}
	}
	return false
}
