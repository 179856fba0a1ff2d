// ABOUTME: A2A agent card and message data model
// ABOUTME: Mirrors the wire shapes agents publish at /.well-known/agent.json

package a2a

// WellKnownCardPath is the conventional location of an agent card.
const WellKnownCardPath = "/.well-known/agent.json"

// AgentCard is the capability descriptor an agent publishes. The URL field is
// the canonical invocation endpoint; the gateway only ever forwards to it,
// never to caller-supplied addresses.
type AgentCard struct {
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	Version            string             `json:"version,omitempty"`
	ProtocolVersion    string             `json:"protocolVersion,omitempty"`
	URL                string             `json:"url,omitempty"`
	Capabilities       AgentCapabilities  `json:"capabilities,omitempty"`
	Skills             []AgentSkill       `json:"skills,omitempty"`
	DefaultInputModes  []string           `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string           `json:"defaultOutputModes,omitempty"`
	SecuritySchemes    map[string]any     `json:"securitySchemes,omitempty"`
}

// AgentCapabilities describes the optional capabilities an agent supports.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming,omitempty"`
	PushNotifications bool `json:"pushNotifications,omitempty"`
}

// AgentSkill describes a single skill provided by an agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Part is one piece of message or artifact content.
type Part struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Message is a user or agent message exchanged over the A2A protocol.
type Message struct {
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId,omitempty"`
}

// MessageSendParams are the params of message/send and message/stream.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// Artifact is one output produced by an agent task.
type Artifact struct {
	Parts []Part `json:"parts"`
}

// TaskResult is the result shape of a completed message/send.
type TaskResult struct {
	Status    string     `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}
