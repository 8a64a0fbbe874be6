package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Receipt summarises the outcome of one executed transaction.
type Receipt struct {
	TxHash  string   `json:"txHash"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
	Events  []*Event `json:"events,omitempty"`
}
