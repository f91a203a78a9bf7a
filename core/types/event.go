package types

// Event is a typed record of a single state change. Attributes are flat
// string pairs so downstream consumers (RPC, indexers) can decode them
// without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
