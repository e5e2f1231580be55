package models

// Language is one runtime offered by the execution service.
type Language struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Aliases []string `json:"aliases"`
	Runtime string   `json:"runtime,omitempty"`
}
