package models

// Channel maps a channel name to the handler that serves it.
type Channel struct {
	Channel string `json:"channel"`
	Handler string `json:"handler"`
}
