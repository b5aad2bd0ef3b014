package models

import "time"

// Message is a stored webhook event with content and meta decoded back to
// their structured form.
type Message struct {
	ID      int64     `json:"id"`
	Time    time.Time `json:"time"`
	Channel string    `json:"channel"`
	Content any       `json:"content"`
	Meta    any       `json:"meta"`
}

// MessageRecord is the row layout of the messages table. Time is seconds
// since the epoch; Content and Meta are JSON text.
type MessageRecord struct {
	ID      int64
	Time    float64
	Channel string
	Content string
	Meta    string
}

func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func FromEpochSeconds(sec float64) time.Time {
	whole := int64(sec)
	nsec := int64((sec - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nsec).UTC()
}
