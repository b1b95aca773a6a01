package domain

import "fmt"

// Message is an immutable corpus record from the member-messages API.
// Timestamp is kept as the API's string form; it may be empty.
type Message struct {
	ID        string `json:"id"`
	SenderID  string `json:"user_id"`
	Sender    string `json:"user_name"`
	Text      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Document renders the text that gets embedded for this message. Sender and
// date are part of the embedding space so questions naming a person or a time
// land near that person's messages.
func (m Message) Document() string {
	return fmt.Sprintf("User: %s\nDate: %s\nMessage: %s", m.Sender, m.Timestamp, m.Text)
}

// ScoredMessage pairs a retrieved message with its similarity score.
type ScoredMessage struct {
	Message Message
	Score   float32
}

// Answer is the result of one question pipeline run.
type Answer struct {
	Text    string
	Sources []ScoredMessage
}
