package shmmodels

import "time"

// ChatMessage is one role-tagged turn of a conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NLPRequest is the assistant request body. Question is the legacy
// single-turn form and is used only when Messages is empty.
type NLPRequest struct {
	Messages []ChatMessage `json:"messages"`
	Question string        `json:"question"`
	Model    string        `json:"model"`
}

// Envelope is the assistant reply. Its keys depend on which dispatch path
// produced it.
type Envelope map[string]interface{}

// Transcript is the stored record of one assistant exchange
type Transcript struct {
	Model     string    `json:"model" bson:"model"`
	Question  string    `json:"question" bson:"question"`
	Answer    string    `json:"answer" bson:"answer"`
	Kind      string    `json:"kind" bson:"kind"`
	SQL       string    `json:"sql,omitempty" bson:"sql,omitempty"`
	Error     string    `json:"error,omitempty" bson:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty" bson:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
