package models

import "time"

type Message struct {
	ID           string    `json:"id" db:"id"`
	SubmissionID string    `json:"submission_id" db:"submission_id"`
	SenderID     string    `json:"sender_id" db:"sender_id"`
	SenderName   string    `json:"sender_name" db:"sender_name"`
	SenderRole   Role      `json:"sender_role" db:"sender_role"`
	Content      string    `json:"content" db:"content"`
	CreatedAt    time.Time `json:"timestamp" db:"created_at"`
}

// ReadMark is the last-read watermark of one user in one conversation.
type ReadMark struct {
	UserID       string    `json:"userId" db:"user_id"`
	SubmissionID string    `json:"submissionId" db:"submission_id"`
	LastReadAt   time.Time `json:"lastReadAt" db:"last_read_at"`
}

// ChatInfo summarises one conversation for triage.
type ChatInfo struct {
	Count        int       `json:"count"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	HasUnread    bool      `json:"hasUnread"`
	LastActivity time.Time `json:"lastActivity"`
}
