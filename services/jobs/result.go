package jobs

import (
	"time"

	"sjsage522/listingharvester/internal/report"
)

// Status is the phase a published result reports
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is published for every job that was accepted, and again when it finishes
type Result struct {
	JobID   string `json:"job_id"`
	URL     string `json:"url"`
	ReplyTo string `json:"reply_to,omitempty"`
	Status  Status `json:"status"`
	// Text is the message to show the requester
	Text string `json:"text"`

	Filename    string               `json:"filename,omitempty"`
	ContentType string               `json:"content_type,omitempty"`
	Document    []byte               `json:"document,omitempty"`
	Count       int                  `json:"count"`
	Collected   int                  `json:"collected"`
	Stats       *report.OutlierStats `json:"stats,omitempty"`

	ErrorType string    `json:"error_type,omitempty"`
	Time      time.Time `json:"time"`
}
