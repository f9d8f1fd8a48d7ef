package types

import (
	"fmt"
	"time"
)

// Snapshot is a camera image written to local scratch space
type Snapshot struct {
	Path      string    `json:"path"`
	SourceURL string    `json:"source_url"`
	Bytes     int64     `json:"bytes"`
	FetchedAt time.Time `json:"fetched_at"`
}

// AspectRatio is the display hint attached to an embedded image
type AspectRatio struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image is a single embedded image in a post
type Image struct {
	Alt         string
	MimeType    string
	Data        []byte
	AspectRatio AspectRatio
}

// Post is the artifact handed to a posting service
type Post struct {
	Text      string
	Images    []Image
	Languages []string
	CreatedAt time.Time
}

// PostResult identifies a created post
type PostResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Step names a pipeline stage
type Step string

const (
	StepAcquire  Step = "acquire"
	StepDescribe Step = "describe"
	StepPublish  Step = "publish"
)

// RunReport summarizes one PostJob run
type RunReport struct {
	RunID       string      `json:"run_id"`
	Snapshot    *Snapshot   `json:"snapshot,omitempty"`
	Description string      `json:"description"`
	Placeholder bool        `json:"placeholder"`
	DegradedAt  Step        `json:"degraded_at,omitempty"`
	Result      *PostResult `json:"result,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
}

// Summary renders the report as a single log line
func (r *RunReport) Summary() string {
	outcome := "not posted"
	if r.Result != nil {
		outcome = "posted " + r.Result.URI
	}

	caption := "description"
	if r.Placeholder {
		caption = fmt.Sprintf("placeholder after %s failure", r.DegradedAt)
	}

	return fmt.Sprintf("run %s: %s, %s (%d chars) in %v",
		r.RunID, outcome, caption, len([]rune(r.Description)), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
