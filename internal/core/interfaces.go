package core

import (
	"context"
	"net/http"
)

// RawResponse is an uninterpreted backend HTTP response.
type RawResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *RawResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Backend performs the single POST of a submission.
type Backend interface {
	Post(ctx context.Context, endpoint string, payload Payload) (*RawResponse, error)
}

// HealthChecker reports backend feature availability.
type HealthChecker interface {
	Health(ctx context.Context) (Features, error)
}

// Downloader is the platform download trigger: a browser attachment or a
// file written to disk.
type Downloader interface {
	Download(ctx context.Context, d DownloadDescriptor) error
}

// Observer is notified of every state transition of a submission.
type Observer interface {
	Transition(ev Event)
}

// Journal records resolved submissions.
type Journal interface {
	Record(rec Record) error
}
