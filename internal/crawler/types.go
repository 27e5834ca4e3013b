package crawler

import (
	"net/http"
	"time"
)

// Kind classifies a discovered reference.
type Kind string

// Reference kinds. KindPage is reserved for the snapshot root.
const (
	KindPage       Kind = "page"
	KindImage      Kind = "image"
	KindStylesheet Kind = "stylesheet"
	KindScript     Kind = "script"
	KindLink       Kind = "link"
)

// IsAsset reports whether the kind is an image, stylesheet or script.
func (k Kind) IsAsset() bool {
	switch k {
	case KindImage, KindStylesheet, KindScript:
		return true
	default:
		return false
	}
}

// IsPage reports whether documents of this kind are scanned for references.
func (k Kind) IsPage() bool {
	return k == KindPage || k == KindLink
}

// Reference is a typed link discovered while processing a page.
type Reference struct {
	Kind Kind
	// Raw is the attribute value exactly as written in the document.
	Raw string
	// URL is Raw resolved to an absolute URL.
	URL string
}

// State is the lifecycle position of a URL within a session.
type State string

// Item states. Stored and Failed are terminal.
const (
	StateUnseen   State = "unseen"
	StateQueued   State = "queued"
	StateFetching State = "fetching"
	StateStored   State = "stored"
	StateFailed   State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateStored || s == StateFailed
}

// FetchRequest captures everything needed to issue one GET.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ItemResult records the outcome for one URL of a run.
type ItemResult struct {
	URL      string        `json:"url"`
	Kind     Kind          `json:"kind"`
	Path     string        `json:"path"`
	State    State         `json:"state"`
	Depth    int           `json:"depth"`
	Status   int           `json:"status,omitempty"`
	Bytes    int64         `json:"bytes,omitempty"`
	Digest   string        `json:"digest,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Report summarizes a finished (or aborted) run.
type Report struct {
	RunID      string       `json:"run_id"`
	Target     string       `json:"target"`
	Snapshot   string       `json:"snapshot,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Stored     int          `json:"stored"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Items      []ItemResult `json:"items"`
}

// RootStored reports whether the snapshot page itself was mirrored.
func (r Report) RootStored() bool {
	for _, item := range r.Items {
		if item.Kind == KindPage {
			return item.State == StateStored
		}
	}
	return false
}
