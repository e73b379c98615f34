package domain

// PayloadMode selects how fetched media is handed to a processing service.
type PayloadMode string

const (
	// PayloadBytes downloads the binary and uploads it.
	PayloadBytes PayloadMode = "bytes"
	// PayloadURL passes the platform download URL without downloading.
	PayloadURL PayloadMode = "url"
)

// FileDescriptor is the result of the platform metadata lookup.
type FileDescriptor struct {
	FileID   string
	FilePath string
}

// MediaPayload holds either the media bytes or a URL pointing at them.
// Exactly one of Bytes or URL is populated.
type MediaPayload struct {
	Bytes    []byte
	URL      string
	FileName string
	MimeType string
}

// IsURL reports whether the payload is a remote reference.
func (p MediaPayload) IsURL() bool { return p.URL != "" }

// Size returns the number of bytes held, or 0 for URL payloads.
func (p MediaPayload) Size() int { return len(p.Bytes) }

// SubmitContext carries per-update values a processing service may echo back.
type SubmitContext struct {
	ChatID      int64
	CallbackURL string
	Recipient   string
}

// ServiceResponse is the raw body returned by a processing service.
type ServiceResponse struct {
	Status int
	Body   string
}
