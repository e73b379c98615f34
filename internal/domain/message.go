package domain

// UpdateKind classifies an inbound chat update.
type UpdateKind string

const (
	UpdateText        UpdateKind = "text"
	UpdateChannelPost UpdateKind = "channel_post"
	UpdateMedia       UpdateKind = "media"
)

// MediaKind is the type of attachment carried by an update.
type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
)

// Attachment references a file held by the chat platform.
type Attachment struct {
	Kind     MediaKind
	FileID   string
	FileName string // optional
	MimeType string // optional
	FileSize int64  // 0 when the platform did not report it
	Width    int
	Height   int
}

// InboundUpdate is one decoded event from the chat platform.
// It is built once per incoming event and must not be mutated afterwards.
type InboundUpdate struct {
	ID       int
	Kind     UpdateKind
	ChatID   int64
	SenderID int64
	Text     string // message text or media caption

	Document *Attachment
	Photos   []Attachment // ascending by size; the last entry is the largest
	Video    *Attachment
}

// HasMedia reports whether the update carries any attachment at all.
func (u InboundUpdate) HasMedia() bool {
	return u.Document != nil || len(u.Photos) > 0 || u.Video != nil
}
