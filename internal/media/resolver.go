// Package media selects the attachment to process from an update and
// retrieves it through the Bot API file protocol.
package media

import "mediarelay/internal/domain"

// precedence is the order in which attachment kinds are considered.
var precedence = []domain.MediaKind{domain.MediaDocument, domain.MediaPhoto, domain.MediaVideo}

// Resolver picks the attachment to process. It performs no I/O and holds no
// mutable state, so Resolve is a pure function of its input.
type Resolver struct {
	enabled map[domain.MediaKind]bool
}

// NewResolver creates a Resolver accepting the given kinds.
// An empty list enables every kind.
func NewResolver(kinds ...domain.MediaKind) *Resolver {
	enabled := make(map[domain.MediaKind]bool, len(precedence))
	if len(kinds) == 0 {
		kinds = precedence
	}
	for _, k := range kinds {
		enabled[k] = true
	}
	return &Resolver{enabled: enabled}
}

// Resolve returns the attachment to process and true, or false when the
// update carries nothing usable. A document wins over photos, photos win over
// a video, and among photos the last (largest) size is taken.
func (r *Resolver) Resolve(u domain.InboundUpdate) (domain.Attachment, bool) {
	for _, kind := range precedence {
		if !r.enabled[kind] {
			continue
		}
		if att, ok := pick(u, kind); ok {
			return att, true
		}
	}
	return domain.Attachment{}, false
}

func pick(u domain.InboundUpdate, kind domain.MediaKind) (domain.Attachment, bool) {
	var att domain.Attachment
	switch kind {
	case domain.MediaDocument:
		if u.Document == nil {
			return att, false
		}
		att = *u.Document
	case domain.MediaPhoto:
		if len(u.Photos) == 0 {
			return att, false
		}
		att = u.Photos[len(u.Photos)-1]
	case domain.MediaVideo:
		if u.Video == nil {
			return att, false
		}
		att = *u.Video
	default:
		return att, false
	}
	if att.FileID == "" {
		return domain.Attachment{}, false
	}
	att.Kind = kind
	return att, true
}
