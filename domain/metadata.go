package domain

import (
	"fmt"

	"chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

// Metadata is the wire-level carrier for per-type message attributes.
// It is an open shape on the wire; ValidateMetadata narrows it to the
// variant required by the declared message type before a message may be
// constructed.
type Metadata struct {
	FileName  string  `json:"fileName,omitempty"`
	FileSize  int64   `json:"fileSize,omitempty"`
	URL       string  `json:"url,omitempty"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`

	MentionedUserIDs []UserID `json:"mentionedUserIds,omitempty"`
	MentionAll       bool     `json:"mentionAll,omitempty"`
}

var validate = validator.New()

// One struct per message type: the tagged variants that Metadata must
// satisfy. Keeping them separate makes the required shape explicit
// instead of an ad hoc field-presence check.
type fileMetadata struct {
	FileName string `validate:"required"`
	FileSize int64  `validate:"required,gt=0"`
	URL      string `validate:"required"`
}

type imageMetadata struct {
	URL    string `validate:"required"`
	Width  int    `validate:"required,gt=0"`
	Height int    `validate:"required,gt=0"`
}

type timedMediaMetadata struct {
	URL      string  `validate:"required"`
	Duration float64 `validate:"required,gt=0"`
}

type linkMetadata struct {
	URL string `validate:"required"`
}

// ValidateMetadata checks that m carries the variant required by t.
// TEXT messages need no metadata at all. The check happens before any
// persistence; a mismatch must abort the send with zero side effects.
func ValidateMetadata(t MessageType, m *Metadata) error {
	switch t {
	case TypeText:
		return nil
	case TypeFile:
		if m == nil {
			return ErrMetadataShape(t, "fileName, fileSize and url are required")
		}
		return wrapShape(t, validate.Struct(fileMetadata{
			FileName: m.FileName,
			FileSize: m.FileSize,
			URL:      m.URL,
		}))
	case TypeImage:
		if m == nil {
			return ErrMetadataShape(t, "url, width and height are required")
		}
		return wrapShape(t, validate.Struct(imageMetadata{
			URL:    m.URL,
			Width:  m.Width,
			Height: m.Height,
		}))
	case TypeVoice, TypeVideo:
		if m == nil {
			return ErrMetadataShape(t, "url and duration are required")
		}
		return wrapShape(t, validate.Struct(timedMediaMetadata{
			URL:      m.URL,
			Duration: m.Duration,
		}))
	case TypeLink:
		if m == nil {
			return ErrMetadataShape(t, "url is required")
		}
		return wrapShape(t, validate.Struct(linkMetadata{URL: m.URL}))
	default:
		return ErrMetadataShape(t, "unknown message type")
	}
}

// ErrMetadataShape builds a validation failure for a metadata/type
// mismatch, chained to the shared sentinel so callers can classify it.
func ErrMetadataShape(t MessageType, detail string) error {
	return fmt.Errorf("%w: %s message: %s", errors.ErrInvalidMetadata, t, detail)
}

func wrapShape(t MessageType, err error) error {
	if err == nil {
		return nil
	}
	return ErrMetadataShape(t, err.Error())
}
