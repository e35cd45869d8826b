package domain

import (
	"testing"

	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestValidateMetadata_Text_Needs_Nothing(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateMetadata(TypeText, nil))
	req.NoError(ValidateMetadata(TypeText, &Metadata{MentionAll: true}))
}

func TestValidateMetadata_File(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateMetadata(TypeFile, &Metadata{
		FileName: "report.pdf",
		FileSize: 2048,
		URL:      "https://cdn/x/report.pdf",
	}))
	req.ErrorIs(ValidateMetadata(TypeFile, nil), errors.ErrInvalidMetadata)
	req.ErrorIs(ValidateMetadata(TypeFile, &Metadata{FileName: "report.pdf"}), errors.ErrInvalidMetadata)
}

func TestValidateMetadata_Image(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateMetadata(TypeImage, &Metadata{
		URL:    "https://cdn/x/pic.jpg",
		Width:  640,
		Height: 480,
	}))
	req.ErrorIs(ValidateMetadata(TypeImage, &Metadata{URL: "https://cdn/x/pic.jpg"}), errors.ErrInvalidMetadata)
}

func TestValidateMetadata_Timed_Media(t *testing.T) {
	req := require.New(t)
	valid := &Metadata{URL: "https://cdn/x/clip", Duration: 12.5}

	req.NoError(ValidateMetadata(TypeVoice, valid))
	req.NoError(ValidateMetadata(TypeVideo, valid))
	req.ErrorIs(ValidateMetadata(TypeVoice, &Metadata{URL: "https://cdn/x/clip"}), errors.ErrInvalidMetadata)
}

func TestValidateMetadata_Link(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateMetadata(TypeLink, &Metadata{URL: "https://example.com"}))
	req.ErrorIs(ValidateMetadata(TypeLink, &Metadata{}), errors.ErrInvalidMetadata)
}

func TestValidateMetadata_Unknown_Type(t *testing.T) {
	req := require.New(t)

	req.ErrorIs(ValidateMetadata(MessageType("STICKER"), nil), errors.ErrInvalidMetadata)
}
