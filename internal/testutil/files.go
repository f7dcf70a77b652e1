package testutil

import "docstage/internal/stage"

// NewFile builds a valid stage.File whose size matches its content.
func NewFile(name, content string, sourceModifiedAt int64) stage.File {
	return stage.File{
		Name:             name,
		MimeType:         "application/pdf",
		SizeBytes:        int64(len(content)),
		SourceModifiedAt: sourceModifiedAt,
		Payload:          []byte(content),
	}
}
