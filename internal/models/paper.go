package models

import "time"

// Paper represents one uploaded PDF document. The ID is the opaque token
// the backend assigned on upload; it keys every later summary and chat
// request for the document.
type Paper struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	PDFPath    string    `json:"pdf_path,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}
