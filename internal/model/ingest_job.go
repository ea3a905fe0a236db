package model

// IngestJob is the queue payload that moves document processing off the
// upload request path. Data is the raw uploaded bytes; JSON encodes it
// as base64.
type IngestJob struct {
	DocumentID  uint   `json:"document_id"`
	UserID      uint   `json:"user_id"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}
