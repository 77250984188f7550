package models

import "io"

// CleanStatusSuccess is the only status value that counts as a successful clean.
const CleanStatusSuccess = "success"

// CleanResult is the cleaning service's response to an upload.
type CleanResult struct {
	Status        string       `json:"status"`
	DownloadToken string       `json:"download_token"`
	OriginalRows  *int         `json:"original_rows,omitempty"`
	CleanedRows   *int         `json:"cleaned_rows,omitempty"`
	Sample        []PreviewRow `json:"cleaned_data_sample,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// PreviewRow is one row of the cleaned sample shown before payment.
type PreviewRow struct {
	Title       string `json:"title"`
	URL         string `json:"url_clean"`
	Description string `json:"description"`
	Revenue     any    `json:"revenue($)"`
}

// Succeeded reports whether the service accepted the file and issued a token.
func (r *CleanResult) Succeeded() bool {
	return r != nil && r.Status == CleanStatusSuccess && r.DownloadToken != ""
}

// Upload is a file selected for cleaning. Body is consumed by the request
// that submits it.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}
