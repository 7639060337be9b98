package document

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TypeDamageCheck is the document type of the damage check collected at return.
const TypeDamageCheck = "damage_check"

var ErrNoReservation = errors.New("document requires a saved reservation")

// Document is an attachment owned by a reservation or a maintenance block.
type Document struct {
	ID                 int64     `json:"id"`
	ReservationID      *int64    `json:"reservationId,omitempty"`
	MaintenanceBlockID *int64    `json:"maintenanceBlockId,omitempty"`
	DocumentType       string    `json:"documentType"`
	FileName           string    `json:"fileName"`
	FilePath           string    `json:"filePath"`
	ContentType        string    `json:"contentType"`
	CreatedAt          time.Time `json:"createdAt"`
}

// File is an upload that has not been stored yet.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Uploader interface {
	UploadDocument(ctx context.Context, reservationID int64, documentType string, f File) (Document, error)
}

// UploadResult is the outcome of one file of an UploadAll call. Exactly one
// of Document and Err is set.
type UploadResult struct {
	FileName string
	Document *Document
	Err      error
}

// UploadAll uploads files concurrently. A failing upload is reported in its
// own result and never affects the others. Results keep the order of files.
func UploadAll(ctx context.Context, u Uploader, reservationID int64, documentType string, files []File) []UploadResult {
	results := make([]UploadResult, len(files))
	if reservationID == 0 {
		for i, f := range files {
			results[i] = UploadResult{FileName: f.Name, Err: ErrNoReservation}
		}
		return results
	}

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := u.UploadDocument(ctx, reservationID, documentType, f)
			if err != nil {
				results[i] = UploadResult{FileName: f.Name, Err: err}
				return
			}
			results[i] = UploadResult{FileName: f.Name, Document: &doc}
		}()
	}
	wg.Wait()

	return results
}

// Failed returns the results that carry an error.
func Failed(results []UploadResult) []UploadResult {
	var out []UploadResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
