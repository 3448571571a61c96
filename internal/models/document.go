package models

import "time"

// Allocation links a document to the investment it reports on.
type Allocation struct {
	Investment string `json:"investment,omitempty" yaml:"investment,omitempty"`
}

// DocumentRef identifies one source document in a batch. Type, date and
// allocations are optional; documents rebuilt from the failure ledger carry
// only an ID and a name.
type DocumentRef struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	DocumentType string       `json:"document_type,omitempty"`
	DataDate     string       `json:"data_date,omitempty"`
	Allocations  []Allocation `json:"allocations,omitempty"`
}

// Investment returns the fund name from the first allocation.
func (d DocumentRef) Investment() string {
	if len(d.Allocations) > 0 && d.Allocations[0].Investment != "" {
		return d.Allocations[0].Investment
	}
	return "Unknown"
}

// Type returns the document type, defaulting to "Unknown".
func (d DocumentRef) Type() string {
	if d.DocumentType == "" {
		return "Unknown"
	}
	return d.DocumentType
}

// DocumentInfo is what the destinations receive once a document has been
// downloaded and summarized.
type DocumentInfo struct {
	Ref       DocumentRef
	FileName  string
	FileHash  string
	PageCount int
	PDF       []byte
	Summary   string
}

// SummaryRecord is the catalog entry written to Firestore for each
// summarized document.
type SummaryRecord struct {
	DocumentID   string    `firestore:"documentId"`
	Name         string    `firestore:"name"`
	FileName     string    `firestore:"fileName,omitempty"`
	FileHash     string    `firestore:"fileHash,omitempty"`
	DocumentType string    `firestore:"documentType,omitempty"`
	DataDate     string    `firestore:"dataDate,omitempty"`
	Investment   string    `firestore:"investment,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	Summary      string    `firestore:"summary"`
	WikiURL      string    `firestore:"wikiUrl,omitempty"`
	DuplicateOf  string    `firestore:"duplicateOf,omitempty"` // Earlier document with the same fileHash
	Status       string    `firestore:"status"`
	CreatedAt    time.Time `firestore:"createdAt"`
}
