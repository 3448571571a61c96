package services

import (
	"context"
	"testing"

	"github.com/Lllllllleong/financialdocumentflow/internal/models"
)

func TestParseDestinations(t *testing.T) {
	got, err := ParseDestinations("notion, Sheets,firestore,,archive,sqlite")
	if err != nil {
		t.Fatalf("ParseDestinations() error = %v", err)
	}
	want := DestinationOptions{Notion: true, Sheets: true, Firestore: true, Archive: true, Catalog: true}
	if got != want {
		t.Errorf("ParseDestinations() = %+v, want %+v", got, want)
	}

	if got, err := ParseDestinations(""); err != nil || got != (DestinationOptions{}) {
		t.Errorf("ParseDestinations(\"\") = %+v, %v", got, err)
	}
	if _, err := ParseDestinations("slack"); err == nil {
		t.Error("ParseDestinations() expected error for unknown destination")
	}
}

func TestUploadSummarizerSkipsOwnOutput(t *testing.T) {
	f := &UploadSummarizerFunction{archiveBucket: "fund-archive"}
	tests := []models.GCSEvent{
		{Bucket: "fund-archive", Name: "doc_1/source.pdf", ContentType: "application/pdf"},
		{Bucket: "fund-inbox", Name: "notes.txt", ContentType: "text/plain"},
	}
	for _, e := range tests {
		if err := f.Process(context.Background(), e); err != nil {
			t.Errorf("Process(%s/%s) error = %v, want skip", e.Bucket, e.Name, err)
		}
	}
}
