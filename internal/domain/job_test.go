package domain

import (
	"errors"
	"testing"

	"github.com/dunamismax/pixelconvert/internal/convert"
)

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SourceType:   SourceTypeS3Presigned,
		SourceFormat: "PNG",
		TargetFormat: "webp",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateJobRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateJobRequest{
		SourceType:   SourceTypeLocalFile,
		TargetFormat: "jpg",
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file object_key")
	}

	unsupportedSourceType := CreateJobRequest{
		SourceType:   "http_url",
		TargetFormat: "jpg",
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	unsupportedTarget := CreateJobRequest{
		SourceType:   SourceTypeLocalFile,
		ObjectKey:    "/data/in.png",
		TargetFormat: "xcf",
	}
	if err := unsupportedTarget.Validate(); !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported target format, got %v", err)
	}

	presignedWithoutFormat := CreateJobRequest{
		SourceType:   SourceTypeS3Presigned,
		TargetFormat: "png",
	}
	if err := presignedWithoutFormat.Validate(); err == nil {
		t.Fatal("expected validation error for presigned upload without source_format")
	}
}

func TestResolveSourceFormatFromObjectKey(t *testing.T) {
	req := CreateJobRequest{SourceType: SourceTypeLocalFile, ObjectKey: "/data/scan.TIFF", TargetFormat: "png"}
	got, err := req.ResolveSourceFormat()
	if err != nil {
		t.Fatalf("resolve source format: %v", err)
	}
	if got != convert.FormatTIFF {
		t.Fatalf("expected tiff, got %s", got)
	}

	req.ObjectKey = "/data/notes.txt"
	if _, err := req.ResolveSourceFormat(); !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestLocalFileSourceFormatMustMatchExtension(t *testing.T) {
	mismatch := CreateJobRequest{
		SourceType:   SourceTypeLocalFile,
		ObjectKey:    "/data/photo.png",
		SourceFormat: "jpg",
		TargetFormat: "webp",
	}
	if err := mismatch.Validate(); err == nil {
		t.Fatal("expected mismatched source_format to be rejected")
	}

	alias := CreateJobRequest{
		SourceType:   SourceTypeLocalFile,
		ObjectKey:    "/data/photo.JPEG",
		SourceFormat: "jpg",
		TargetFormat: "webp",
	}
	got, err := alias.ResolveSourceFormat()
	if err != nil {
		t.Fatalf("expected jpeg spellings to agree, got %v", err)
	}
	if got != convert.FormatJPEG {
		t.Fatalf("expected the extension format jpeg, got %s", got)
	}

	presigned := CreateJobRequest{SourceType: SourceTypeS3Presigned, SourceFormat: "heic", TargetFormat: "jpg"}
	if got, err := presigned.ResolveSourceFormat(); err != nil || got != convert.FormatHEIC {
		t.Fatalf("expected declared heic for presigned upload, got %s, %v", got, err)
	}
}

func TestResolveQuality(t *testing.T) {
	req := CreateJobRequest{}
	if got := req.ResolveQuality(90); got != 90 {
		t.Fatalf("expected fallback 90, got %d", got)
	}

	high := 250
	req.Quality = &high
	if got := req.ResolveQuality(90); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}

	zero := 0
	req.Quality = &zero
	if got := req.ResolveQuality(90); got != 0 {
		t.Fatalf("expected explicit 0 to be kept, got %d", got)
	}
}
