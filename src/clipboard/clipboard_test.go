package clipboard

import (
	"image"
	"testing"
)

func TestWrite(t *testing.T) {
	// Requires a clipboard; headless environments only log.
	if err := Write("test text"); err != nil {
		t.Logf("Failed to write to clipboard: %v", err)
		return
	}
	got, err := Read()
	if err != nil {
		t.Logf("Failed to read clipboard: %v", err)
		return
	}
	if got != "test text" {
		t.Logf("clipboard changed underneath the test: %q", got)
	}
}

func TestWriteImageRejectsEmpty(t *testing.T) {
	if err := WriteImage(nil); err == nil {
		t.Error("expected error for nil image")
	}
	if err := WriteImage(image.NewRGBA(image.Rectangle{})); err == nil {
		t.Error("expected error for empty image")
	}
}

func TestWriteImage(t *testing.T) {
	if err := WriteImage(image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Logf("Failed to write image to clipboard: %v", err)
	}
}
