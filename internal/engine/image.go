package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// writeStubImage renders a minimal placeholder image for a graph named
// name to path, standing in for the real engine's graph export. No example
// in the reference pack exercises an image-encoding library, so this one
// narrow leaf uses the standard library's image/png rather than inventing a
// third-party dependency with nothing else to ground it on.
func writeStubImage(path, name string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph export dir: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graph export file %s: %w", name, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode graph export %s: %w", name, err)
	}
	return nil
}
