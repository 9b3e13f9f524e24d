// Package background writes the output artifact: a one-line shell command
// that a session startup hook evaluates to set the desktop background, e.g.
//
//	eval $(cat ~/.fehbg)
package background

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ImagePath builds the absolute image path home/slidesDir/stem.ext.
func ImagePath(home, slidesDir, stem, ext string) string {
	return filepath.Join(home, slidesDir, stem+"."+ext)
}

// Command renders the artifact content for viewer and image path.
func Command(viewer, imagePath string) string {
	return viewer + ` "` + imagePath + `"` + "\n"
}

// Writer overwrites the artifact at Path.
type Writer struct {
	Fs     afero.Fs
	Path   string
	Viewer string
}

// Write replaces the artifact with the command for imagePath and returns
// the content written. Previous content is never merged.
func (w *Writer) Write(imagePath string) (string, error) {
	cmd := Command(w.Viewer, imagePath)
	f, err := w.Fs.OpenFile(w.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return cmd, fmt.Errorf("background: open %s: %w", w.Path, err)
	}
	if _, err := f.WriteString(cmd); err != nil {
		f.Close()
		return cmd, fmt.Errorf("background: write %s: %w", w.Path, err)
	}
	if err := f.Close(); err != nil {
		return cmd, fmt.Errorf("background: close %s: %w", w.Path, err)
	}
	return cmd, nil
}
