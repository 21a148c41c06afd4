package zipstream

import (
	"archive/zip"
	"io"
	"time"
)

// Writer assembles a zip archive on the fly. Entries are stored uncompressed
// so backend payload streams can be copied straight into the response without
// buffering the archive in memory.
type Writer struct {
	zw *zip.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// Add appends one entry. name uses forward slashes relative to the archive
// root.
func (w *Writer) Add(name string, modTime time.Time, r io.Reader) error {
	entry, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: modTime,
	})
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, r)
	return err
}

// Close flushes the central directory. The archive is unreadable until Close
// returns.
func (w *Writer) Close() error {
	return w.zw.Close()
}
