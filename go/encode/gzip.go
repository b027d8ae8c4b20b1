package encode

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// Sink is the byte stream leaving an encoder, optionally piped through
// gzip before it reaches the client. It exists so the pipeline treats
// compressed and plain outputs identically.
type Sink struct {
	w  io.Writer
	gz *gzip.Writer
}

// NewSink wraps |w|. When |compress| is set, encoder output is gzipped at
// the default level on its way through.
func NewSink(w io.Writer, compress bool) *Sink {
	var s = &Sink{w: w}
	if compress {
		s.gz = gzip.NewWriter(w)
		s.w = s.gz
	}
	return s
}

func (s *Sink) Write(p []byte) (int, error) { return s.w.Write(p) }

// Close flushes the gzip trailer, if any. It never closes the wrapped
// writer.
func (s *Sink) Close() error {
	if s.gz != nil {
		return s.gz.Close()
	}
	return nil
}
