package middleware

import (
	"bytes"
	"net/http"
)

// bufferedWriter holds the handler response so it can be inspected before
// anything reaches the client.
type bufferedWriter struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header), status: http.StatusOK}
}

func (w *bufferedWriter) Header() http.Header {
	return w.header
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

func (w *bufferedWriter) WriteHeader(status int) {
	w.status = status
}

// maxStreamCapture bounds how much of a stream is kept for post-hoc validation.
const maxStreamCapture = 1 << 20

// teeWriter forwards a streamed response as it is written and keeps a copy.
type teeWriter struct {
	http.ResponseWriter
	captured bytes.Buffer
}

func newTeeWriter(w http.ResponseWriter) *teeWriter {
	return &teeWriter{ResponseWriter: w}
}

func (w *teeWriter) Write(p []byte) (int, error) {
	if room := maxStreamCapture - w.captured.Len(); room > 0 {
		w.captured.Write(p[:min(len(p), room)])
	}
	return w.ResponseWriter.Write(p)
}

func (w *teeWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *teeWriter) Captured() []byte {
	return w.captured.Bytes()
}
