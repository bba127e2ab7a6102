// Transport compression for API endpoints: response compression negotiated
// from Accept-Encoding (zstd, brotli, or gzip at fast levels) and request
// body decompression based on Content-Encoding.
package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/morphlabs/morphd/internal/server/dto"
)

// compressMiddleware returns a handler that compresses responses based on
// the client's Accept-Encoding header.
func compressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := negotiateEncoding(r.Header.Get("Accept-Encoding"))
		if enc == "" {
			next.ServeHTTP(w, r)
			return
		}
		cw := &compressWriter{ResponseWriter: w, encoding: enc}
		defer cw.finish()
		next.ServeHTTP(cw, r)
	})
}

// negotiateEncoding picks the best encoding the client accepts.
func negotiateEncoding(acceptEncoding string) string {
	accepted := map[string]bool{}
	for part := range strings.SplitSeq(acceptEncoding, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		accepted[strings.TrimSpace(name)] = true
	}
	for _, enc := range []string{"zstd", "br", "gzip"} {
		if accepted[enc] {
			return enc
		}
	}
	return ""
}

// compressWriter wraps http.ResponseWriter to compress the response body.
type compressWriter struct {
	http.ResponseWriter
	encoding     string
	writer       io.WriteCloser
	headerSent   bool
	skipCompress bool
}

func (cw *compressWriter) WriteHeader(code int) {
	cw.initOnce()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *compressWriter) Write(b []byte) (int, error) {
	cw.initOnce()
	if cw.skipCompress {
		return cw.ResponseWriter.Write(b)
	}
	return cw.writer.Write(b)
}

// initOnce inspects response headers to decide whether to compress. Called
// once before the first Write or WriteHeader.
func (cw *compressWriter) initOnce() {
	if cw.headerSent {
		return
	}
	cw.headerSent = true

	h := cw.Header()
	// Skip if the handler already set Content-Encoding.
	if h.Get("Content-Encoding") != "" {
		cw.skipCompress = true
		return
	}

	// Compressed size differs from original; remove Content-Length.
	h.Del("Content-Length")
	h.Set("Content-Encoding", cw.encoding)
	h.Add("Vary", "Accept-Encoding")

	switch cw.encoding {
	case "zstd":
		enc, _ := zstd.NewWriter(cw.ResponseWriter, zstd.WithEncoderLevel(zstd.SpeedFastest))
		cw.writer = enc
	case "br":
		cw.writer = brotli.NewWriterLevel(cw.ResponseWriter, 1)
	case "gzip":
		gz, _ := gzip.NewWriterLevel(cw.ResponseWriter, gzip.BestSpeed)
		cw.writer = gz
	}
}

// finish flushes and closes the compressor.
func (cw *compressWriter) finish() {
	if cw.writer == nil {
		return
	}
	_ = cw.writer.Close()
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

// decompressMiddleware returns a handler that decompresses request bodies
// based on the Content-Encoding header.
func decompressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ce := r.Header.Get("Content-Encoding")
		if ce == "" {
			next.ServeHTTP(w, r)
			return
		}

		var reader io.ReadCloser
		switch ce {
		case "zstd":
			dec, err := zstd.NewReader(r.Body, zstd.WithDecoderMaxMemory(10<<20))
			if err != nil {
				writeError(w, dto.BadRequest("invalid zstd body"))
				return
			}
			reader = dec.IOReadCloser()
		case "br":
			reader = io.NopCloser(brotli.NewReader(r.Body))
		case "gzip":
			gr, err := gzip.NewReader(r.Body)
			if err != nil {
				writeError(w, dto.BadRequest("invalid gzip body"))
				return
			}
			reader = gr
		default:
			writeError(w, dto.BadRequest("unsupported Content-Encoding: "+ce))
			return
		}

		r.Body = reader
		r.Header.Del("Content-Encoding")
		r.ContentLength = -1
		next.ServeHTTP(w, r)
	})
}
