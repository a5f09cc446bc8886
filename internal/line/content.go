package line

import (
	"bytes"
	"log/slog"

	"github.com/disintegration/imaging"
)

// maxInlineImageBytes is the size above which downloaded images get
// re-encoded before forwarding to backends.
const maxInlineImageBytes = 5 << 20

const resizeEdge = 1024

// NormalizeImage downscales an oversized image to fit within
// resizeEdge x resizeEdge. Content that fails to decode is returned
// unchanged; the backend decides what to do with it.
func NormalizeImage(data []byte) []byte {
	if len(data) <= maxInlineImageBytes {
		return data
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("image decode failed, forwarding as-is", "bytes", len(data), "error", err)
		return data
	}
	fitted := imaging.Fit(img, resizeEdge, resizeEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		slog.Debug("image re-encode failed, forwarding as-is", "error", err)
		return data
	}
	slog.Debug("downscaled oversized image", "from", len(data), "to", buf.Len())
	return buf.Bytes()
}
