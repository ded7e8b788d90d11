// ABOUTME: ICY metadata handling for Shoutcast-style streams
// ABOUTME: Strips interleaved metadata blocks and extracts StreamTitle
package engine

import (
	"bufio"
	"io"
	"strings"
)

// icyReader removes the metadata blocks a Shoutcast-style server
// interleaves every metaint audio bytes, delivering clean audio through
// Read and titles through onTitle. With metaint <= 0 it is a plain
// passthrough.
type icyReader struct {
	src     *bufio.Reader
	metaint int
	until   int // audio bytes left before the next metadata block
	onTitle func(string)

	lastTitle string
}

func newICYReader(r io.Reader, metaint int, onTitle func(string)) *icyReader {
	return &icyReader{
		src:     bufio.NewReaderSize(r, 4096),
		metaint: metaint,
		until:   metaint,
		onTitle: onTitle,
	}
}

func (r *icyReader) Read(p []byte) (int, error) {
	if r.metaint <= 0 {
		return r.src.Read(p)
	}

	if r.until == 0 {
		if err := r.readMetaBlock(); err != nil {
			return 0, err
		}
		r.until = r.metaint
	}

	if len(p) > r.until {
		p = p[:r.until]
	}
	n, err := r.src.Read(p)
	r.until -= n
	return n, err
}

// readMetaBlock consumes one length byte plus its 16-byte-unit payload.
func (r *icyReader) readMetaBlock() error {
	lenByte, err := r.src.ReadByte()
	if err != nil {
		return err
	}
	metaLen := int(lenByte) * 16
	if metaLen == 0 {
		return nil
	}

	block := make([]byte, metaLen)
	if _, err := io.ReadFull(r.src, block); err != nil {
		return err
	}

	// Servers resend the current title in every block; report only
	// changes so the log carries one entry per track.
	if title, ok := parseStreamTitle(string(block)); ok && title != r.lastTitle {
		r.lastTitle = title
		if r.onTitle != nil {
			r.onTitle(title)
		}
	}
	return nil
}

// parseStreamTitle extracts the StreamTitle='...' value from a metadata
// block. Blocks are NUL-padded to a 16-byte multiple.
func parseStreamTitle(block string) (string, bool) {
	block = strings.TrimRight(block, "\x00")

	const marker = "StreamTitle='"
	start := strings.Index(block, marker)
	if start < 0 {
		return "", false
	}
	rest := block[start+len(marker):]
	end := strings.Index(rest, "';")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
