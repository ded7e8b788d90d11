// ABOUTME: Sample rate conversion for the fixed-rate output device
// ABOUTME: Linear interpolation over interleaved stereo 16-bit PCM
package engine

import (
	"encoding/binary"
	"io"
)

// resampleStereo converts interleaved stereo int16 PCM from one sample
// rate to another using linear interpolation. Returns src unchanged
// when no conversion is needed.
func resampleStereo(src []int16, from, to int) []int16 {
	if from == to || from <= 0 || to <= 0 || len(src) < 4 {
		return src
	}

	frames := len(src) / 2
	outFrames := int(float64(frames) * float64(to) / float64(from))
	if outFrames == 0 {
		return nil
	}

	out := make([]int16, outFrames*2)
	step := float64(from) / float64(to)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= frames {
			next = frames - 1
		}
		for ch := 0; ch < 2; ch++ {
			a := float64(src[idx*2+ch])
			b := float64(src[next*2+ch])
			out[i*2+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}

// resampleReader converts a PCM byte stream between sample rates on the
// fly. Source bytes are interleaved stereo int16 little-endian, the
// format the MP3 decoder produces. Reads pull whole chunks from the
// source so each conversion sees enough frames to interpolate over.
type resampleReader struct {
	src      io.Reader
	from, to int

	raw     []byte // chunk read buffer
	pending []byte // source bytes not yet forming a whole frame
	out     []byte // converted bytes ready for the caller
	err     error  // terminal source error, delivered once out drains
}

func newResampleReader(src io.Reader, from, to int) *resampleReader {
	return &resampleReader{
		src:  src,
		from: from,
		to:   to,
		raw:  make([]byte, 8192),
	}
}

func (r *resampleReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.err != nil {
			return 0, r.err
		}

		n, err := io.ReadFull(r.src, r.raw)
		if n > 0 {
			r.pending = append(r.pending, r.raw[:n]...)
			usable := len(r.pending) &^ 3 // whole stereo frames only
			if usable > 0 {
				samples := bytesToSamples(r.pending[:usable])
				r.out = samplesToBytes(resampleStereo(samples, r.from, r.to))
				r.pending = append(r.pending[:0], r.pending[usable:]...)
			}
		}
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			r.err = err
		}
	}

	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
