package record

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"
)

// Encoder turns mono float32 PCM into an encoded byte stream. Encoders are
// stateful and belong to a single recording session.
//
// Encode may buffer internally (codec frame alignment); Flush drains whatever
// remains. Assemble builds the final container from the accumulated chunks so
// headers that depend on the total length (RIFF sizes) can be written last.
type Encoder interface {
	// Name is the preference-list identifier ("wav", "opus").
	Name() string

	// MIMEType is the media type of the assembled clip.
	MIMEType() string

	// Encode consumes a buffer of samples and returns any encoded bytes that
	// became available. The returned slice may be empty.
	Encode(samples []float32) ([]byte, error)

	// Flush returns any remaining buffered bytes.
	Flush() ([]byte, error)

	// Assemble builds the final clip payload from the ordered chunks produced
	// by Encode and Flush.
	Assemble(chunks [][]byte) ([]byte, error)
}

// EncoderFactory constructs an encoder for the given capture sample rate, or
// reports that the encoding is unavailable for that format. Probing happens at
// recording start so a misconfigured preference list degrades instead of
// failing.
type EncoderFactory func(sampleRate int) (Encoder, error)

// encoderFactories maps preference-list names to constructors.
var encoderFactories = map[string]EncoderFactory{
	"wav":  newWAVEncoder,
	"opus": newOpusEncoder,
}

// selectEncoder walks the preference list in order and returns the first
// encoding the platform supports at this sample rate.
func selectEncoder(preferences []string, sampleRate int) (Encoder, error) {
	var lastErr error
	for _, name := range preferences {
		factory, ok := encoderFactories[name]
		if !ok {
			lastErr = fmt.Errorf("unknown encoding %q", name)
			continue
		}
		enc, err := factory(sampleRate)
		if err != nil {
			lastErr = err
			continue
		}
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNoSupportedFormat, lastErr)
}

// ─── WAV ─────────────────────────────────────────────────────────────────────

// wavEncoder produces 16-bit mono PCM in a RIFF/WAVE container. The data body
// streams out chunk by chunk; the 44-byte header is written by Assemble once
// the total length is known.
type wavEncoder struct {
	sampleRate int
}

func newWAVEncoder(sampleRate int) (Encoder, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wav: invalid sample rate %d", sampleRate)
	}
	return &wavEncoder{sampleRate: sampleRate}, nil
}

func (e *wavEncoder) Name() string     { return "wav" }
func (e *wavEncoder) MIMEType() string { return "audio/wav" }

func (e *wavEncoder) Encode(samples []float32) ([]byte, error) {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out, nil
}

func (e *wavEncoder) Flush() ([]byte, error) { return nil, nil }

func (e *wavEncoder) Assemble(chunks [][]byte) ([]byte, error) {
	dataLen := 0
	for _, c := range chunks {
		dataLen += len(c)
	}

	out := make([]byte, 0, 44+dataLen)
	hdr := make([]byte, 44)
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataLen))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], 1) // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(e.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(e.sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(hdr[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                     // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataLen))

	out = append(out, hdr...)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// ─── Opus ────────────────────────────────────────────────────────────────────

// Opus operates on fixed 20 ms frames and only supports a handful of sample
// rates, which makes it the natural capability-probe case for the preference
// list: at an unsupported capture rate the factory fails and selection falls
// through to WAV.
const opusFrameMs = 20

// opusEncoder produces a stream of Opus packets, each prefixed with a u16
// little-endian length. Compact compared to WAV, at the cost of requiring the
// backend to understand the packet framing.
type opusEncoder struct {
	enc        *gopus.Encoder
	sampleRate int
	frameSize  int
	pending    []int16
}

func newOpusEncoder(sampleRate int) (Encoder, error) {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return nil, fmt.Errorf("opus: unsupported sample rate %d", sampleRate)
	}
	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &opusEncoder{
		enc:        enc,
		sampleRate: sampleRate,
		frameSize:  sampleRate * opusFrameMs / 1000,
	}, nil
}

func (e *opusEncoder) Name() string     { return "opus" }
func (e *opusEncoder) MIMEType() string { return "audio/opus" }

func (e *opusEncoder) Encode(samples []float32) ([]byte, error) {
	for _, s := range samples {
		v := s
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		e.pending = append(e.pending, int16(v*32767))
	}

	var out []byte
	for len(e.pending) >= e.frameSize {
		frame := e.pending[:e.frameSize]
		e.pending = e.pending[e.frameSize:]

		pkt, err := e.enc.Encode(frame, e.frameSize, e.frameSize*2)
		if err != nil {
			return nil, fmt.Errorf("opus: encode: %w", err)
		}
		out = appendPacket(out, pkt)
	}
	return out, nil
}

func (e *opusEncoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	// Pad the trailing partial frame with silence to frame alignment.
	frame := make([]int16, e.frameSize)
	copy(frame, e.pending)
	e.pending = nil

	pkt, err := e.enc.Encode(frame, e.frameSize, e.frameSize*2)
	if err != nil {
		return nil, fmt.Errorf("opus: flush: %w", err)
	}
	return appendPacket(nil, pkt), nil
}

func (e *opusEncoder) Assemble(chunks [][]byte) ([]byte, error) {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out, nil
}

// appendPacket appends a length-prefixed packet to out.
func appendPacket(out, pkt []byte) []byte {
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(pkt)))
	out = append(out, l[:]...)
	return append(out, pkt...)
}
