package envelope

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultMaxPayloadBytes is the threshold/ceiling used when the bus hasn't
// reported a smaller maximum. It is both the trigger for compression and the
// hard limit a compressed message must still respect (§4.1 Rationale): a
// message that barely fits uncompressed always ships as-is, and any message
// forced to compress is verified to still respect the ceiling.
const DefaultMaxPayloadBytes = 1 << 20 // 1 MiB

// gzipMagic is the two-byte prefix klauspost/compress/gzip (and stdlib gzip)
// writes at the start of every stream; §6 uses it as the receive-side
// sniffing signal instead of a side-channel flag in the envelope.
var gzipMagic = []byte{0x1f, 0x8b}

// ErrPayloadTooLarge is returned by Encode when the envelope, even after
// maximum-effort compression, still exceeds maxPayloadBytes.
var ErrPayloadTooLarge = errors.New("envelope: payload too large")

// ErrMalformed is returned by Decode when the input cannot be decompressed
// or deserialised into an Envelope.
var ErrMalformed = errors.New("envelope: malformed")

// Encode serialises env to msgpack bytes. If the serialised size exceeds
// maxPayloadBytes, it is compressed at maximum effort; if the compressed
// size still exceeds maxPayloadBytes, Encode fails with ErrPayloadTooLarge.
// A zero, negative or larger-than-default maxPayloadBytes means
// DefaultMaxPayloadBytes; a smaller bus-reported ceiling replaces it.
func Encode(env *Envelope, maxPayloadBytes int) ([]byte, error) {
	if maxPayloadBytes <= 0 || maxPayloadBytes > DefaultMaxPayloadBytes {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}

	raw, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal: %w", err)
	}
	if len(raw) <= maxPayloadBytes {
		return raw, nil
	}

	compressed, err := compress(raw)
	if err != nil {
		return nil, fmt.Errorf("envelope: compress: %w", err)
	}
	if len(compressed) > maxPayloadBytes {
		return nil, fmt.Errorf("%w: %d bytes raw, %d bytes compressed, ceiling %d",
			ErrPayloadTooLarge, len(raw), len(compressed), maxPayloadBytes)
	}
	return compressed, nil
}

// Decode sniffs the gzip magic prefix, decompressing first if present, then
// deserialises the result into an Envelope. Corrupt input fails with
// ErrMalformed.
func Decode(data []byte) (*Envelope, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		decompressed, err := decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		data = decompressed
	}

	var env Envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &env, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
