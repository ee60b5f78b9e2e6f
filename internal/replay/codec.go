package replay

import (
	"bytes"
	"encoding/gob"

	"github.com/klauspost/compress/zstd"

	"github.com/dolphie-go/dolphie/internal/dolphieerr"
)

// dictionaryTrainingSize is the number of payloads buffered before a
// dictionary is trained.
const dictionaryTrainingSize = 10

// encodePayload gob-encodes a Payload to bytes, uncompressed. Compression is
// a separate step so the dictionary trainer can inspect raw encoded bytes.
func encodePayload(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "encoding replay payload")
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&p); err != nil {
		return Payload{}, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "decoding replay payload")
	}
	return p, nil
}

// dictionaryTrainer buffers the first N encoded payloads and, once full,
// produces a content dictionary: the concatenation of buffered samples,
// truncated to a bound size. klauspost/compress/zstd has no COVER-style
// dictionary trainer, so this module uses zstd's raw-content dictionary
// support instead of a trained one; see DESIGN.md.
type dictionaryTrainer struct {
	samples [][]byte
}

func newDictionaryTrainer() *dictionaryTrainer {
	return &dictionaryTrainer{}
}

// maxDictionarySize bounds the content dictionary so it stays small relative
// to the payloads it helps compress.
const maxDictionarySize = 64 * 1024

// Add buffers one encoded sample. It returns the trained dictionary once the
// buffer reaches dictionaryTrainingSize, and nil before that.
func (t *dictionaryTrainer) Add(encoded []byte) []byte {
	if t.samples == nil {
		t.samples = make([][]byte, 0, dictionaryTrainingSize)
	}
	if len(t.samples) >= dictionaryTrainingSize {
		return nil
	}
	t.samples = append(t.samples, encoded)
	if len(t.samples) < dictionaryTrainingSize {
		return nil
	}
	var buf bytes.Buffer
	for _, s := range t.samples {
		buf.Write(s)
		if buf.Len() >= maxDictionarySize {
			break
		}
	}
	dict := buf.Bytes()
	if len(dict) > maxDictionarySize {
		dict = dict[:maxDictionarySize]
	}
	return dict
}

// compressor wraps a zstd encoder/decoder pair, optionally bound to an
// immutable content dictionary for the life of a replay file.
type compressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCompressor(dict []byte) (*compressor, error) {
	var encOpts []zstd.EOption
	var decOpts []zstd.DOption
	if len(dict) > 0 {
		// Raw content, not a zstd-format dictionary: register it under a
		// fixed non-zero id on both sides.
		encOpts = append(encOpts, zstd.WithEncoderDictRaw(1, dict))
		decOpts = append(decOpts, zstd.WithDecoderDictRaw(1, dict))
	}
	enc, err := zstd.NewWriter(nil, encOpts...)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "constructing zstd encoder")
	}
	dec, err := zstd.NewReader(nil, decOpts...)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "constructing zstd decoder")
	}
	return &compressor{enc: enc, dec: dec}, nil
}

func (c *compressor) Compress(data []byte) []byte {
	return c.enc.EncodeAll(data, nil)
}

func (c *compressor) Decompress(data []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, dolphieerr.Wrap(dolphieerr.ReplayFormat, err, "decompressing replay payload")
	}
	return out, nil
}

func (c *compressor) Close() {
	c.enc.Close()
	c.dec.Close()
}
