package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeRLE encodes a layer of tile bytes into base64(varint pairs).
// The pairs are (value, run_len) repeated.
func EncodeRLE(cells []byte) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(cells) {
		v := cells[i]
		run := 1
		for j := i + 1; j < len(cells) && cells[j] == v; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. size is the expected cell count; decoding
// fails if the runs do not add up to it.
func DecodeRLE(b64 string, size int) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, size)
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFF {
			return nil, fmt.Errorf("cell value too large: %d", v)
		}
		if run > uint64(size-len(out)) {
			return nil, fmt.Errorf("run of %d overflows %d cells", run, size)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, byte(v))
		}
	}
	if len(out) != size {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), size)
	}
	return out, nil
}
