package clamd

import (
	"encoding/binary"
	"io"
	"math"
)

// maxEmptyReads bounds consecutive zero-byte reads before giving up, as bufio does.
const maxEmptyReads = 100

// maxChunkSize is the largest length a chunk prefix can carry. It is a variable
// so the conversion to int compiles where int is 32 bits.
var maxChunkSize uint64 = math.MaxUint32

// Chunk is one INSTREAM frame: a big-endian uint32 length followed by Len payload bytes.
// A zero Len marks the end of the stream.
type Chunk struct {
	Len  uint32
	Data []byte
}

// IsTerminator reports whether c is the end-of-stream marker.
func (c Chunk) IsTerminator() bool {
	return c.Len == 0
}

// Bytes renders the chunk in wire format.
func (c Chunk) Bytes() []byte {
	out := make([]byte, 4, 4+len(c.Data))
	binary.BigEndian.PutUint32(out, c.Len)
	return append(out, c.Data...)
}

// Framer converts a byte source into INSTREAM chunks. It is single use: once the
// terminator has been returned, Next reports io.EOF.
type Framer struct {
	r    io.Reader
	buf  []byte
	done bool
	err  error
}

// NewFramer returns a Framer reading at most chunkSize bytes per chunk.
func NewFramer(r io.Reader, chunkSize int) *Framer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if uint64(chunkSize) > maxChunkSize {
		chunkSize = int(maxChunkSize)
	}
	return &Framer{r: r, buf: make([]byte, chunkSize)}
}

// Next returns the next chunk. Each non-empty read from the source becomes one chunk.
// When the source is exhausted the terminator chunk is returned once, then io.EOF.
// A source error is returned as is and no terminator is ever produced after it.
// The returned Data is only valid until the next call.
func (f *Framer) Next() (Chunk, error) {
	if f.err != nil {
		return Chunk{}, f.err
	}
	if f.done {
		return Chunk{}, io.EOF
	}

	for empty := 0; empty < maxEmptyReads; {
		n, err := f.r.Read(f.buf)
		if n > 0 {
			if err != nil && err != io.EOF {
				f.err = err
			} else if err == io.EOF {
				// the terminator follows on the next call
				f.r = eofReader{}
			}
			return Chunk{Len: uint32(n), Data: f.buf[:n]}, nil
		}
		if err == io.EOF {
			f.done = true
			return Chunk{}, nil
		}
		if err != nil {
			f.err = err
			return Chunk{}, err
		}
		empty++
	}

	f.err = io.ErrNoProgress
	return Chunk{}, f.err
}

// WriteTo writes every chunk, terminator included, to w. It returns the number of
// wire bytes written. If the source fails the terminator is not written.
func (f *Framer) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for {
		c, err := f.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		var prefix [4]byte
		binary.BigEndian.PutUint32(prefix[:], c.Len)
		n, err := w.Write(prefix[:])
		written += int64(n)
		if err != nil {
			return written, err
		}
		if c.Len > 0 {
			n, err = w.Write(c.Data)
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
	}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
