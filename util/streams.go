package util

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"io"

	"github.com/kestrelgames/cytrus-updater/util/cleanup"
)

func BufferToStream(buf *bytes.Buffer) io.ReadCloser {
	newBuf := bytes.NewReader(buf.Bytes())
	return io.NopCloser(newBuf)
}

// CloneReader fans out a single reader to numReaders independent readers,
// each receiving the full stream, for the Fetcher's multi-target copy
// (§4.4: "if multiple targets share a hash, downloaded once and fan-out-
// copied").
func CloneReader(input io.ReadCloser, numReaders int) []io.ReadCloser {
	readers := make([]io.ReadCloser, 0, numReaders)
	writers := make([]io.WriteCloser, 0, numReaders)

	for i := 0; i < numReaders; i++ {
		r, w := io.Pipe()
		readers = append(readers, r)
		writers = append(writers, w)
	}

	go func() {
		plainWriters := make([]io.Writer, 0, len(writers))
		for _, w := range writers {
			defer w.Close()
			plainWriters = append(plainWriters, w)
		}

		mw := io.MultiWriter(plainWriters...)
		io.Copy(mw, input)
	}()

	return readers
}

// GetSha1HashOfStream hashes a stream per §4.4's SHA-1 content
// verification, consuming and closing it.
func GetSha1HashOfStream(r io.ReadCloser) (string, error) {
	defer cleanup.DumpAndCloseStream(r)

	hasher := sha1.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
