package fsession

import (
	"context"
	"hash/crc32"
	"io"

	"golang.org/x/time/rate"
)

// checksumChunk bounds how many bytes the FILE_CHECK task reads between
// rate-limiter waits.
const checksumChunk = 4096

// Checksum streams name's contents through a CRC-32 hash, pacing reads
// with limiter, and returns the hash and total length. It runs in its
// own task outside the single-session slot because it is read-only and
// short-lived (SPEC_FULL.md §4.10 "FILE_CHECK runs in its own task").
func Checksum(filesystem FS, name string, limiter *rate.Limiter) (sum uint32, length int64, err error) {
	rs, err := filesystem.OpenRead(name)
	if err != nil {
		return 0, 0, err
	}
	defer rs.Close()

	h := crc32.NewIEEE()
	buf := make([]byte, checksumChunk)
	for {
		n, rerr := rs.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			length += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, 0, rerr
		}
		if limiter != nil {
			if err := limiter.WaitN(context.Background(), 1); err != nil {
				return 0, 0, err
			}
		}
	}
	return h.Sum32(), length, nil
}
