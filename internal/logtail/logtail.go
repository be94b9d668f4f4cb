package logtail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	// DefaultLines is the bounded-mode default for the logs command.
	DefaultLines = 50
	// DefaultFollowInterval is how often follow mode polls for file growth.
	DefaultFollowInterval = 500 * time.Millisecond

	readBlock = 8192
)

// LastLines returns up to n trailing lines of the file, reading blocks from
// the end rather than the whole file.
func LastLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return nil, nil
	}

	var buf []byte
	off := size
	for off > 0 {
		step := int64(readBlock)
		if off < step {
			step = off
		}
		off -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, off); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(chunk, buf...)
		// One extra newline guarantees the window below never includes a
		// line truncated by the block boundary.
		if bytes.Count(buf, []byte{'\n'}) > n {
			break
		}
	}

	s := strings.TrimRight(string(buf), "\n")
	if s == "" {
		return nil, nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Print writes the last n lines of the file to w.
func Print(w io.Writer, path string, n int) error {
	lines, err := LastLines(path, n)
	if err != nil {
		return err
	}
	for _, ln := range lines {
		_, _ = fmt.Fprintln(w, ln)
	}
	return nil
}

// Follow prints the last n lines and then streams appended lines until ctx is
// cancelled, polling for growth every interval. Truncation or rotation resets
// the read offset to the start of the new file. The return is always nil on
// cancellation; a missing file simply means nothing to print yet.
func Follow(ctx context.Context, w io.Writer, path string, n int, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFollowInterval
	}
	var off int64
	if lines, err := LastLines(path, n); err == nil {
		for _, ln := range lines {
			_, _ = fmt.Fprintln(w, ln)
		}
	}
	if st, err := os.Stat(path); err == nil {
		off = st.Size()
	}

	var partial []byte
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st, err := os.Stat(path)
			if err != nil {
				continue
			}
			size := st.Size()
			if size < off {
				off = 0
				partial = partial[:0]
			}
			if size == off {
				continue
			}
			grown, err := readFrom(path, off)
			if err != nil {
				continue
			}
			off += int64(len(grown))
			data := append(partial, grown...)
			for {
				i := bytes.IndexByte(data, '\n')
				if i < 0 {
					break
				}
				_, _ = fmt.Fprintln(w, string(data[:i]))
				data = data[i+1:]
			}
			partial = append(partial[:0], data...)
		}
	}
}

func readFrom(path string, off int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}
