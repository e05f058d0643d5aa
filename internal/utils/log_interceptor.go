package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LineStamper is an io.Writer that prefixes every complete line with a
// sequence number and a timestamp before writing it to the target. Partial
// lines are held until their newline arrives or Close is called.
type LineStamper struct {
	mu     sync.Mutex
	target io.Writer
	seq    uint64
	buf    bytes.Buffer
	now    func() time.Time
}

func NewLineStamper(target io.Writer) *LineStamper {
	return &LineStamper{target: target, now: time.Now}
}

func (l *LineStamper) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		idx := bytes.IndexByte(l.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimRight(l.buf.Next(idx+1), "\r\n")
		if err := l.writeLine(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line.
func (l *LineStamper) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), l.buf.Bytes()...)
	l.buf.Reset()
	return l.writeLine(line)
}

func (l *LineStamper) writeLine(line []byte) error {
	l.seq++
	prefix := slog.Uint64("line", l.seq).String() + " " +
		slog.String("time", l.now().Format(time.RFC3339)).String() + " "

	out := make([]byte, 0, len(prefix)+len(line)+1)
	out = append(out, prefix...)
	out = append(out, line...)
	out = append(out, '\n')
	_, err := l.target.Write(out)
	return err
}
