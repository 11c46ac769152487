package transport

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	captureBinaryPrefix = "bin "
	captureTextPrefix   = "text "
	captureMaxLine      = 1 << 20
	zstdSuffix          = ".zst"
)

// ReplaySource streams frames from a capture file. Each line holds one
// event, "bin <base64>" or "text <payload>"; blank lines and lines starting
// with '#' are skipped. Paths ending in .zst are zstd-compressed. The
// channel placeholder in Path is replaced by the channel ID.
type ReplaySource struct {
	Path string
	// Interval paces events; zero replays as fast as they are consumed.
	Interval time.Duration
}

// Open opens the capture file for channelID.
func (s *ReplaySource) Open(_ context.Context, channelID string) (Stream, error) {
	path := strings.ReplaceAll(s.Path, ChannelPlaceholder, channelID)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("replay path is required")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	stream := &replayStream{file: file, interval: s.Interval, closed: make(chan struct{})}
	var reader io.Reader = file
	if strings.HasSuffix(path, zstdSuffix) {
		dec, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("open zstd capture: %w", err)
		}
		stream.dec = dec
		reader = dec
	}

	stream.scanner = bufio.NewScanner(reader)
	stream.scanner.Buffer(make([]byte, 0, 64*1024), captureMaxLine)
	return stream, nil
}

type replayStream struct {
	file     *os.File
	dec      *zstd.Decoder
	scanner  *bufio.Scanner
	interval time.Duration

	mu        sync.Mutex
	line      int
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *replayStream) Recv(ctx context.Context) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval > 0 && s.line > 0 {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Event{}, ctx.Err()
		case <-s.closed:
			timer.Stop()
			return Event{}, ErrStreamClosed
		case <-timer.C:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.closed:
			return Event{}, ErrStreamClosed
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Event{}, fmt.Errorf("read capture: %w", err)
			}
			return Event{}, io.EOF
		}
		s.line++

		line := strings.TrimRight(s.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		event, err := parseCaptureLine(line)
		if err != nil {
			return Event{}, fmt.Errorf("capture line %d: %w", s.line, err)
		}
		event.ReceivedAt = time.Now().UTC()
		return event, nil
	}
}

func (s *replayStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.dec != nil {
			s.dec.Close()
		}
		err = s.file.Close()
	})
	return err
}

func parseCaptureLine(line string) (Event, error) {
	switch {
	case strings.HasPrefix(line, captureBinaryPrefix):
		payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(line[len(captureBinaryPrefix):]))
		if err != nil {
			return Event{}, fmt.Errorf("decode base64: %w", err)
		}
		return Event{Kind: KindBinary, Payload: payload}, nil
	case strings.HasPrefix(line, captureTextPrefix):
		return Event{Kind: KindText, Payload: []byte(line[len(captureTextPrefix):])}, nil
	default:
		return Event{}, fmt.Errorf("unknown capture record %q", previewLine(line))
	}
}

func previewLine(line string) string {
	if len(line) <= 32 {
		return line
	}
	return line[:32] + "..."
}

// CaptureWriter appends events to a capture file in the ReplaySource format.
type CaptureWriter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	enc *zstd.Encoder
	c   io.Closer
}

// CreateCapture creates (or truncates) a capture file at path. Paths ending
// in .zst are written zstd-compressed.
func CreateCapture(path string) (*CaptureWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}

	cw := &CaptureWriter{c: file}
	var w io.Writer = file
	if strings.HasSuffix(path, zstdSuffix) {
		enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create zstd capture: %w", err)
		}
		cw.enc = enc
		w = enc
	}
	cw.w = bufio.NewWriter(w)
	return cw, nil
}

// NewCaptureWriter writes an uncompressed capture to w.
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{w: bufio.NewWriter(w)}
}

// Write appends one event.
func (cw *CaptureWriter) Write(event Event) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	var err error
	switch event.Kind {
	case KindText:
		_, err = fmt.Fprintf(cw.w, "%s%s\n", captureTextPrefix, strings.ReplaceAll(string(event.Payload), "\n", " "))
	default:
		_, err = fmt.Fprintf(cw.w, "%s%s\n", captureBinaryPrefix, base64.StdEncoding.EncodeToString(event.Payload))
	}
	return err
}

// Flush writes buffered events through to the underlying writer.
func (cw *CaptureWriter) Flush() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.w.Flush(); err != nil {
		return err
	}
	if cw.enc != nil {
		return cw.enc.Flush()
	}
	return nil
}

// Close flushes and closes the capture.
func (cw *CaptureWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	errs := []error{cw.w.Flush()}
	if cw.enc != nil {
		errs = append(errs, cw.enc.Close())
	}
	if cw.c != nil {
		errs = append(errs, cw.c.Close())
	}
	return errors.Join(errs...)
}

// Record wraps src so every received event is also appended to cw. A failed
// capture write is logged and the event is still delivered.
func Record(src Source, cw *CaptureWriter, log *slog.Logger) Source {
	if log == nil {
		log = slog.Default()
	}
	return recordingSource{src: src, cw: cw, log: log.With("component", "transport.record")}
}

type recordingSource struct {
	src Source
	cw  *CaptureWriter
	log *slog.Logger
}

func (r recordingSource) Open(ctx context.Context, channelID string) (Stream, error) {
	stream, err := r.src.Open(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &recordingStream{Stream: stream, cw: r.cw, log: r.log.With("channel_id", channelID)}, nil
}

type recordingStream struct {
	Stream
	cw  *CaptureWriter
	log *slog.Logger
}

func (r *recordingStream) Recv(ctx context.Context) (Event, error) {
	event, err := r.Stream.Recv(ctx)
	if err != nil {
		return event, err
	}
	if werr := r.cw.Write(event); werr != nil {
		r.log.Warn("Failed to record event", "kind", event.Kind.String(), "error", werr)
	}
	return event, nil
}
