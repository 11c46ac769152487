package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ChannelPlaceholder is replaced by the channel ID in WSSource.URL.
const ChannelPlaceholder = "{channel}"

// WSSource dials one WebSocket connection per channel and yields its data
// frames. Control frames are answered by wsutil and never surface.
type WSSource struct {
	URL    string
	Header http.Header
	// DialTimeout bounds the handshake. Zero means no extra bound beyond ctx.
	DialTimeout time.Duration
}

// Open dials the channel's WebSocket endpoint.
func (s *WSSource) Open(ctx context.Context, channelID string) (Stream, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("websocket url is required")
	}
	target := strings.ReplaceAll(s.URL, ChannelPlaceholder, url.PathEscape(channelID))

	dialer := ws.Dialer{Timeout: s.DialTimeout}
	if len(s.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(s.Header)
	}

	conn, br, _, err := dialer.Dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	stream := &wsStream{conn: conn, rw: conn, closed: make(chan struct{})}
	if br != nil {
		// Frames sent right after the handshake are already buffered in br.
		stream.rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}
	return stream, nil
}

type wsStream struct {
	conn      net.Conn
	rw        io.ReadWriter
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *wsStream) Recv(ctx context.Context) (Event, error) {
	select {
	case <-s.closed:
		return Event{}, ErrStreamClosed
	default:
	}

	// Unblock the read when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, op, err := wsutil.ReadServerData(s.rw)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		select {
		case <-s.closed:
			return Event{}, ErrStreamClosed
		default:
		}
		var closed wsutil.ClosedError
		if errors.As(err, &closed) && closed.Code == ws.StatusNormalClosure {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("read frame: %w", err)
	}

	kind := KindBinary
	if op == ws.OpText {
		kind = KindText
	}
	return Event{Kind: kind, Payload: data, ReceivedAt: time.Now().UTC()}, nil
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
