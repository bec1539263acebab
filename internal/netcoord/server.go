package netcoord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rowmesh/rowmesh/internal/table"
)

// WatermarkSource reports a peer's low watermark. For a rowmesh table
// this is the minimum current version across all cells.
type WatermarkSource interface {
	Watermark(ctx context.Context) (uint64, error)
}

// TableWatermark adapts a table to WatermarkSource.
type TableWatermark struct {
	Table *table.Table
}

// Watermark scans the table for the minimum current cell version.
// An empty table reports 0.
func (tw TableWatermark) Watermark(ctx context.Context) (uint64, error) {
	pks, err := tw.Table.PKs(ctx)
	if err != nil {
		return 0, err
	}
	var min uint64
	found := false
	for _, pk := range pks {
		row, err := tw.Table.Get(ctx, pk)
		if err != nil {
			return 0, err
		}
		if row == nil {
			continue
		}
		for _, col := range row.Columns() {
			v := row.Version(col)
			if !found || v < min {
				min = v
				found = true
			}
		}
	}
	return min, nil
}

// StaticWatermark reports a fixed watermark; used when serving without
// a table.
type StaticWatermark uint64

func (w StaticWatermark) Watermark(context.Context) (uint64, error) {
	return uint64(w), nil
}

// Server answers pings, watermark requests and threshold broadcasts on
// a TCP listener. One goroutine per connection; the server itself never
// touches the table beyond reads through its WatermarkSource.
type Server struct {
	listener net.Listener
	source   WatermarkSource
	sourceMu sync.Mutex // tables are single-threaded; serialize across connections
	logger   *log.Logger
	wg       sync.WaitGroup
}

// ServerOptions configures Serve.
type ServerOptions struct {
	// LogPath, when set, routes the server log through a rotating file.
	LogPath string
	// LogOutput overrides the log destination (tests); ignored when
	// LogPath is set.
	LogOutput io.Writer
}

// Serve starts listening on addr. Callers stop it with Close.
func Serve(addr string, source WatermarkSource, opts ServerOptions) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	var out io.Writer = io.Discard
	if opts.LogPath != "" {
		out = &lumberjack.Logger{
			Filename:   opts.LogPath,
			MaxSize:    10, // MB
			MaxBackups: 3,
			Compress:   true,
		}
	} else if opts.LogOutput != nil {
		out = opts.LogOutput
	}

	s := &Server{
		listener: listener,
		source:   source,
		logger:   log.New(out, "coord ", log.LstdFlags|log.Lmsgprefix),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Printf("listening on %s", listener.Addr())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close stops the listener and waits for in-flight connections.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Printf("accept: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	ctx := context.Background()

	for {
		kind, payload, err := ReadMessage(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.logger.Printf("%s: read: %v", conn.RemoteAddr(), err)
			}
			return
		}

		switch kind {
		case KindPing:
			var ping Ping
			if err := json.Unmarshal(payload, &ping); err != nil {
				s.logger.Printf("%s: bad ping: %v", conn.RemoteAddr(), err)
				return
			}
			if err := WriteMessage(conn, KindPong, Pong{Seq: ping.Seq}); err != nil {
				s.logger.Printf("%s: write pong: %v", conn.RemoteAddr(), err)
				return
			}

		case KindWatermarkRequest:
			var req WatermarkRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				s.logger.Printf("%s: bad watermark request: %v", conn.RemoteAddr(), err)
				return
			}
			s.sourceMu.Lock()
			watermark, err := s.source.Watermark(ctx)
			s.sourceMu.Unlock()
			if err != nil {
				s.logger.Printf("%s: watermark: %v", conn.RemoteAddr(), err)
				return
			}
			resp := WatermarkResponse{GcID: req.GcID, Watermark: watermark}
			if err := WriteMessage(conn, KindWatermarkResponse, resp); err != nil {
				s.logger.Printf("%s: write watermark: %v", conn.RemoteAddr(), err)
				return
			}

		case KindGcThreshold:
			var threshold GcThreshold
			if err := json.Unmarshal(payload, &threshold); err != nil {
				s.logger.Printf("%s: bad threshold: %v", conn.RemoteAddr(), err)
				return
			}
			s.logger.Printf("%s: gc round %d threshold %d (advisory)",
				conn.RemoteAddr(), threshold.GcID, threshold.Threshold)
			if err := WriteMessage(conn, KindGcAck, GcAck{GcID: threshold.GcID}); err != nil {
				s.logger.Printf("%s: write ack: %v", conn.RemoteAddr(), err)
				return
			}

		default:
			s.logger.Printf("%s: unexpected kind %d", conn.RemoteAddr(), kind)
			return
		}
	}
}
