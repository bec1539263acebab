// Package netcoord implements the cross-host coordination utility: a
// small fixed-format message protocol over plain TCP for latency
// measurement and advisory GC watermark rounds. It never participates
// in core correctness — rowmesh GC is coordination-free — and it never
// mutates a table.
package netcoord

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Message kinds: a 1-byte tag preceding each length-prefixed payload.
const (
	KindPing byte = iota
	KindPong
	KindWatermarkRequest
	KindWatermarkResponse
	KindGcThreshold
	KindGcAck
)

// maxPayload bounds a frame so a garbage length prefix cannot make the
// reader allocate unboundedly.
const maxPayload = 1 << 20

// Ping is an RTT probe; the server echoes the sequence number back in a
// Pong.
type Ping struct {
	Seq uint64 `json:"seq"`
}

// Pong answers a Ping.
type Pong struct {
	Seq uint64 `json:"seq"`
}

// WatermarkRequest asks a peer for its low watermark for GC round GcID.
type WatermarkRequest struct {
	GcID uint64 `json:"gc_id"`
}

// WatermarkResponse carries the peer's low watermark: the minimum
// current version across all of its cells.
type WatermarkResponse struct {
	GcID      uint64 `json:"gc_id"`
	Watermark uint64 `json:"watermark"`
}

// GcThreshold broadcasts the round's safe threshold (the minimum of all
// reported watermarks). Advisory only.
type GcThreshold struct {
	GcID      uint64 `json:"gc_id"`
	Threshold uint64 `json:"threshold"`
}

// GcAck acknowledges a GcThreshold.
type GcAck struct {
	GcID uint64 `json:"gc_id"`
}

// WriteMessage frames and writes one message:
// [kind:1][len:4 big-endian][payload JSON].
func WriteMessage(w io.Writer, kind byte, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal kind %d: %w", kind, err)
	}
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message and returns its kind and raw
// payload.
func ReadMessage(r io.Reader) (byte, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	kind := header[0]
	if kind > KindGcAck {
		return 0, nil, fmt.Errorf("unknown message kind %d", kind)
	}
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxPayload {
		return 0, nil, fmt.Errorf("payload of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}
	return kind, payload, nil
}

// ReadInto reads one message and decodes it into dst, failing when the
// kind on the wire is not want.
func ReadInto(r io.Reader, want byte, dst any) error {
	kind, payload, err := ReadMessage(r)
	if err != nil {
		return err
	}
	if kind != want {
		return fmt.Errorf("expected message kind %d, got %d", want, kind)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode kind %d: %w", kind, err)
	}
	return nil
}
