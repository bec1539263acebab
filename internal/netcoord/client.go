package netcoord

import (
	"fmt"
	"net"
	"sort"
	"time"
)

// Client drives coordination rounds against one or more servers.
type Client struct {
	conns []net.Conn
	peers []string
}

// Dial connects to every peer address.
func Dial(peers []string, timeout time.Duration) (*Client, error) {
	c := &Client{peers: peers}
	for _, addr := range peers {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		c.conns = append(c.conns, conn)
	}
	return c, nil
}

// Close closes all connections.
func (c *Client) Close() {
	for _, conn := range c.conns {
		conn.Close()
	}
	c.conns = nil
}

// RTTStats summarizes ping round trips against one peer.
type RTTStats struct {
	Peer    string        `json:"peer"`
	Samples int           `json:"samples"`
	Mean    time.Duration `json:"mean"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
}

// MeasureRTT ping-pongs each peer samples times and summarizes the
// round trips.
func (c *Client) MeasureRTT(samples int) ([]RTTStats, error) {
	stats := make([]RTTStats, 0, len(c.conns))
	for i, conn := range c.conns {
		rtts := make([]time.Duration, 0, samples)
		for seq := uint64(0); seq < uint64(samples); seq++ {
			start := time.Now()
			if err := WriteMessage(conn, KindPing, Ping{Seq: seq}); err != nil {
				return nil, fmt.Errorf("ping %s: %w", c.peers[i], err)
			}
			var pong Pong
			if err := ReadInto(conn, KindPong, &pong); err != nil {
				return nil, fmt.Errorf("pong %s: %w", c.peers[i], err)
			}
			if pong.Seq != seq {
				return nil, fmt.Errorf("pong %s: seq %d, want %d", c.peers[i], pong.Seq, seq)
			}
			rtts = append(rtts, time.Since(start))
		}
		sort.Slice(rtts, func(a, b int) bool { return rtts[a] < rtts[b] })

		var total time.Duration
		for _, d := range rtts {
			total += d
		}
		stats = append(stats, RTTStats{
			Peer:    c.peers[i],
			Samples: len(rtts),
			Mean:    total / time.Duration(len(rtts)),
			P50:     percentile(rtts, 50),
			P95:     percentile(rtts, 95),
			P99:     percentile(rtts, 99),
		})
	}
	return stats, nil
}

// GcRoundResult reports one two-phase watermark round.
type GcRoundResult struct {
	GcID       uint64        `json:"gc_id"`
	Watermarks []uint64      `json:"watermarks"`
	Threshold  uint64        `json:"threshold"`
	Elapsed    time.Duration `json:"elapsed"`
}

// GcRound runs one coordination round: collect every peer's watermark,
// compute the threshold as their minimum, broadcast it, and collect
// acks. The threshold is advisory; rowmesh GC never requires it.
func (c *Client) GcRound(gcID uint64) (GcRoundResult, error) {
	start := time.Now()
	result := GcRoundResult{GcID: gcID}

	for i, conn := range c.conns {
		if err := WriteMessage(conn, KindWatermarkRequest, WatermarkRequest{GcID: gcID}); err != nil {
			return result, fmt.Errorf("watermark request %s: %w", c.peers[i], err)
		}
	}
	for i, conn := range c.conns {
		var resp WatermarkResponse
		if err := ReadInto(conn, KindWatermarkResponse, &resp); err != nil {
			return result, fmt.Errorf("watermark response %s: %w", c.peers[i], err)
		}
		result.Watermarks = append(result.Watermarks, resp.Watermark)
	}

	threshold := uint64(0)
	for i, w := range result.Watermarks {
		if i == 0 || w < threshold {
			threshold = w
		}
	}
	result.Threshold = threshold

	for i, conn := range c.conns {
		if err := WriteMessage(conn, KindGcThreshold, GcThreshold{GcID: gcID, Threshold: threshold}); err != nil {
			return result, fmt.Errorf("threshold %s: %w", c.peers[i], err)
		}
	}
	for i, conn := range c.conns {
		var ack GcAck
		if err := ReadInto(conn, KindGcAck, &ack); err != nil {
			return result, fmt.Errorf("ack %s: %w", c.peers[i], err)
		}
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
