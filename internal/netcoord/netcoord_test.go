package netcoord

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowmesh/rowmesh/internal/table"
)

func TestMessageFraming(t *testing.T) {
	t.Run("round trip every kind", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, WriteMessage(&buf, KindPing, Ping{Seq: 42}))
		require.NoError(t, WriteMessage(&buf, KindWatermarkResponse, WatermarkResponse{GcID: 7, Watermark: 1000}))
		require.NoError(t, WriteMessage(&buf, KindGcAck, GcAck{GcID: 7}))

		var ping Ping
		require.NoError(t, ReadInto(&buf, KindPing, &ping))
		assert.Equal(t, uint64(42), ping.Seq)

		var resp WatermarkResponse
		require.NoError(t, ReadInto(&buf, KindWatermarkResponse, &resp))
		assert.Equal(t, uint64(7), resp.GcID)
		assert.Equal(t, uint64(1000), resp.Watermark)

		var ack GcAck
		require.NoError(t, ReadInto(&buf, KindGcAck, &ack))
		assert.Equal(t, uint64(7), ack.GcID)
	})

	t.Run("kind mismatch is an error", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteMessage(&buf, KindPing, Ping{Seq: 1}))

		var pong Pong
		err := ReadInto(&buf, KindPong, &pong)
		assert.Error(t, err)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0xFF, 0, 0, 0, 0})
		_, _, err := ReadMessage(buf)
		assert.Error(t, err)
	})

	t.Run("oversized length prefix is rejected", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{KindPing, 0xFF, 0xFF, 0xFF, 0xFF})
		_, _, err := ReadMessage(buf)
		assert.Error(t, err)
	})

	t.Run("truncated payload is an error", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteMessage(&buf, KindPing, Ping{Seq: 1}))
		truncated := bytes.NewBuffer(buf.Bytes()[:buf.Len()-2])
		_, _, err := ReadMessage(truncated)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}

func startServer(t *testing.T, source WatermarkSource) *Server {
	t.Helper()
	server, err := Serve("127.0.0.1:0", source, ServerOptions{LogOutput: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func TestPingPong(t *testing.T) {
	server := startServer(t, StaticWatermark(0))

	client, err := Dial([]string{server.Addr().String()}, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	stats, err := client.MeasureRTT(10)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 10, stats[0].Samples)
	assert.Positive(t, stats[0].Mean)
	assert.GreaterOrEqual(t, stats[0].P99, stats[0].P50)
}

func TestGcRoundComputesMinThreshold(t *testing.T) {
	s1 := startServer(t, StaticWatermark(300))
	s2 := startServer(t, StaticWatermark(100))
	s3 := startServer(t, StaticWatermark(200))

	client, err := Dial([]string{
		s1.Addr().String(),
		s2.Addr().String(),
		s3.Addr().String(),
	}, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	result, err := client.GcRound(9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), result.GcID)
	assert.ElementsMatch(t, []uint64{300, 100, 200}, result.Watermarks)
	assert.Equal(t, uint64(100), result.Threshold, "threshold is the minimum watermark")
}

func TestTableWatermark(t *testing.T) {
	ctx := context.Background()
	tbl := table.OpenMemory()
	defer tbl.Close()

	source := TableWatermark{Table: tbl}

	t.Run("empty table reports zero", func(t *testing.T) {
		w, err := source.Watermark(ctx)
		require.NoError(t, err)
		assert.Zero(t, w)
	})

	t.Run("reports minimum current version", func(t *testing.T) {
		require.NoError(t, tbl.Insert("r1").ColumnStringAt("a", "x", 5).Commit(ctx))
		require.NoError(t, tbl.Insert("r2").ColumnStringAt("b", "y", 2).Commit(ctx))
		require.NoError(t, tbl.Insert("r3").ColumnStringAt("c", "z", 9).Commit(ctx))

		w, err := source.Watermark(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), w)
	})
}

func TestServerAgainstTable(t *testing.T) {
	ctx := context.Background()
	tbl := table.OpenMemory()
	defer tbl.Close()
	require.NoError(t, tbl.Insert("r1").ColumnStringAt("a", "x", 4).Commit(ctx))

	server := startServer(t, TableWatermark{Table: tbl})

	client, err := Dial([]string{server.Addr().String()}, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	result, err := client.GcRound(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), result.Threshold)
}
