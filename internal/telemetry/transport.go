package telemetry

import (
	"context"
	"fmt"
	"io"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

type Writer interface {
	WriteFrame(ctx context.Context, t float64, frame can.Frame) error
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

// NewSocketCANWriter opens iface (e.g. vcan0) for transmission.
func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, _ float64, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// LogWriter writes frames in candump log format: "(t) iface ID#DATA".
type LogWriter struct {
	out   io.Writer
	iface string
}

func NewLogWriter(out io.Writer, iface string) *LogWriter {
	if iface == "" {
		iface = "vcan0"
	}
	return &LogWriter{out: out, iface: iface}
}

func (w *LogWriter) WriteFrame(_ context.Context, t float64, frame can.Frame) error {
	_, err := fmt.Fprintf(w.out, "(%.6f) %s %s\n", t, w.iface, frame.String())
	return err
}

func (w *LogWriter) Close() error { return nil }

// ParseLogLine reads back one LogWriter line.
func ParseLogLine(line string) (float64, can.Frame, error) {
	var (
		t     float64
		iface string
		body  string
		frame can.Frame
	)
	if _, err := fmt.Sscanf(line, "(%f) %s %s", &t, &iface, &body); err != nil {
		return 0, frame, fmt.Errorf("telemetry: bad log line %q: %w", line, err)
	}
	if err := frame.UnmarshalString(body); err != nil {
		return 0, frame, fmt.Errorf("telemetry: bad frame %q: %w", body, err)
	}
	return t, frame, nil
}
