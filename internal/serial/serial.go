// Package serial opens the sensor's byte stream.
//
// Device names of the form tcp://host:port connect to a serial-over-TCP
// device server instead of a local port. Both kinds honour the configured
// read timeout: a Read that times out returns 0, nil.
package serial

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	bugst "go.bug.st/serial"

	"serial-mqtt-bridge/config"
)

// ErrClosed is returned by Read after Close
var ErrClosed = errors.New("serial port closed")

const tcpScheme = "tcp://"

// Port is the byte source the bridge reads from.
// Close is idempotent and may be called concurrently with Read.
type Port interface {
	io.ReadCloser
	Name() string
}

// Open opens the configured device in 8N1 mode with the configured read timeout
func Open(cfg config.SerialConfig) (Port, error) {
	if strings.HasPrefix(cfg.Device, tcpScheme) {
		return openTCP(strings.TrimPrefix(cfg.Device, tcpScheme), cfg.ReadTimeout)
	}
	return openSerial(cfg)
}

// List returns the serial ports present on this machine
func List() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

func openSerial(cfg config.SerialConfig) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}

	p, err := bugst.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
		}
	}

	return newHandle(cfg.Device, p), nil
}

// tcpConn adapts a TCP connection to the read-timeout contract of a serial port
type tcpConn struct {
	conn    net.Conn
	timeout time.Duration
}

func openTCP(addr string, timeout time.Duration) (Port, error) {
	dialTimeout := timeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return newHandle(tcpScheme+addr, &tcpConn{conn: conn, timeout: timeout}), nil
}

func (t *tcpConn) Read(p []byte) (int, error) {
	if t.timeout > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := t.conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	return n, err
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

// handle guards a ReadCloser so that Close happens exactly once
type handle struct {
	name   string
	rc     io.ReadCloser
	once   sync.Once
	closed chan struct{}
}

func newHandle(name string, rc io.ReadCloser) *handle {
	return &handle{
		name:   name,
		rc:     rc,
		closed: make(chan struct{}),
	}
}

func (h *handle) Name() string {
	return h.name
}

func (h *handle) Read(p []byte) (int, error) {
	select {
	case <-h.closed:
		return 0, ErrClosed
	default:
	}

	n, err := h.rc.Read(p)
	if err != nil {
		select {
		case <-h.closed:
			return n, ErrClosed
		default:
		}
	}
	return n, err
}

// Close releases the port. Only the first call reaches the device.
func (h *handle) Close() error {
	var err error
	h.once.Do(func() {
		close(h.closed)
		err = h.rc.Close()
	})
	return err
}
