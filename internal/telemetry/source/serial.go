package source

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	goserial "go.bug.st/serial"

	"github.com/fsae-team/daqserver/internal/store"
	"github.com/fsae-team/daqserver/internal/telemetry/hub"
)

// SerialState is one state of the serial reader's connection state
// machine.
type SerialState int32

const (
	StateDisconnected SerialState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s SerialState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// SerialSource owns a serial port exclusively and decodes it into Hub
// frames. Configuration changes are applied via a control channel so the
// reader task is the only goroutine that ever touches the port.
type SerialSource struct {
	st *store.Store

	state         atomic.Int32
	framesRecv    atomic.Uint64
	errorCount    atomic.Uint64
	lastFrameUnix atomic.Int64
	active        atomic.Bool

	reconfigure chan struct{}
}

// NewSerialSource creates a SerialSource backed by st's serial_config row.
func NewSerialSource(st *store.Store) *SerialSource {
	s := &SerialSource{
		st:          st,
		reconfigure: make(chan struct{}, 1),
	}
	s.state.Store(int32(StateDisconnected))
	return s
}

// NotifyConfigChanged signals the reader to close and reopen the port
// with the latest SerialConfig.
func (s *SerialSource) NotifyConfigChanged() {
	select {
	case s.reconfigure <- struct{}{}:
	default:
	}
}

// State returns the current connection state.
func (s *SerialSource) State() SerialState {
	return SerialState(s.state.Load())
}

// SetActive controls whether decoded frames are forwarded to the Hub.
// The reader keeps running and updating its counters regardless, so
// "auto" selection can observe connection liveness even while the
// simulator is the one actually feeding subscribers.
func (s *SerialSource) SetActive(active bool) {
	s.active.Store(active)
}

// Stats returns the counters tracked for the /telemetry/source endpoint.
type Stats struct {
	State          string
	FramesReceived uint64
	Errors         uint64
	LastFrameUnix  int64
}

// Stats reads the current counters without blocking the reader.
func (s *SerialSource) Stats() Stats {
	return Stats{
		State:          s.State().String(),
		FramesReceived: s.framesRecv.Load(),
		Errors:         s.errorCount.Load(),
		LastFrameUnix:  s.lastFrameUnix.Load(),
	}
}

// Run drives the connect/read/reconnect loop until ctx is cancelled.
func (s *SerialSource) Run(ctx context.Context, h *hub.Hub) error {
	for {
		if ctx.Err() != nil {
			s.state.Store(int32(StateDisconnected))
			return nil
		}

		cfg, err := s.st.GetSerialConfig(ctx)
		if err != nil || cfg.Port == "" {
			s.state.Store(int32(StateDisconnected))
			if !s.sleepOrDone(ctx, 2*time.Second) {
				return nil
			}
			continue
		}

		s.state.Store(int32(StateConnecting))
		port, err := goserial.Open(cfg.Port, &goserial.Mode{BaudRate: cfg.BaudRate})
		if err != nil {
			s.state.Store(int32(StateError))
			s.errorCount.Add(1)
			log.Printf("telemetry/serial: open %q: %v", cfg.Port, err)
			if !s.sleepOrDone(ctx, time.Duration(cfg.ReconnectIntervalS*float64(time.Second))) {
				return nil
			}
			continue
		}

		timeout := time.Duration(cfg.TimeoutSeconds * float64(time.Second))
		_ = port.SetReadTimeout(timeout)

		s.state.Store(int32(StateConnected))
		s.readUntilError(ctx, port, *cfg, h)
		_ = port.Close()
		s.state.Store(int32(StateError))

		if !s.sleepOrDone(ctx, time.Duration(cfg.ReconnectIntervalS*float64(time.Second))) {
			return nil
		}
	}
}

func (s *SerialSource) sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.reconfigure:
		return true
	case <-time.After(d):
		return true
	}
}

// readUntilError reads frames from port until a read error, EOF, a
// configuration change, or ctx cancellation. It resolves "auto" format
// once per connection by peeking the first bytes.
func (s *SerialSource) readUntilError(ctx context.Context, port goserial.Port, cfg store.SerialConfig, h *hub.Hub) {
	reader := bufio.NewReaderSize(port, 4096)

	format := cfg.DataFormat
	if format == "auto" {
		peeked, err := reader.Peek(256)
		if err != nil && len(peeked) == 0 {
			s.errorCount.Add(1)
			return
		}
		format = sniffFormat(peeked)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-s.reconfigure:
		}
		close(done)
		_ = port.Close()
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		var channels map[string]float64
		var err error
		switch format {
		case "motec_binary":
			channels, err = readMotecFrame(reader)
		default:
			channels, err = readCSVFrame(reader, cfg)
		}
		if err != nil {
			s.errorCount.Add(1)
			return
		}
		if channels == nil {
			continue // resynchronized after a bad frame; keep reading
		}

		now := time.Now()
		s.framesRecv.Add(1)
		s.lastFrameUnix.Store(now.Unix())
		if s.active.Load() {
			h.Publish(hub.Frame{
				Timestamp: float64(now.UnixNano()) / 1e9,
				Source:    "serial",
				Channels:  channels,
			})
		}
	}
}

// readCSVFrame reads one newline-terminated CSV line and pairs its
// fields positionally with cfg.CSVChannelOrder. Extra columns are
// ignored; missing columns are simply absent from the result.
func readCSVFrame(r *bufio.Reader, cfg store.SerialConfig) (map[string]float64, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimRight(line, "\r\n"), cfg.CSVSeparator)

	channels := make(map[string]float64, len(cfg.CSVChannelOrder))
	for i, name := range cfg.CSVChannelOrder {
		if i >= len(fields) {
			break
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			continue // unparseable column is excluded, not fatal
		}
		channels[name] = v
	}
	return channels, nil
}

const motecSyncByte = 0xAA

// readMotecFrame parses one CAN-like frame: sync byte, u16 LE id, u8
// len, payload, u16 LE CRC. On CRC mismatch it resynchronizes by
// scanning for the next sync byte and returns (nil, nil) so the caller
// retries without treating it as fatal.
func readMotecFrame(r *bufio.Reader) (map[string]float64, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != motecSyncByte {
			continue
		}
		break
	}

	header := make([]byte, 3)
	if _, err := readFull(r, header); err != nil {
		return nil, err
	}
	id := binary.LittleEndian.Uint16(header[0:2])
	length := header[2]

	payload := make([]byte, length)
	if _, err := readFull(r, payload); err != nil {
		return nil, err
	}

	crcBytes := make([]byte, 2)
	if _, err := readFull(r, crcBytes); err != nil {
		return nil, err
	}
	gotCRC := binary.LittleEndian.Uint16(crcBytes)

	if gotCRC != crc16CCITT(payload) {
		return nil, nil // bad frame, but not fatal: resync already happened
	}

	channels := make(map[string]float64, length/4)
	for i := 0; i+4 <= len(payload); i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(payload[i : i+4]))
		channels[fmt.Sprintf("ch%d_%d", id, i/4)] = float64(v)
	}
	return channels, nil
}

// crc16CCITT computes the CRC-16/CCITT-FALSE checksum (poly 0x1021,
// init 0xFFFF) used to validate motec_binary frames. No example repo in
// the pack imports a CRC16 library, so this is a direct, dependency-free
// implementation of the standard bit-by-bit algorithm.
func crc16CCITT(data []byte) uint16 {
	var crc uint16 = 0xFFFF
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// sniffFormat implements the auto-detection rule: >=80% printable ASCII
// and a line terminator present means csv, otherwise motec_binary.
func sniffFormat(peeked []byte) string {
	if len(peeked) == 0 {
		return "motec_binary"
	}
	printable := 0
	hasNewline := false
	for _, b := range peeked {
		if b == '\n' {
			hasNewline = true
		}
		if b == '\n' || b == '\r' || b == '\t' || (b >= 0x20 && b < 0x7f) {
			printable++
		}
	}
	ratio := float64(printable) / float64(len(peeked))
	if ratio >= 0.8 && hasNewline {
		return "csv"
	}
	return "motec_binary"
}
