package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsae-team/daqserver/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSensorWaveformIsStablePerSensor(t *testing.T) {
	f1, p1 := sensorWaveform("rpm")
	f2, p2 := sensorWaveform("rpm")
	if f1 != f2 || p1 != p2 {
		t.Fatalf("expected identical waveform for the same sensor id")
	}

	f3, _ := sensorWaveform("coolant_temp")
	if f1 == f3 {
		t.Fatalf("expected different sensors to get different frequencies (collision is unlikely but not impossible)")
	}
}

func TestSimulatorSampleStaysWithinBounds(t *testing.T) {
	st := openTestStore(t)
	sim := NewSimulator(st)
	sn := &store.Sensor{SensorID: "rpm", MinValue: 0, MaxValue: 9000}

	for i := 0; i < 1000; i++ {
		v := sim.sample(sn, float64(i)*0.1)
		if v < sn.MinValue || v > sn.MaxValue {
			t.Fatalf("sample %f out of bounds [%f,%f]", v, sn.MinValue, sn.MaxValue)
		}
	}
}

func TestSelectorResolvePrefersExplicitPreference(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	serial := NewSerialSource(st)
	sel := NewSelector(st, serial, NewSimulator(st))

	if err := st.SetSourcePreference(ctx, "simulated"); err != nil {
		t.Fatalf("SetSourcePreference: %v", err)
	}
	if got := sel.Resolve(ctx); got != "simulated" {
		t.Fatalf("expected simulated, got %q", got)
	}

	if err := st.SetSourcePreference(ctx, "serial"); err != nil {
		t.Fatalf("SetSourcePreference: %v", err)
	}
	if got := sel.Resolve(ctx); got != "serial" {
		t.Fatalf("expected serial preference to be honored even when disconnected, got %q", got)
	}
}

func TestSelectorAutoFallsBackWhenSerialStale(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	serial := NewSerialSource(st)
	sel := NewSelector(st, serial, NewSimulator(st))

	if err := st.SetSourcePreference(ctx, "auto"); err != nil {
		t.Fatalf("SetSourcePreference: %v", err)
	}
	if got := sel.Resolve(ctx); got != "simulated" {
		t.Fatalf("expected simulated when serial never connected, got %q", got)
	}

	serial.state.Store(int32(StateConnected))
	serial.lastFrameUnix.Store(time.Now().Unix())
	if got := sel.Resolve(ctx); got != "serial" {
		t.Fatalf("expected serial when connected with a fresh frame, got %q", got)
	}

	serial.lastFrameUnix.Store(time.Now().Add(-30 * time.Second).Unix())
	if got := sel.Resolve(ctx); got != "simulated" {
		t.Fatalf("expected fallback to simulated once the last frame is stale, got %q", got)
	}
}

func TestSelectorApplyTogglesExactlyOneProducer(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	serial := NewSerialSource(st)
	sim := NewSimulator(st)
	sel := NewSelector(st, serial, sim)

	if err := st.SetSourcePreference(ctx, "simulated"); err != nil {
		t.Fatalf("SetSourcePreference: %v", err)
	}
	sel.apply(ctx)
	if !sim.active.Load() || serial.active.Load() {
		t.Fatalf("expected only the simulator active, got sim=%v serial=%v", sim.active.Load(), serial.active.Load())
	}

	if err := st.SetSourcePreference(ctx, "serial"); err != nil {
		t.Fatalf("SetSourcePreference: %v", err)
	}
	sel.apply(ctx)
	if sim.active.Load() || !serial.active.Load() {
		t.Fatalf("expected only the serial source active, got sim=%v serial=%v", sim.active.Load(), serial.active.Load())
	}
}

func TestSniffFormatDetectsCSV(t *testing.T) {
	csv := []byte("12.3,45.6,78.9\n13.1,44.2,79.0\n")
	if got := sniffFormat(csv); got != "csv" {
		t.Fatalf("expected csv, got %q", got)
	}
}

func TestSniffFormatDetectsBinary(t *testing.T) {
	binaryData := []byte{0xAA, 0x01, 0x00, 0x08, 0x00, 0x00, 0x80, 0x3f, 0x00, 0x00, 0x00, 0x40}
	if got := sniffFormat(binaryData); got != "motec_binary" {
		t.Fatalf("expected motec_binary, got %q", got)
	}
}

func TestReadCSVFrameParsesPositionalChannels(t *testing.T) {
	cfg := store.SerialConfig{CSVSeparator: ",", CSVChannelOrder: []string{"rpm", "coolant_temp", "throttle"}}
	r := bufio.NewReader(bytes.NewBufferString("7000,95.5,bad\n"))

	channels, err := readCSVFrame(r, cfg)
	if err != nil {
		t.Fatalf("readCSVFrame: %v", err)
	}
	if channels["rpm"] != 7000 || channels["coolant_temp"] != 95.5 {
		t.Fatalf("unexpected channels: %+v", channels)
	}
	if _, ok := channels["throttle"]; ok {
		t.Fatalf("expected unparseable column to be excluded, got %+v", channels)
	}
}

func TestCRC16CCITTMatchesKnownVector(t *testing.T) {
	// "123456789" is the standard CRC-16/CCITT-FALSE test vector; the
	// expected checksum is 0x29B1.
	if got := crc16CCITT([]byte("123456789")); got != 0x29B1 {
		t.Fatalf("crc16CCITT(\"123456789\") = 0x%04X, want 0x29B1", got)
	}
}

func TestReadMotecFrameDecodesValidPayload(t *testing.T) {
	var payload bytes.Buffer
	var f1, f2 [4]byte
	binary.LittleEndian.PutUint32(f1[:], math.Float32bits(123.5))
	binary.LittleEndian.PutUint32(f2[:], math.Float32bits(-6.25))
	payload.Write(f1[:])
	payload.Write(f2[:])

	crc := crc16CCITT(payload.Bytes())

	var frame bytes.Buffer
	frame.WriteByte(motecSyncByte)
	var idLen [3]byte
	binary.LittleEndian.PutUint16(idLen[0:2], 42)
	idLen[2] = byte(payload.Len())
	frame.Write(idLen[:])
	frame.Write(payload.Bytes())
	var crcBytes [2]byte
	binary.LittleEndian.PutUint16(crcBytes[:], crc)
	frame.Write(crcBytes[:])

	r := bufio.NewReader(&frame)
	channels, err := readMotecFrame(r)
	if err != nil {
		t.Fatalf("readMotecFrame: %v", err)
	}
	if channels["ch42_0"] != 123.5 || channels["ch42_1"] != -6.25 {
		t.Fatalf("unexpected channels: %+v", channels)
	}
}

func TestReadMotecFrameResyncsOnBadCRC(t *testing.T) {
	var frame bytes.Buffer
	frame.WriteByte(motecSyncByte)
	var idLen [3]byte
	binary.LittleEndian.PutUint16(idLen[0:2], 1)
	idLen[2] = 4
	frame.Write(idLen[:])
	frame.Write([]byte{0, 0, 0, 0})
	frame.Write([]byte{0xFF, 0xFF}) // wrong CRC

	r := bufio.NewReader(&frame)
	channels, err := readMotecFrame(r)
	if err != nil {
		t.Fatalf("readMotecFrame: %v", err)
	}
	if channels != nil {
		t.Fatalf("expected nil channels on CRC mismatch, got %+v", channels)
	}
}
