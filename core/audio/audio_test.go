package audio

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestClampVolume(t *testing.T) {
	testCases := []struct {
		percent  int
		expected float64
	}{
		{percent: -5, expected: 0},
		{percent: 0, expected: 0},
		{percent: 60, expected: 0.6},
		{percent: 100, expected: 1},
		{percent: 140, expected: 1},
	}

	for _, testCase := range testCases {
		if got := ClampVolume(testCase.percent); got != testCase.expected {
			t.Fatalf("ClampVolume(%d): expected %v, got %v", testCase.percent, testCase.expected, got)
		}
	}
}

func TestScaleLinear16HalvesSamples(t *testing.T) {
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(1000)))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(int16(-1000)))

	ScaleLinear16(pcm, 0.5)

	if got := int16(binary.LittleEndian.Uint16(pcm[0:])); got != 500 {
		t.Fatalf("expected first sample 500, got %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[2:])); got != -500 {
		t.Fatalf("expected second sample -500, got %d", got)
	}
}

func TestScaleLinear16FullGainIsNoop(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03}
	ScaleLinear16(pcm, 1)

	if pcm[0] != 0x01 || pcm[1] != 0x02 || pcm[2] != 0x03 {
		t.Fatalf("expected pcm to be untouched, got %v", pcm)
	}
}

func TestInt16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	encoded := make([]byte, len(samples)*2)
	if n := Int16sToBytes(encoded, samples); n != len(encoded) {
		t.Fatalf("expected %d bytes written, got %d", len(encoded), n)
	}

	decoded := make([]int16, len(samples))
	if n := BytesToInt16s(decoded, encoded); n != len(samples) {
		t.Fatalf("expected %d samples decoded, got %d", len(samples), n)
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, samples[i], decoded[i])
		}
	}
}

func TestEncodingInfoDuration(t *testing.T) {
	info := NewEncodingInfo(16000)

	if got := info.Duration(32000); got != time.Second {
		t.Fatalf("expected 1s for 32000 bytes, got %v", got)
	}
	if got := info.Samples(DefaultBlockSize); got != 512 {
		t.Fatalf("expected 512 samples per block, got %d", got)
	}
	if !(EncodingInfo{}).IsZero() {
		t.Fatalf("expected zero encoding info to report IsZero")
	}
}

func TestDeviceErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := &DeviceError{Op: "write", Err: cause}

	if !errors.Is(err, cause) {
		t.Fatalf("expected device error to unwrap to cause")
	}
}
