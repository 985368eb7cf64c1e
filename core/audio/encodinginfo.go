package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
	// DefaultBlockSize is the capture block in bytes, 512 samples of linear16.
	DefaultBlockSize = 1024
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

// EncodingInfo describes a mono PCM stream.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func NewEncodingInfo(sampleRate int) EncodingInfo {
	return EncodingInfo{SampleRate: sampleRate, Format: EncodingLinear16}
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.Format.ByteSize()
}

// Duration returns how long n bytes of audio in this encoding play for.
func (e EncodingInfo) Duration(n int) time.Duration {
	bytesPerSecond := e.BytesPerSecond()
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

// Samples returns the number of whole samples held in n bytes.
func (e EncodingInfo) Samples(n int) int {
	size := e.Format.ByteSize()
	if size <= 0 {
		return 0
	}
	return n / size
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingLinear16 encodingFormat = "linear16"
)
