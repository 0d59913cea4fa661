package audio

import (
	"bytes"
	"strings"
	"time"
)

// Canonical waveform parameters handed to transcription engines.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	CanonicalBitDepth   = 16

	pcmFormatTag = 1
)

const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatM4A  = "m4a"
	FormatFLAC = "flac"
	FormatOGG  = "ogg"
)

var supportedFormats = []string{FormatWAV, FormatMP3, FormatM4A, FormatFLAC, FormatOGG}

func SupportedFormats() []string {
	return append([]string(nil), supportedFormats...)
}

// NormalizeFormat lowercases a declared format or extension and strips the leading dot.
// It returns "" when the format is not supported.
func NormalizeFormat(declared string) string {
	f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(declared), "."))
	for _, s := range supportedFormats {
		if f == s {
			return f
		}
	}
	return ""
}

// sniffFormat identifies a container from the first bytes of a file.
// It returns "" when the header is not recognized.
func sniffFormat(header []byte) string {
	switch {
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WAVE")):
		return FormatWAV
	case len(header) >= 4 && bytes.Equal(header[0:4], []byte("fLaC")):
		return FormatFLAC
	case len(header) >= 4 && bytes.Equal(header[0:4], []byte("OggS")):
		return FormatOGG
	case len(header) >= 8 && bytes.Equal(header[4:8], []byte("ftyp")):
		return FormatM4A
	case len(header) >= 3 && bytes.Equal(header[0:3], []byte("ID3")):
		return FormatMP3
	case len(header) >= 2 && header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return ""
}

// Waveform is a PCM WAV file in the canonical format.
type Waveform struct {
	Path       string
	SourcePath string
	// Converted is true when Path is a temporary file created by the normalizer.
	Converted  bool
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
	Duration   time.Duration
}

func FramesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
