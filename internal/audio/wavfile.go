package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Header describes the format chunk and PCM size of a WAV file.
type Header struct {
	SampleRate int
	Channels   int
	BitDepth   int
	FormatTag  int
	Frames     int64
}

func (h Header) IsCanonical() bool {
	return h.FormatTag == pcmFormatTag &&
		h.SampleRate == CanonicalSampleRate &&
		h.Channels == CanonicalChannels &&
		h.BitDepth == CanonicalBitDepth
}

// Reader streams PCM frames from a WAV file.
type Reader struct {
	file    *os.File
	decoder *wav.Decoder
	header  Header
	format  *goaudio.Format
}

// OpenWAV opens path and positions the reader at the start of the PCM data.
func OpenWAV(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File) (*Reader, error) {
	dec := wav.NewDecoder(f)
	// FwdToPCM records header errors on the decoder instead of returning them.
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if dec.PCMChunk == nil {
		return nil, errors.New("read wav: missing data chunk")
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 || dec.BitDepth == 0 {
		return nil, errors.New("read wav: invalid format chunk")
	}

	bytesPerFrame := int64(dec.NumChans) * int64((dec.BitDepth+7)/8)
	h := Header{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		FormatTag:  int(dec.WavAudioFormat),
		Frames:     int64(dec.PCMSize) / bytesPerFrame,
	}
	return &Reader{
		file:    f,
		decoder: dec,
		header:  h,
		format:  &goaudio.Format{NumChannels: h.Channels, SampleRate: h.SampleRate},
	}, nil
}

func (r *Reader) Header() Header {
	return r.header
}

// ReadFrames reads up to frames frames as interleaved samples. It returns
// fewer samples only at the end of the data and io.EOF once nothing is left.
func (r *Reader) ReadFrames(frames int) ([]int, error) {
	want := frames * r.header.Channels
	out := make([]int, 0, want)
	buf := &goaudio.IntBuffer{Format: r.format, Data: make([]int, min(want, 8192))}
	for len(out) < want {
		if rem := want - len(out); rem < len(buf.Data) {
			buf.Data = buf.Data[:rem]
		}
		n, err := r.decoder.PCMBuffer(buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		out = append(out, buf.Data[:n]...)
	}
	if len(out) == 0 && want > 0 {
		return nil, io.EOF
	}
	return out, nil
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadHeader inspects the header of a WAV file without reading PCM data.
func ReadHeader(path string) (Header, error) {
	r, err := OpenWAV(path)
	if err != nil {
		return Header{}, err
	}
	defer r.Close()
	return r.header, nil
}

// WriteWAV writes interleaved integer samples as a PCM WAV file.
func WriteWAV(path string, samples []int, sampleRate, channels, bitDepth int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, pcmFormatTag)
	// An empty buffer still emits the header and data chunk.
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// Peak returns the largest absolute sample value as a fraction of full scale.
func Peak(samples []int, bitDepth int) float64 {
	if len(samples) == 0 || bitDepth <= 0 {
		return 0
	}
	peak := 0
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	fullScale := float64(int64(1) << (bitDepth - 1))
	return float64(peak) / fullScale
}
