package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// EncodeWAVPCM16LE wraps raw PCM16LE mono audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVPCM16LETo(&buf, pcm, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVPCM16LEFile writes raw PCM16LE mono audio bytes as a WAV file.
func WriteWAVPCM16LEFile(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVPCM16LETo(f, pcm, sampleRate)
}

// WriteWAVPCM16LETo writes raw PCM16LE mono audio bytes to out as a WAV stream.
func WriteWAVPCM16LETo(out io.Writer, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	w := bufio.NewWriter(out)
	if err := writeWAVHeader(w, WAVFormat{AudioFormat: 1, Channels: 1, SampleRate: sampleRate, BitsPerSample: 16}, uint32(len(pcm))); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// WAVFormat is the subset of the fmt chunk needed to size and join PCM data.
type WAVFormat struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
}

func (f WAVFormat) ByteRate() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// WAVInfo describes a parsed WAV file.
type WAVInfo struct {
	Format     WAVFormat
	DataOffset int64
	DataSize   int64
}

func (i WAVInfo) Duration() time.Duration {
	rate := i.Format.ByteRate()
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(i.DataSize) / float64(rate) * float64(time.Second))
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// ReadWAVInfo walks the RIFF chunks of r until the data chunk.
func ReadWAVInfo(r io.ReadSeeker) (WAVInfo, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVInfo{}, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVInfo{}, errNotWAV
	}

	var (
		info    WAVInfo
		haveFmt bool
		offset  int64 = 12
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return WAVInfo{}, fmt.Errorf("wav chunk header: %w", err)
		}
		offset += 8
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return WAVInfo{}, fmt.Errorf("wav fmt chunk too short (%d)", size)
			}
			var body [16]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return WAVInfo{}, fmt.Errorf("wav fmt chunk: %w", err)
			}
			info.Format = WAVFormat{
				AudioFormat:   int(binary.LittleEndian.Uint16(body[0:2])),
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			haveFmt = true
			if _, err := r.Seek(chunkPad(size)-16, io.SeekCurrent); err != nil {
				return WAVInfo{}, err
			}
		case "data":
			if !haveFmt {
				return WAVInfo{}, fmt.Errorf("wav data chunk before fmt chunk")
			}
			info.DataOffset = offset
			info.DataSize = size
			return info, nil
		default:
			if _, err := r.Seek(chunkPad(size), io.SeekCurrent); err != nil {
				return WAVInfo{}, err
			}
		}
		offset += chunkPad(size)
	}
}

// ReadWAVFileInfo opens path and parses its WAV header.
func ReadWAVFileInfo(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()
	return ReadWAVInfo(f)
}

// ConcatWAVFiles joins the PCM data of WAV files sharing one format.
func ConcatWAVFiles(paths []string, outputPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("no wav inputs")
	}
	infos := make([]WAVInfo, len(paths))
	var total int64
	for i, p := range paths {
		info, err := ReadWAVFileInfo(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if i > 0 && info.Format != infos[0].Format {
			return fmt.Errorf("wav format mismatch: %s has %+v, want %+v", p, info.Format, infos[0].Format)
		}
		infos[i] = info
		total += info.DataSize
	}
	if total > int64(^uint32(0))-36 {
		return fmt.Errorf("combined wav data too large (%d bytes)", total)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	if err := writeWAVHeader(w, infos[0].Format, uint32(total)); err != nil {
		_ = out.Close()
		return err
	}
	for i, p := range paths {
		if err := copyWAVData(w, p, infos[i]); err != nil {
			_ = out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func copyWAVData(w io.Writer, path string, info WAVInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(info.DataOffset, io.SeekStart); err != nil {
		return err
	}
	n, err := io.CopyN(w, f, info.DataSize)
	if err != nil {
		return fmt.Errorf("copy %s: %w (copied %d of %d bytes)", path, err, n, info.DataSize)
	}
	return nil
}

func writeWAVHeader(w *bufio.Writer, f WAVFormat, dataSize uint32) error {
	blockAlign := uint16(f.Channels * f.BitsPerSample / 8)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	fields := []any{
		uint32(16),
		uint16(f.AudioFormat),
		uint16(f.Channels),
		uint32(f.SampleRate),
		uint32(f.ByteRate()),
		blockAlign,
		uint16(f.BitsPerSample),
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, dataSize)
}

func chunkPad(size int64) int64 {
	if size%2 == 1 {
		return size + 1
	}
	return size
}
