package audio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// WAVE format tags
const (
	wavTagPCM   = 1
	wavTagALaw  = 6
	wavTagMuLaw = 7
)

// wavHeader результат разбора RIFF заголовка
type wavHeader struct {
	format     Format
	header     []byte // байты файла до начала данных (включая заголовок data)
	dataOffset int64
	dataSize   int64
}

// readWAVHeader разбирает RIFF/WAVE заголовок до data чанка.
// Чанки, расположенные до data, сохраняются в header как есть.
func readWAVHeader(r io.Reader) (*wavHeader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, errors.Wrap(err, "read RIFF header")
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return nil, errors.Wrap(ErrUnknownFormat, "not a RIFF/WAVE file")
	}

	h := &wavHeader{header: append([]byte(nil), riff[:]...)}
	haveFmt := false

	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return nil, errors.Wrap(err, "read chunk header")
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		h.header = append(h.header, chunk[:]...)

		if id == "data" {
			if !haveFmt {
				return nil, errors.Wrap(ErrUnknownFormat, "data chunk before fmt chunk")
			}
			h.dataOffset = int64(len(h.header))
			h.dataSize = size
			return h, nil
		}

		// RIFF чанки выровнены на 2 байта
		padded := size + size%2
		body := make([]byte, padded)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, errors.Wrapf(err, "read %q chunk", id)
		}
		h.header = append(h.header, body...)

		if id == "fmt " {
			if size < 16 {
				return nil, errors.Wrap(ErrUnknownFormat, "short fmt chunk")
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			channels := binary.LittleEndian.Uint16(body[2:4])
			rate := binary.LittleEndian.Uint32(body[4:8])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if channels != 1 {
				return nil, errors.Wrapf(ErrUnknownFormat, "%d channels", channels)
			}

			h.format = Format{Container: ContainerWAV, SampleRate: int(rate)}
			switch {
			case tag == wavTagMuLaw:
				h.format.Encoding = EncodingMuLaw
			case tag == wavTagALaw:
				h.format.Encoding = EncodingALaw
			case tag == wavTagPCM && bits == 16:
				h.format.Encoding = EncodingLinear16
			default:
				return nil, errors.Wrapf(ErrUnknownFormat, "wav tag %d, %d bits", tag, bits)
			}
			haveFmt = true
		}
	}
}

// patchWAVSizes возвращает копию заголовка с исправленными размерами RIFF и data
func patchWAVSizes(header []byte, dataBytes int64) []byte {
	out := append([]byte(nil), header...)
	binary.LittleEndian.PutUint32(out[4:8], uint32(int64(len(out))-8+dataBytes))
	binary.LittleEndian.PutUint32(out[len(out)-4:], uint32(dataBytes))
	return out
}

// newWAVHeader строит минимальный заголовок для mono файла
func newWAVHeader(f Format) []byte {
	tag := uint16(wavTagMuLaw)
	switch f.Encoding {
	case EncodingALaw:
		tag = wavTagALaw
	case EncodingLinear16:
		tag = wavTagPCM
	}
	bps := f.Encoding.BytesPerSample()

	buf := new(bytes.Buffer)
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, tag)
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate*bps))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bps))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bps*8))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(0))
	return buf.Bytes()
}
