package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/lipidatlas/server/internal/reconstruct"
)

// Record payloads are encoded with a compact little-endian layout and
// compressed with zstd before hitting SQLite. Float64 bit patterns are
// preserved exactly, so NaN holes in prebuilt dense images survive the
// round trip.

const codecVersion = 1

const (
	flagScatter  = 1 << 0
	flagDense    = 1 << 1
	flagIndices  = 1 << 2
	flagChannels = 1 << 3
)

func encodeRecord(enc *zstd.Encoder, rec *reconstruct.Record) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(codecVersion)

	var flags byte
	if rec.IsScatter {
		flags |= flagScatter
	}
	if rec.Dense != nil {
		flags |= flagDense
	}
	if len(rec.Indices) > 0 {
		flags |= flagIndices
	}
	if len(rec.Channels) > 0 {
		flags |= flagChannels
	}
	buf.WriteByte(flags)

	writeString(&buf, rec.Name)
	writeString(&buf, rec.BrainID)
	writeFloat(&buf, rec.SliceIndex)

	if rec.Dense != nil {
		writeUint32(&buf, uint32(rec.Dense.Height))
		writeUint32(&buf, uint32(rec.Dense.Width))
		writeFloats(&buf, rec.Dense.Pix)
	}

	writeUint32(&buf, uint32(len(rec.Points)))
	for _, p := range rec.Points {
		writeFloat(&buf, p.Row)
		writeFloat(&buf, p.Col)
		writeFloat(&buf, p.Value)
	}

	writeUint32(&buf, uint32(len(rec.Indices)))
	for _, idx := range rec.Indices {
		writeUint32(&buf, uint32(idx.X))
		writeUint32(&buf, uint32(idx.Y))
		writeUint32(&buf, uint32(idx.Z))
	}

	writeUint32(&buf, uint32(len(rec.ChannelOrder)))
	for _, name := range rec.ChannelOrder {
		values := rec.Channels[name]
		writeString(&buf, name)
		writeFloats(&buf, values)
	}

	return enc.EncodeAll(buf.Bytes(), nil), nil
}

func decodeRecord(dec *zstd.Decoder, payload []byte) (*reconstruct.Record, error) {
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}

	r := bytes.NewReader(raw)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated record payload: %w", err)
	}
	if version != codecVersion {
		return nil, fmt.Errorf("unsupported record codec version %d", version)
	}
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("truncated record payload: %w", err)
	}

	rec := &reconstruct.Record{IsScatter: flags&flagScatter != 0}

	if rec.Name, err = readString(r); err != nil {
		return nil, err
	}
	if rec.BrainID, err = readString(r); err != nil {
		return nil, err
	}
	if rec.SliceIndex, err = readFloat(r); err != nil {
		return nil, err
	}

	if flags&flagDense != 0 {
		h, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		w, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		pix, err := readFloats(r)
		if err != nil {
			return nil, err
		}
		if len(pix) != int(h)*int(w) {
			return nil, fmt.Errorf("dense image %dx%d has %d pixels", h, w, len(pix))
		}
		rec.Dense = &reconstruct.Image{Height: int(h), Width: int(w), Pix: pix}
	}

	nPoints, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if nPoints > 0 {
		rec.Points = make([]reconstruct.Point, nPoints)
		for i := range rec.Points {
			if rec.Points[i].Row, err = readFloat(r); err != nil {
				return nil, err
			}
			if rec.Points[i].Col, err = readFloat(r); err != nil {
				return nil, err
			}
			if rec.Points[i].Value, err = readFloat(r); err != nil {
				return nil, err
			}
		}
	}

	nIndices, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if nIndices > 0 {
		rec.Indices = make([]reconstruct.Index3, nIndices)
		for i := range rec.Indices {
			x, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			y, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			z, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			rec.Indices[i] = reconstruct.Index3{X: int32(x), Y: int32(y), Z: int32(z)}
		}
	}

	nChannels, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if nChannels > 0 {
		rec.Channels = make(map[string][]float64, nChannels)
		rec.ChannelOrder = make([]string, 0, nChannels)
		for i := uint32(0); i < nChannels; i++ {
			name, err := readString(r)
			if err != nil {
				return nil, err
			}
			values, err := readFloats(r)
			if err != nil {
				return nil, err
			}
			rec.ChannelOrder = append(rec.ChannelOrder, name)
			rec.Channels[name] = values
		}
	}

	return rec, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeFloat(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func writeFloats(buf *bytes.Buffer, vs []float64) {
	writeUint32(buf, uint32(len(vs)))
	for _, v := range vs {
		writeFloat(buf, v)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("truncated record payload: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readFloat(r *bytes.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("truncated record payload: %w", err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}

func readFloats(r *bytes.Reader) ([]float64, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	vs := make([]float64, n)
	for i := range vs {
		if vs[i], err = readFloat(r); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("truncated record payload: %w", err)
		}
	}
	return string(b), nil
}
