package storage

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/als/internal/model"
)

// SnapshotHeader starts every snapshot file.
var SnapshotHeader = []byte("ALSSNAP1")

// footerSize is RowCount(4) + MinCounter(8) + MaxCounter(8).
const footerSize = 20

// SnapshotWriter exports records as a columnar zstd file.
type SnapshotWriter struct {
	encoder *zstd.Encoder
}

func NewSnapshotWriter() (*SnapshotWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotWriter{encoder: enc}, nil
}

// WriteSnapshot writes records to filename. The file is written next to its
// destination and renamed into place.
func (sw *SnapshotWriter) WriteSnapshot(filename string, records []model.Record) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := sw.write(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filename)
}

func (sw *SnapshotWriter) write(f *os.File, records []model.Record) error {
	// 1. Header
	if _, err := f.Write(SnapshotHeader); err != nil {
		return err
	}

	// 2. Columns
	n := len(records)
	counters := make([]uint64, n)
	stamps := make([]int64, n)
	levels := make([]uint8, n)
	sessions := make([]string, n)
	callers := make([]string, n)
	sources := make([]string, n)
	messages := make([]string, n)

	var minCounter, maxCounter uint64
	for i, r := range records {
		counters[i] = r.Counter
		stamps[i] = r.Timestamp.UnixNano()
		levels[i] = uint8(r.Level)
		sessions[i] = r.SessionID
		callers[i] = r.Caller
		sources[i] = r.SourceID
		messages[i] = r.Message

		if i == 0 || r.Counter < minCounter {
			minCounter = r.Counter
		}
		if r.Counter > maxCounter {
			maxCounter = r.Counter
		}
	}

	if err := sw.writeFixedCol(f, counters); err != nil {
		return err
	}
	if err := sw.writeFixedCol(f, stamps); err != nil {
		return err
	}
	if err := sw.writeFixedCol(f, levels); err != nil {
		return err
	}
	for _, col := range [][]string{sessions, callers, sources, messages} {
		if err := sw.writeStringCol(f, col); err != nil {
			return err
		}
	}

	// 3. Footer
	return sw.writeFooter(f, uint32(n), minCounter, maxCounter)
}

func (sw *SnapshotWriter) writeFixedCol(f *os.File, data any) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return err
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

func (sw *SnapshotWriter) writeStringCol(f *os.File, data []string) error {
	buf := new(bytes.Buffer)
	// [Len uint32][Bytes]...
	for _, s := range data {
		binary.Write(buf, binary.LittleEndian, uint32(len(s)))
		buf.WriteString(s)
	}
	return sw.compressAndWrite(f, buf.Bytes())
}

func (sw *SnapshotWriter) compressAndWrite(f *os.File, raw []byte) error {
	compressed := sw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	if err := binary.Write(f, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return err
	}
	_, err := f.Write(compressed)
	return err
}

func (sw *SnapshotWriter) writeFooter(f *os.File, rowCount uint32, minCounter, maxCounter uint64) error {
	if err := binary.Write(f, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, minCounter); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, maxCounter)
}
