package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/als/internal/model"
)

var (
	ErrInvalidHeader  = errors.New("invalid snapshot header")
	ErrColumnMismatch = errors.New("snapshot column length mismatch")
)

// RecordIterator provides a row-by-row view of a snapshot.
type RecordIterator interface {
	Next() bool
	Record() model.Record
	Error() error
	Close() error
}

// SnapshotReader reads files produced by SnapshotWriter.
type SnapshotReader struct {
	decoder *zstd.Decoder
}

func NewSnapshotReader() (*SnapshotReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &SnapshotReader{decoder: dec}, nil
}

// SnapshotInfo is the footer of a snapshot.
type SnapshotInfo struct {
	Rows       int
	MinCounter uint64
	MaxCounter uint64
}

// NewIterator opens filename and yields the records accepted by keep.
// A nil keep accepts everything.
func (sr *SnapshotReader) NewIterator(filename string, keep func(*model.Record) bool) (RecordIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	it := &snapshotIterator{reader: sr, file: f, keep: keep}
	if err := it.init(); err != nil {
		f.Close()
		return nil, err
	}
	return it, nil
}

// ReadSnapshot returns the records of filename accepted by keep.
func (sr *SnapshotReader) ReadSnapshot(filename string, keep func(*model.Record) bool) ([]model.Record, error) {
	it, err := sr.NewIterator(filename, keep)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var records []model.Record
	for it.Next() {
		records = append(records, it.Record())
	}
	return records, it.Error()
}

// Stat reads only the header and footer of filename.
func (sr *SnapshotReader) Stat(filename string) (SnapshotInfo, error) {
	f, err := os.Open(filename)
	if err != nil {
		return SnapshotInfo{}, err
	}
	defer f.Close()
	return readFooter(f)
}

type snapshotIterator struct {
	reader *SnapshotReader
	file   *os.File
	keep   func(*model.Record) bool

	counters []uint64
	stamps   []int64
	levels   []uint8
	sessions []string
	callers  []string
	sources  []string
	messages []string

	rowCount int
	cursor   int
	current  model.Record
	err      error
}

func (it *snapshotIterator) init() error {
	info, err := readFooter(it.file)
	if err != nil {
		return err
	}
	it.rowCount = info.Rows
	it.cursor = -1

	if _, err := it.file.Seek(int64(len(SnapshotHeader)), io.SeekStart); err != nil {
		return err
	}

	it.counters = make([]uint64, it.rowCount)
	if err := it.reader.readFixed(it.file, it.counters); err != nil {
		return err
	}
	it.stamps = make([]int64, it.rowCount)
	if err := it.reader.readFixed(it.file, it.stamps); err != nil {
		return err
	}
	it.levels = make([]uint8, it.rowCount)
	if err := it.reader.readFixed(it.file, it.levels); err != nil {
		return err
	}

	for _, col := range []*[]string{&it.sessions, &it.callers, &it.sources, &it.messages} {
		data, err := it.reader.readAndDecompress(it.file)
		if err != nil {
			return err
		}
		*col = bytesToStringSlice(data)
		if len(*col) != it.rowCount {
			return ErrColumnMismatch
		}
	}
	return nil
}

func (it *snapshotIterator) Next() bool {
	for {
		it.cursor++
		if it.cursor >= it.rowCount {
			return false
		}

		i := it.cursor
		rec := model.Record{
			Counter:   it.counters[i],
			Timestamp: time.Unix(0, it.stamps[i]),
			SessionID: it.sessions[i],
			Caller:    it.callers[i],
			SourceID:  it.sources[i],
			Level:     model.Level(it.levels[i]),
			Message:   it.messages[i],
		}
		if it.keep != nil && !it.keep(&rec) {
			continue
		}
		it.current = rec
		return true
	}
}

func (it *snapshotIterator) Record() model.Record { return it.current }

func (it *snapshotIterator) Error() error { return it.err }

func (it *snapshotIterator) Close() error { return it.file.Close() }

func readFooter(f *os.File) (SnapshotInfo, error) {
	header := make([]byte, len(SnapshotHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		return SnapshotInfo{}, err
	}
	if !bytes.Equal(header, SnapshotHeader) {
		return SnapshotInfo{}, ErrInvalidHeader
	}

	st, err := f.Stat()
	if err != nil {
		return SnapshotInfo{}, err
	}
	if st.Size() < int64(len(SnapshotHeader)+footerSize) {
		return SnapshotInfo{}, errors.New("snapshot too small")
	}

	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, st.Size()-footerSize); err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{
		Rows:       int(binary.LittleEndian.Uint32(footer[0:4])),
		MinCounter: binary.LittleEndian.Uint64(footer[4:12]),
		MaxCounter: binary.LittleEndian.Uint64(footer[12:20]),
	}, nil
}

// readFixed decompresses a block into a fixed-size slice.
func (sr *SnapshotReader) readFixed(r io.Reader, dst any) error {
	data, err := sr.readAndDecompress(r)
	if err != nil {
		return err
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, dst); err != nil {
		return ErrColumnMismatch
	}
	return nil
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
func (sr *SnapshotReader) readAndDecompress(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	return sr.decoder.DecodeAll(compressed, nil)
}

// bytesToStringSlice converts a [Len uint32][Bytes]... block to []string.
func bytesToStringSlice(data []byte) []string {
	var result []string
	buf := bytes.NewReader(data)

	for buf.Len() > 0 {
		var length uint32
		if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
			break
		}
		s := make([]byte, length)
		if _, err := io.ReadFull(buf, s); err != nil {
			break
		}
		result = append(result, string(s))
	}
	return result
}
