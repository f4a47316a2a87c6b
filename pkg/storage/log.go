package storage

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.canoozie.net/riddling/polygraph/pkg/model"
)

// Log errors
var (
	ErrLogCorrupted     = errors.New("log is corrupted")
	ErrLogClosed        = errors.New("log is closed")
	ErrInvalidLogRecord = errors.New("invalid log record")
)

// RecordType identifies the kind of operation a record carries.
type RecordType byte

const (
	RecordPut    RecordType = 1
	RecordDelete RecordType = 2
)

// Log header constants
const (
	LogMagic   uint32 = 0x504C4F47 // "PLOG"
	LogVersion uint16 = 1
)

// Record is a single entry in the replicated log. Origin is the replica
// that first wrote the record and Seq is that origin's sequence number;
// together they identify a record across every replica of the store.
type Record struct {
	Origin    string     `json:"origin"`
	Seq       uint64     `json:"seq"`
	Type      RecordType `json:"type"`
	Key       string     `json:"key"`
	Value     []byte     `json:"value,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

// Log is the append-only backing log of the store. Every local write and
// every replicated record received from a peer is appended here; on open
// the engine replays the log to rebuild its in-memory table.
type Log struct {
	mu          sync.Mutex
	file        *os.File
	writer      *bufio.Writer
	path        string
	isOpen      bool
	syncOnWrite bool
	logger      model.Logger
}

// LogConfig holds configuration options for the log
type LogConfig struct {
	Path        string       // Path to the log file
	SyncOnWrite bool         // Whether to sync to disk after each append
	Logger      model.Logger // Logger for log operations
}

// OpenLog creates or opens the log at the given path.
func OpenLog(config LogConfig) (*Log, error) {
	if config.Logger == nil {
		config.Logger = model.DefaultLoggerInstance
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(config.Path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Log{
		file:        file,
		writer:      bufio.NewWriter(file),
		path:        config.Path,
		isOpen:      true,
		syncOnWrite: config.SyncOnWrite,
		logger:      config.Logger,
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	if fileInfo.Size() == 0 {
		if err := l.writeHeader(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write log header: %w", err)
		}
	} else {
		if err := l.verifyHeader(); err != nil {
			file.Close()
			return nil, fmt.Errorf("invalid log header: %w", err)
		}
	}

	l.logger.Debug("Opened log at %s", config.Path)
	return l, nil
}

// Close closes the log.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return nil
	}

	l.isOpen = false

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush log: %w", err)
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	return nil
}

// Append writes a record to the log. The record's timestamp is filled in
// if unset.
func (l *Log) Append(record Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return ErrLogClosed
	}

	if record.Origin == "" || record.Seq == 0 {
		return ErrInvalidLogRecord
	}

	if record.Timestamp == 0 {
		record.Timestamp = time.Now().UnixNano()
	}

	if err := l.writeRecord(record); err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	if l.syncOnWrite {
		if err := l.syncLocked(); err != nil {
			return err
		}
	}

	return nil
}

// Sync flushes buffered records and syncs the file to disk.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return ErrLogClosed
	}

	return l.syncLocked()
}

func (l *Log) syncLocked() error {
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log: %w", err)
	}
	return nil
}

// Replay reads every record in the log, oldest first, and passes it to
// fn. A truncated tail (e.g. after a crash mid-append) ends the replay
// with a warning rather than an error; a record that fails its checksum
// ends the replay the same way since everything after it is suspect.
func (l *Log) Replay(fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return ErrLogClosed
	}

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush log before replay: %w", err)
	}

	file, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to open log for replay: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if err := readHeader(reader); err != nil {
		return err
	}

	count := 0
	for {
		record, err := readRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			l.logger.Warn("Log replay stopped after %d records: %v", count, err)
			break
		}
		if err := fn(record); err != nil {
			return err
		}
		count++
	}

	l.logger.Debug("Replayed %d log records from %s", count, l.path)
	return nil
}

// Truncate discards all records, leaving an empty log with a fresh
// header.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isOpen {
		return ErrLogClosed
	}

	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush log: %w", err)
	}

	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate log: %w", err)
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log: %w", err)
	}

	l.writer.Reset(l.file)
	if err := l.writeHeader(); err != nil {
		return fmt.Errorf("failed to rewrite log header: %w", err)
	}

	l.logger.Info("Truncated log at %s", l.path)
	return nil
}

// IsOpen returns whether the log is open.
func (l *Log) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isOpen
}

// Path returns the path of the log file.
func (l *Log) Path() string {
	return l.path
}

// writeHeader writes the log header. Caller must hold the lock.
func (l *Log) writeHeader() error {
	if err := binary.Write(l.writer, binary.LittleEndian, LogMagic); err != nil {
		return err
	}
	if err := binary.Write(l.writer, binary.LittleEndian, LogVersion); err != nil {
		return err
	}
	if err := l.writer.Flush(); err != nil {
		return err
	}
	if l.syncOnWrite {
		return l.file.Sync()
	}
	return nil
}

// verifyHeader checks the header of an existing log file. Caller must
// hold the lock.
func (l *Log) verifyHeader() error {
	file, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer file.Close()

	return readHeader(bufio.NewReader(file))
}

func readHeader(reader *bufio.Reader) error {
	var magic uint32
	var version uint16

	if err := binary.Read(reader, binary.LittleEndian, &magic); err != nil {
		return ErrLogCorrupted
	}
	if magic != LogMagic {
		return ErrLogCorrupted
	}

	if err := binary.Read(reader, binary.LittleEndian, &version); err != nil {
		return ErrLogCorrupted
	}
	if version != LogVersion {
		return fmt.Errorf("%w: unsupported log version %d", ErrLogCorrupted, version)
	}

	return nil
}

// writeRecord writes a single record. Caller must hold the lock.
//
// Record layout:
//
//	crc uint32 (over everything below)
//	type byte
//	seq uint64
//	timestamp int64
//	originLen uint16 | origin bytes
//	keyLen uint32 | key bytes
//	valueLen uint32 | value bytes
func (l *Log) writeRecord(record Record) error {
	body := encodeRecordBody(record)

	crc := crc32.ChecksumIEEE(body)
	if err := binary.Write(l.writer, binary.LittleEndian, crc); err != nil {
		return err
	}
	if _, err := l.writer.Write(body); err != nil {
		return err
	}
	return nil
}

func encodeRecordBody(record Record) []byte {
	origin := []byte(record.Origin)
	key := []byte(record.Key)

	size := 1 + 8 + 8 + 2 + len(origin) + 4 + len(key) + 4 + len(record.Value)
	body := make([]byte, 0, size)

	body = append(body, byte(record.Type))
	body = binary.LittleEndian.AppendUint64(body, record.Seq)
	body = binary.LittleEndian.AppendUint64(body, uint64(record.Timestamp))
	body = binary.LittleEndian.AppendUint16(body, uint16(len(origin)))
	body = append(body, origin...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(key)))
	body = append(body, key...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(record.Value)))
	body = append(body, record.Value...)
	return body
}

// readRecord reads a single record from the reader.
func readRecord(reader *bufio.Reader) (Record, error) {
	var crc uint32
	if err := binary.Read(reader, binary.LittleEndian, &crc); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return Record{}, err
	}

	fixed := make([]byte, 1+8+8+2)
	if _, err := io.ReadFull(reader, fixed); err != nil {
		return Record{}, ErrLogCorrupted
	}

	recordType := RecordType(fixed[0])
	seq := binary.LittleEndian.Uint64(fixed[1:9])
	timestamp := int64(binary.LittleEndian.Uint64(fixed[9:17]))
	originLen := binary.LittleEndian.Uint16(fixed[17:19])

	origin := make([]byte, originLen)
	if _, err := io.ReadFull(reader, origin); err != nil {
		return Record{}, ErrLogCorrupted
	}

	var keyLen uint32
	if err := binary.Read(reader, binary.LittleEndian, &keyLen); err != nil {
		return Record{}, ErrLogCorrupted
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return Record{}, ErrLogCorrupted
	}

	var valueLen uint32
	if err := binary.Read(reader, binary.LittleEndian, &valueLen); err != nil {
		return Record{}, ErrLogCorrupted
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(reader, value); err != nil {
		return Record{}, ErrLogCorrupted
	}

	record := Record{
		Origin:    string(origin),
		Seq:       seq,
		Type:      recordType,
		Key:       string(key),
		Timestamp: timestamp,
	}
	// Empty and absent are different things for a put: a put with a
	// zero-length value keeps its non-nil empty slice so it round-trips
	// through replay; only delete tombstones carry no value at all.
	if recordType == RecordPut {
		record.Value = value
	}

	if crc32.ChecksumIEEE(encodeRecordBody(record)) != crc {
		return Record{}, ErrLogCorrupted
	}

	if recordType != RecordPut && recordType != RecordDelete {
		return Record{}, ErrInvalidLogRecord
	}

	return record, nil
}
