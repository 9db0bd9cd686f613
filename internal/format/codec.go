// Package format provides encoding and decoding functionality for key-value records.
// Records are stored in a self-delimiting binary format with CRC checksums for
// data integrity: a fixed header carries the key and value sizes, so a stream of
// concatenated records can be decoded back one record at a time.
package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Record flag constants define the type of log entry.
const (
	FlagSet       uint8 = 0 // Set entry containing a key-value pair
	FlagTombstone uint8 = 1 // Tombstone marker indicating a removed key
)

// HeaderSize is the fixed size of the record header in bytes:
// [0:4]   - CRC32 checksum over the rest of the record
// [4:12]  - Timestamp (uint64, little-endian)
// [12:16] - Key size (uint32, little-endian)
// [16:20] - Value size (uint32, little-endian)
// [20:21] - Flag (uint8)
const HeaderSize = 21

// ErrCorrupt is returned when a record fails structural validation or its
// CRC checksum does not match. Errors wrapping it are serialization
// failures rather than I/O failures.
var ErrCorrupt = errors.New("record corrupt")

// Record represents a single key-value entry in the log file.
type Record struct {
	Timestamp uint64 // Unix timestamp when the record was created
	Flag      uint8  // Record type flag (set or tombstone)
	Key       []byte // The key bytes
	Value     []byte // The value bytes; nil for tombstones
}

// NewSet builds a set record for the given key-value pair.
func NewSet(key, value string, timestamp uint64) *Record {
	return &Record{
		Timestamp: timestamp,
		Flag:      FlagSet,
		Key:       []byte(key),
		Value:     []byte(value),
	}
}

// NewTombstone builds a tombstone record marking the key as removed.
func NewTombstone(key string, timestamp uint64) *Record {
	return &Record{
		Timestamp: timestamp,
		Flag:      FlagTombstone,
		Key:       []byte(key),
	}
}

// EncodedSize returns the total on-disk size of the record in bytes.
func (r *Record) EncodedSize() int {
	return HeaderSize + len(r.Key) + len(r.Value)
}

// Encode serializes the record into a byte array. The CRC32 checksum is
// computed over every byte after the checksum field itself.
// Returns the encoded byte array and any error encountered.
func (r *Record) Encode() ([]byte, error) {
	buffer := make([]byte, r.EncodedSize())

	binary.LittleEndian.PutUint64(buffer[4:12], r.Timestamp)
	binary.LittleEndian.PutUint32(buffer[12:16], uint32(len(r.Key)))
	binary.LittleEndian.PutUint32(buffer[16:20], uint32(len(r.Value)))
	buffer[20] = r.Flag

	copy(buffer[HeaderSize:HeaderSize+len(r.Key)], r.Key)
	copy(buffer[HeaderSize+len(r.Key):], r.Value)

	crc := crc32.ChecksumIEEE(buffer[4:])
	binary.LittleEndian.PutUint32(buffer[0:4], crc)

	return buffer, nil
}

// Decode deserializes a byte array into a Record structure.
// It validates the header, extracts all fields, and verifies the CRC
// checksum. Returns an error wrapping ErrCorrupt if the data is
// malformed or fails the checksum.
func Decode(data []byte) (*Record, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d for header",
			ErrCorrupt, len(data), HeaderSize)
	}

	crc := binary.LittleEndian.Uint32(data[0:4])
	timestamp := binary.LittleEndian.Uint64(data[4:12])
	keySize := binary.LittleEndian.Uint32(data[12:16])
	valueSize := binary.LittleEndian.Uint32(data[16:20])
	flag := data[20]

	expectedSize := HeaderSize + int(keySize) + int(valueSize)
	if len(data) < expectedSize {
		return nil, fmt.Errorf("%w: got %d bytes, need %d for full record",
			ErrCorrupt, len(data), expectedSize)
	}

	if calculated := crc32.ChecksumIEEE(data[4:expectedSize]); calculated != crc {
		return nil, fmt.Errorf("%w: CRC mismatch: calculated %d, expected %d",
			ErrCorrupt, calculated, crc)
	}

	key := make([]byte, keySize)
	value := make([]byte, valueSize)
	copy(key, data[HeaderSize:HeaderSize+keySize])
	copy(value, data[HeaderSize+keySize:expectedSize])

	return &Record{
		Timestamp: timestamp,
		Flag:      flag,
		Key:       key,
		Value:     value,
	}, nil
}

// ReadRecord reads exactly one record's worth of bytes from the reader and
// returns the decoded record along with the number of bytes consumed.
// Returns io.EOF when the reader is exhausted at a record boundary, and
// an error wrapping io.ErrUnexpectedEOF when the stream ends inside a record.
func ReadRecord(r io.Reader) (*Record, int, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, fmt.Errorf("failed to read record header: %w", err)
	}

	keySize := binary.LittleEndian.Uint32(header[12:16])
	valueSize := binary.LittleEndian.Uint32(header[16:20])
	total := HeaderSize + int(keySize) + int(valueSize)

	full := make([]byte, total)
	copy(full, header)
	if _, err := io.ReadFull(r, full[HeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, fmt.Errorf("failed to read record body: %w", err)
	}

	record, err := Decode(full)
	if err != nil {
		return nil, 0, err
	}
	return record, total, nil
}
