package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/intellect4all/numstore/internal/storeerr"
)

// Stream is the append-only WAL file: a write side (append + flush-to-LSN)
// and a read side (sequential and random-positioned reads for recovery),
// as required by spec.md §4.2 "Stream contract". Reads use a distinct
// *os.File so a concurrent recovery scan never contends with the writer's
// offset, per spec.md §5 "Shared resources".
type Stream struct {
	mu       sync.Mutex
	w        *os.File
	r        *os.File
	path     string
	offset   int64 // next append position == current log length
	flushed  int64 // durable prefix
	log      *slog.Logger
}

const walMagic = "NSWL"
const walHeaderSize = 8

// FirstLSN is the LSN of the first record ever appended to a fresh log,
// i.e. the scan starting point when analysis has no master LSN to anchor
// on (spec.md §4.3 "Analysis": "If zero, scan from LSN 0").
const FirstLSN = LSN(walHeaderSize)

// Open creates the WAL file if absent (writing a 4-byte magic + 4-byte
// version header) or opens an existing one and seeks the write cursor to
// its end.
func Open(path string, log *slog.Logger) (*Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: wal open: %v", storeerr.IO, err)
	}
	r, err := os.Open(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: wal open read handle: %v", storeerr.IO, err)
	}
	s := &Stream{w: w, r: r, path: path, log: log}

	fi, err := w.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: wal stat: %v", storeerr.IO, err)
	}
	if fi.Size() == 0 {
		hdr := make([]byte, walHeaderSize)
		copy(hdr, walMagic)
		binary.LittleEndian.PutUint32(hdr[4:], 1)
		if _, err := s.w.WriteAt(hdr, 0); err != nil {
			return nil, fmt.Errorf("%w: wal header: %v", storeerr.IO, err)
		}
		s.offset = walHeaderSize
		s.flushed = walHeaderSize
	} else {
		hdr := make([]byte, walHeaderSize)
		if _, err := io.ReadFull(io.NewSectionReader(r, 0, walHeaderSize), hdr); err != nil {
			return nil, fmt.Errorf("%w: wal header read: %v", storeerr.IO, err)
		}
		if string(hdr[:4]) != walMagic {
			return nil, fmt.Errorf("%w: bad wal magic", storeerr.Corrupt)
		}
		s.offset = fi.Size()
		s.flushed = fi.Size()
	}
	return s, nil
}

// Append writes r, assigning it the LSN equal to the stream's current
// write offset, and returns that LSN. The record is not guaranteed
// durable until FlushTo(lsn) returns.
func (s *Stream) Append(r *Record) (LSN, error) {
	payload, err := encodePayload(r)
	if err != nil {
		return 0, err
	}
	frame := make([]byte, recordHeaderSize+len(payload)+recordTrailerSize)
	frame[0] = byte(r.Kind)
	binary.LittleEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)
	binary.LittleEndian.PutUint32(frame[5+len(payload):], checksum(r.Kind, payload))

	s.mu.Lock()
	defer s.mu.Unlock()
	lsn := LSN(s.offset)
	if _, err := s.w.WriteAt(frame, s.offset); err != nil {
		return 0, fmt.Errorf("%w: wal append: %v", storeerr.IO, err)
	}
	s.offset += int64(len(frame))
	return lsn, nil
}

// FlushTo blocks until all bytes up to and including lsn's record are
// durable (spec.md §4.2 "wal_flush_to"). Since Append already issued the
// WriteAt synchronously, flushing only needs an fsync of the underlying
// file once per call that actually advances the durable mark.
func (s *Stream) FlushTo(lsn LSN) error {
	s.mu.Lock()
	need := int64(lsn) > s.flushed
	cur := s.offset
	s.mu.Unlock()
	if !need {
		return nil
	}
	if err := s.w.Sync(); err != nil {
		return fmt.Errorf("%w: wal fsync: %v", storeerr.IO, err)
	}
	s.mu.Lock()
	if s.flushed < cur {
		s.flushed = cur
	}
	s.mu.Unlock()
	return nil
}

// Flushed returns the current durable prefix length.
func (s *Stream) Flushed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

// Tail returns the current logical end of the log (next append's LSN).
func (s *Stream) Tail() LSN {
	s.mu.Lock()
	defer s.mu.Unlock()
	return LSN(s.offset)
}

// ReadAt decodes the single record starting at lsn. Returns a KindEOF
// record if lsn is at or past the logical end of the log.
func (s *Stream) ReadAt(lsn LSN) (*Record, error) {
	s.mu.Lock()
	tail := s.offset
	s.mu.Unlock()
	if int64(lsn) >= tail {
		return &Record{Kind: KindEOF, LSN: lsn}, nil
	}

	hdr := make([]byte, recordHeaderSize)
	if _, err := s.r.ReadAt(hdr, int64(lsn)); err != nil {
		if err == io.EOF {
			return &Record{Kind: KindEOF, LSN: lsn}, nil
		}
		return nil, fmt.Errorf("%w: wal read header: %v", storeerr.IO, err)
	}
	kind := Kind(hdr[0])
	length := binary.LittleEndian.Uint32(hdr[1:5])

	frame := make([]byte, int(length)+recordTrailerSize)
	if _, err := s.r.ReadAt(frame, int64(lsn)+recordHeaderSize); err != nil {
		if err == io.EOF {
			s.log.Warn("wal: truncated tail record, treating as EOF", "lsn", lsn)
			return &Record{Kind: KindEOF, LSN: lsn}, nil
		}
		return nil, fmt.Errorf("%w: wal read body: %v", storeerr.IO, err)
	}
	payload := frame[:length]
	wantCRC := binary.LittleEndian.Uint32(frame[length:])
	if checksum(kind, payload) != wantCRC {
		// A torn write at the tail of the log is expected after a crash;
		// recovery treats it as a clean EOF rather than CORRUPT (spec.md
		// §7 "Recovery is the only place that swallows errors
		// intentionally").
		s.log.Warn("wal: checksum mismatch, treating as EOF", "lsn", lsn)
		return &Record{Kind: KindEOF, LSN: lsn}, nil
	}
	rec, err := decodePayload(kind, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storeerr.Corrupt, err)
	}
	rec.LSN = lsn
	return rec, nil
}

// Next returns the LSN immediately following the record at lsn, without
// decoding its payload — used by analysis to step CKPT_BEGIN -> the
// record after it.
func (s *Stream) Next(lsn LSN) (LSN, error) {
	hdr := make([]byte, recordHeaderSize)
	if _, err := s.r.ReadAt(hdr, int64(lsn)); err != nil {
		return 0, fmt.Errorf("%w: wal read header: %v", storeerr.IO, err)
	}
	length := binary.LittleEndian.Uint32(hdr[1:5])
	return lsn + LSN(recordHeaderSize) + LSN(length) + LSN(recordTrailerSize), nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := s.w.Sync()
	err2 := s.w.Close()
	err3 := s.r.Close()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}
