package binlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Record is one datagram read back from a recording.
type Record struct {
	Time    time.Time
	Flag    uint16
	Addr    *net.UDPAddr
	Payload []byte
}

// Stats summarizes what a Reader has returned so far.
type Stats struct {
	Records   int
	Snapshots int
	Commands  int
	Skipped   int
	Bytes     int64
	First     time.Time
	Last      time.Time
}

func (s Stats) Duration() time.Duration {
	if s.Records == 0 {
		return 0
	}
	return s.Last.Sub(s.First)
}

type Reader struct {
	r     io.Reader
	c     io.Closer
	rec   []byte
	phdr  []byte
	stats Stats
}

// Open opens the recording at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.c = f
	return r, nil
}

// NewReader reads and checks the global header.
func NewReader(r io.Reader) (*Reader, error) {
	hdr := make([]byte, pcapGlobalLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("pcap header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(hdr[0:4]); magic != PcapMagic {
		return nil, fmt.Errorf("pcap header: bad magic 0x%x", magic)
	}
	return &Reader{r: r, rec: make([]byte, pcapRecordLen), phdr: make([]byte, phdr2Len)}, nil
}

// Next returns the next record, or io.EOF at the end of the recording. A
// record cut short by the end of the file also ends the recording.
func (r *Reader) Next() (Record, error) {
	for {
		if _, err := io.ReadFull(r.r, r.rec); err != nil {
			return Record{}, eof(err, "pcap record")
		}
		tsSec := binary.LittleEndian.Uint32(r.rec[0:4])
		tsUsec := binary.LittleEndian.Uint32(r.rec[4:8])
		inclLen := binary.LittleEndian.Uint32(r.rec[8:12])
		if inclLen < phdr2Len {
			// malformed record, skip the stated length
			if _, err := io.CopyN(io.Discard, r.r, int64(inclLen)); err != nil {
				return Record{}, eof(err, "skip malformed record")
			}
			r.stats.Skipped++
			continue
		}
		if _, err := io.ReadFull(r.r, r.phdr); err != nil {
			return Record{}, eof(err, "pcap phdr2")
		}
		payload := make([]byte, int(inclLen)-phdr2Len)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return Record{}, eof(err, "pcap payload")
		}

		rec := Record{
			Time:    time.Unix(int64(tsSec), int64(tsUsec)*1000),
			Flag:    binary.LittleEndian.Uint16(r.phdr[0:2]),
			Payload: payload,
		}
		if port := binary.LittleEndian.Uint16(r.phdr[2:4]); port != 0 {
			rec.Addr = &net.UDPAddr{IP: net.IP(append([]byte(nil), r.phdr[4:8]...)), Port: int(port)}
		}
		r.count(rec)
		return rec, nil
	}
}

func (r *Reader) count(rec Record) {
	if r.stats.Records == 0 {
		r.stats.First = rec.Time
	}
	r.stats.Records++
	r.stats.Last = rec.Time
	r.stats.Bytes += int64(len(rec.Payload))
	switch rec.Flag {
	case FlagSnapshot:
		r.stats.Snapshots++
	case FlagCommand:
		r.stats.Commands++
	}
}

func (r *Reader) Stats() Stats { return r.stats }

func (r *Reader) Close() error {
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}

func eof(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	return fmt.Errorf("%s: %w", what, err)
}
