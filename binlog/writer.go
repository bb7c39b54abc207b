package binlog

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const (
	PcapMagic = 0xA1B2C3D4

	pcapGlobalLen = 24
	pcapRecordLen = 16
	phdr2Len      = 8 // flag(2) port(2) ip(4)
	snapLen       = 65535
)

// Record flags.
const (
	FlagSnapshot = 0x01 // snapshot received from the simulator
	FlagCommand  = 0x02 // commands sent back
	FlagRun      = 0x10 // run metadata, payload is the 16 byte run id
)

// Writer appends datagrams to a pcap-style recording. It is safe for
// concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	buf []byte
	now func() time.Time
}

// Create opens a new recording at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes the global header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := &Writer{
		w:   w,
		buf: make([]byte, pcapRecordLen+phdr2Len),
		now: time.Now,
	}
	if err := pw.writeGlobalHeader(); err != nil {
		return nil, err
	}
	return pw, nil
}

func (pw *Writer) writeGlobalHeader() error {
	// Magic(4), Major(2), Minor(2), Zone(4), Sig(4), Snap(4), Link(4)
	b := make([]byte, pcapGlobalLen)
	binary.LittleEndian.PutUint32(b[0:], PcapMagic)
	binary.LittleEndian.PutUint16(b[4:], 2)
	binary.LittleEndian.PutUint16(b[6:], 4)
	binary.LittleEndian.PutUint32(b[16:], snapLen)
	binary.LittleEndian.PutUint32(b[20:], 1)
	_, err := pw.w.Write(b)
	return err
}

// WritePacket records data with the current time.
func (pw *Writer) WritePacket(flag uint16, addr *net.UDPAddr, data []byte) error {
	return pw.WritePacketAt(pw.now(), flag, addr, data)
}

// WritePacketAt records data with an explicit timestamp.
func (pw *Writer) WritePacketAt(ts time.Time, flag uint16, addr *net.UDPAddr, data []byte) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	total := uint32(len(data) + phdr2Len)
	binary.LittleEndian.PutUint32(pw.buf[0:], uint32(ts.Unix()))
	binary.LittleEndian.PutUint32(pw.buf[4:], uint32(ts.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(pw.buf[8:], total)
	binary.LittleEndian.PutUint32(pw.buf[12:], total)

	h := pw.buf[pcapRecordLen:]
	binary.LittleEndian.PutUint16(h[0:], flag)
	port := uint16(0)
	var ip4 net.IP
	if addr != nil {
		port = uint16(addr.Port)
		ip4 = addr.IP.To4()
	}
	binary.LittleEndian.PutUint16(h[2:], port)
	if ip4 != nil {
		// network byte order
		copy(h[4:8], ip4)
	} else {
		binary.LittleEndian.PutUint32(h[4:], 0)
	}

	if _, err := pw.w.Write(pw.buf); err != nil {
		return err
	}
	_, err := pw.w.Write(data)
	return err
}

func (pw *Writer) Close() error {
	if c, ok := pw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
