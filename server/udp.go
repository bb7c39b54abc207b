package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"consensus-engine/binlog"
	"consensus-engine/control"
	logutil "consensus-engine/logging"
	"consensus-engine/metrics"
	"consensus-engine/web"
)

const (
	DefaultPort   = 44333
	MaxPacketSize = 65535

	tickDurationTolerance = 1e-9
)

// ErrMalformed marks datagrams that are not a valid snapshot frame.
var ErrMalformed = errors.New("malformed snapshot datagram")

// TickSummary is what dashboards receive once per tick.
type TickSummary struct {
	Run       string  `json:"run"`
	Tick      uint64  `json:"tick"`
	Vehicles  int     `json:"vehicles"`
	MeanAccel float64 `json:"mean_accel"`
	Failsafe  int     `json:"failsafe"`
	Defer     int     `json:"defer"`
}

// Summarize aggregates one tick of commands. Deferred commands are left out
// of the mean.
func Summarize(run string, tick uint64, cmds []control.Command) TickSummary {
	active := lo.Filter(cmds, func(c control.Command, _ int) bool { return !c.Defer })
	s := TickSummary{
		Run:      run,
		Tick:     tick,
		Vehicles: len(cmds),
		Failsafe: lo.CountBy(cmds, func(c control.Command) bool { return c.Failsafe }),
		Defer:    len(cmds) - len(active),
	}
	if len(active) > 0 {
		s.MeanAccel = lo.SumBy(active, func(c control.Command) float64 { return c.Accel }) / float64(len(active))
	}
	return s
}

// Bridge turns snapshot datagrams into command datagrams through a pipeline.
// Calls are serialized; the pipeline is never stepped concurrently.
type Bridge struct {
	mu       sync.Mutex
	pipeline *control.Pipeline
	rec      *binlog.Writer
	hub      *web.Hub
	run      uuid.UUID
	last     TickSummary
	dt       float64
	warnedDt float64
	log      logr.Logger
}

func NewBridge(pipeline *control.Pipeline, logger logr.Logger) *Bridge {
	run := uuid.New()
	return &Bridge{
		pipeline: pipeline,
		run:      run,
		log:      logger.WithValues("run", run.String()),
	}
}

func (b *Bridge) Run() uuid.UUID { return b.run }

// SetRecorder records every snapshot and reply to w, starting with the run id.
func (b *Bridge) SetRecorder(w *binlog.Writer) error {
	if err := w.WritePacket(binlog.FlagRun, nil, b.run[:]); err != nil {
		return err
	}
	b.rec = w
	return nil
}

func (b *Bridge) SetWebHub(h *web.Hub) {
	b.hub = h
}

// SetTickDuration sets the tick duration the simulator is expected to run
// at. Snapshots are still stepped with the duration they carry; a mismatch
// is reported once per distinct value.
func (b *Bridge) SetTickDuration(dt float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dt = dt
}

func (b *Bridge) checkTickDuration(dt float64) {
	if b.dt <= 0 || math.Abs(dt-b.dt) <= tickDurationTolerance || dt == b.warnedDt {
		return
	}
	b.warnedDt = dt
	metrics.TickDurationMismatch.Inc()
	b.log.Info("snapshot tick duration differs from configuration", "snapshot", dt, "configured", b.dt)
}

// Last returns the summary of the most recent tick.
func (b *Bridge) Last() TickSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Handle processes one snapshot datagram from addr and returns the reply.
func (b *Bridge) Handle(ctx context.Context, data []byte, addr *net.UDPAddr) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := DecodeSnapshot(data)
	if err != nil {
		metrics.PacketsReceived.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	b.record(binlog.FlagSnapshot, addr, data)
	b.checkTickDuration(frame.TickDuration())

	res, err := b.pipeline.Step(ctx, frame)
	if err != nil {
		metrics.PacketsReceived.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.PacketsReceived.WithLabelValues("ok").Inc()

	// answer with the simulator's tick so it can match the reply
	reply, err := EncodeCommands(frame.Tick(), res.Commands)
	if err != nil {
		return nil, err
	}
	b.record(binlog.FlagCommand, addr, reply)

	b.last = Summarize(b.run.String(), frame.Tick(), res.Commands)
	if b.hub != nil {
		msg, _ := json.Marshal(b.last)
		b.hub.Broadcast(msg)
	}
	b.log.V(logutil.DEBUG).Info("tick", "tick", frame.Tick(), "vehicles", frame.Len(),
		"meanAccel", b.last.MeanAccel, "failsafe", b.last.Failsafe)
	return reply, nil
}

func (b *Bridge) record(flag uint16, addr *net.UDPAddr, data []byte) {
	if b.rec == nil {
		return
	}
	if err := b.rec.WritePacket(flag, addr, data); err != nil {
		b.log.Error(err, "recording failed")
	}
}

// UdpServer answers every snapshot datagram with a command datagram sent
// back to the same address.
type UdpServer struct {
	conn    *net.UDPConn
	bridge  *Bridge
	running atomic.Bool
	closed  sync.Once
	log     logr.Logger
}

// NewUdpServer listens on port; 0 selects DefaultPort, a negative port any
// free port.
func NewUdpServer(port int, bridge *Bridge, logger logr.Logger) (*UdpServer, error) {
	switch {
	case port == 0:
		port = DefaultPort
	case port < 0:
		port = 0
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port, IP: net.IPv4zero})
	if err != nil {
		return nil, err
	}
	conn.SetReadBuffer(256 * 1024)
	return &UdpServer{conn: conn, bridge: bridge, log: logger}, nil
}

func (s *UdpServer) LocalAddr() *net.UDPAddr { return s.conn.LocalAddr().(*net.UDPAddr) }

// Start serves until Stop is called or ctx is done.
func (s *UdpServer) Start(ctx context.Context) error {
	s.running.Store(true)
	stop := context.AfterFunc(ctx, s.Stop)
	defer stop()

	buf := make([]byte, MaxPacketSize)
	s.log.Info("UDP server listening", "addr", s.conn.LocalAddr().String())
	for s.running.Load() {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error(err, "read failed")
			continue
		}
		// decoded frames copy what they keep, so buf can be reused
		reply := s.serve(ctx, buf[:n], addr)
		if reply == nil {
			continue
		}
		if _, err := s.conn.WriteToUDP(reply, addr); err != nil {
			s.log.Error(err, "reply failed", "to", addr.String())
		}
	}
	return nil
}

// serve returns the reply to one datagram, or nil when it gets none.
// Malformed datagrams are routine noise; a snapshot the pipeline rejects is not.
func (s *UdpServer) serve(ctx context.Context, data []byte, addr *net.UDPAddr) []byte {
	reply, err := s.bridge.Handle(ctx, data, addr)
	switch {
	case err == nil:
		return reply
	case errors.Is(err, ErrMalformed):
		s.log.V(logutil.VERBOSE).Info("snapshot dropped", "from", addr.String(), "err", err.Error())
	default:
		s.log.Error(err, "snapshot rejected", "from", addr.String())
	}
	return nil
}

func (s *UdpServer) Stop() {
	s.running.Store(false)
	s.closed.Do(func() { s.conn.Close() })
}

func (s *UdpServer) String() string {
	return fmt.Sprintf("udp://%s", s.conn.LocalAddr())
}
