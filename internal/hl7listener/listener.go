// Package hl7listener implements §4.5: one accept loop per bound address,
// one worker per connection, framing/parsing/validating/caching each ORM
// and writing back an ACK on the same stream. Adapted from the teacher's
// HL7Server accept-and-dispatch loop, generalized to MLLP framing, ORM-only
// validation, and multiple simultaneous bind addresses.
package hl7listener

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/healthbridge/ormworklist/internal/cache"
	"github.com/healthbridge/ormworklist/internal/hl7msg"
	"github.com/healthbridge/ormworklist/internal/mapper"
	"github.com/healthbridge/ormworklist/internal/mllp"
	"github.com/healthbridge/ormworklist/internal/netutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	readBufferSize = 4096
	connTimeout    = 30 * time.Second
)

// Listener accepts MLLP-framed HL7 connections on every resolved bind
// address and dispatches each frame to the order cache.
type Listener struct {
	ListenIP   string
	Port       int
	Cache      *cache.Cache
	Log        *logrus.Entry
}

// New returns a Listener ready to Run.
func New(listenIP string, port int, c *cache.Cache, log *logrus.Entry) *Listener {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Listener{ListenIP: listenIP, Port: port, Cache: c, Log: log.WithField("component", "hl7listener")}
}

// Run resolves bind addresses and serves until ctx is cancelled. It
// returns once every address's listener has stopped; only a bind failure
// on every configured address is fatal (a partial bind failure is logged
// and the remaining addresses keep serving, since per-interface binds are
// independent per §3/§9).
func (l *Listener) Run(ctx context.Context) error {
	addrs, err := netutil.ResolveBindAddresses(l.ListenIP)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	bound := 0
	for _, addr := range addrs {
		addr := addr
		listener, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(l.Port)))
		if err != nil {
			l.Log.WithError(err).WithField("addr", addr).Warn("failed to bind HL7 listener")
			continue
		}
		bound++
		l.Log.WithField("addr", listener.Addr().String()).Info("HL7 listener bound")

		group.Go(func() error {
			return l.serve(gctx, listener)
		})
	}

	if bound == 0 {
		return &netutil.NetworkError{Addr: l.ListenIP, Err: err}
	}
	return group.Wait()
}

func (l *Listener) serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	group, gctx := errgroup.WithContext(ctx)
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return group.Wait()
			default:
				l.Log.WithError(err).Warn("accept failed")
				continue
			}
		}

		group.Go(func() error {
			l.handleConn(gctx, conn)
			return nil
		})
	}
}

func (l *Listener) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	log := l.Log.WithField("remote", remote)

	decoder := mllp.NewDecoder(mllp.DefaultMaxBuffer)
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = conn.SetDeadline(time.Now().Add(connTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			if n == 0 {
				return // peer closed or idle timeout
			}
		}

		frames, ferr := decoder.Feed(buf[:n])
		for _, frame := range frames {
			l.handleFrame(conn, log, frame)
		}
		if ferr != nil {
			log.WithError(ferr).Warn("framing error, dropping connection")
			return
		}
		if err != nil {
			return
		}
	}
}

func (l *Listener) handleFrame(conn net.Conn, log *logrus.Entry, frame []byte) {
	raw := string(frame)
	now := time.Now().UTC()

	msg, err := hl7msg.Parse(raw)
	if err != nil {
		log.WithError(err).Warn("invalid HL7 message")
		l.writeAck(conn, log, hl7msg.BuildDefaultAck("Invalid HL7 message format", now))
		return
	}

	if err := hl7msg.RequireORM(msg); err != nil {
		l.writeAck(conn, log, hl7msg.BuildAck(msg, hl7msg.AckAppReject,
			"Unsupported message type "+msg.MessageType, now))
		return
	}

	ds, err := mapper.Map(raw)
	if err != nil {
		log.WithError(err).Warn("mapping failed")
		l.writeAck(conn, log, hl7msg.BuildAck(msg, hl7msg.AckAppReject, err.Error(), now))
		return
	}
	if ds == nil {
		log.Warn("mapping produced no dataset; order not cached")
		l.writeAck(conn, log, hl7msg.BuildAck(msg, hl7msg.AckAppError, "no DICOM-mappable content", now))
		return
	}

	id, err := l.Cache.Put(raw)
	if err != nil {
		log.WithError(err).Error("failed to cache order")
		l.writeAck(conn, log, hl7msg.BuildAck(msg, hl7msg.AckAppReject, err.Error(), now))
		return
	}

	log.WithField("order_id", id).Info("order accepted")
	l.writeAck(conn, log, hl7msg.BuildAck(msg, hl7msg.AckAccept, "", now))
}

func (l *Listener) writeAck(conn net.Conn, log *logrus.Entry, ack string) {
	_ = conn.SetWriteDeadline(time.Now().Add(connTimeout))
	if _, err := conn.Write(mllp.Encode([]byte(ack))); err != nil {
		log.WithError(err).Warn("failed to write ACK")
	}
}
