package worklist

import (
	"context"
	"net"
	"strconv"

	"github.com/healthbridge/ormworklist/internal/cache"
	"github.com/healthbridge/ormworklist/internal/netutil"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SCP is the Modality Worklist service class provider: one accept loop per
// bound address, handing each connection off to serveAssociation. Each
// address's loop admits at most MaxConnections simultaneous associations;
// the limit is not shared across addresses.
type SCP struct {
	ListenIP       string
	Port           int
	AETitle        string
	MaxConnections int
	Cache          *cache.Cache
	Log            *logrus.Entry
}

// New returns an SCP ready to Run.
func New(listenIP string, port int, aeTitle string, maxConnections int, c *cache.Cache, log *logrus.Entry) *SCP {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SCP{
		ListenIP:       listenIP,
		Port:           port,
		AETitle:        aeTitle,
		MaxConnections: maxConnections,
		Cache:          c,
		Log:            log.WithField("component", "worklist_scp"),
	}
}

// Run resolves bind addresses and serves associations until ctx is
// cancelled, mirroring the HL7 listener's per-address accept-loop shape.
func (s *SCP) Run(ctx context.Context) error {
	addrs, err := netutil.ResolveBindAddresses(s.ListenIP)
	if err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	bound := 0
	for _, addr := range addrs {
		listener, err := net.Listen("tcp", net.JoinHostPort(addr, strconv.Itoa(s.Port)))
		if err != nil {
			s.Log.WithError(err).WithField("addr", addr).Warn("failed to bind worklist listener")
			continue
		}
		bound++
		s.Log.WithField("addr", listener.Addr().String()).Info("worklist SCP bound")

		group.Go(func() error {
			return s.serve(gctx, listener)
		})
	}

	if bound == 0 {
		return &netutil.NetworkError{Addr: s.ListenIP, Err: err}
	}
	return group.Wait()
}

func (s *SCP) serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	sem := make(chan struct{}, s.MaxConnections)
	group, gctx := errgroup.WithContext(ctx)
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return group.Wait()
			default:
				s.Log.WithError(err).Warn("accept failed")
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			return group.Wait()
		}

		log := s.Log.WithField("remote", conn.RemoteAddr().String())
		group.Go(func() error {
			defer func() { <-sem }()
			serveAssociation(gctx, conn, s.Cache, s.AETitle, log)
			return nil
		})
	}
}
