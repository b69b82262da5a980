// Package server runs the blocking read-dispatch-write loop that multiplexes
// agent operations over a single duplex byte stream. One logical worker
// processes each request fully to completion before reading the next, so
// responses are emitted in strict request order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fleetconf/git-agent/internal/git"
	"github.com/fleetconf/git-agent/internal/logging"
	"github.com/fleetconf/git-agent/internal/metrics"
	"github.com/fleetconf/git-agent/internal/protocol"
	"github.com/fleetconf/git-agent/internal/repofs"
)

// Syncer brings a working tree to the remote branch tip.
type Syncer interface {
	Sync(ctx context.Context, url, branch, path string, depth int) (string, error)
}

// Inspector provides the read-side repository operations.
type Inspector interface {
	Head(path string) (git.CommitInfo, error)
	Checkout(path, sha string) (string, error)
	LsRemote(ctx context.Context, url, branch string) (string, error)
}

// Server owns the protocol loop. It holds no session state across requests;
// every request carries its own arguments and the only durable state is the
// working trees on disk.
type Server struct {
	in        io.Reader
	out       io.Writer
	syncer    Syncer
	inspector Inspector
	log       *logging.Logger
}

func New(in io.Reader, out io.Writer, syncer Syncer, inspector Inspector, log *logging.Logger) *Server {
	return &Server{in: in, out: out, syncer: syncer, inspector: inspector, log: log}
}

// Run processes requests until the stream closes or fails. A clean close of
// the input is a normal shutdown and returns nil. Framing-level failures
// (truncated stream, undecodable payload, failed write) terminate the loop
// without answering the offending frame: once the stream position cannot be
// trusted, no further byte may be written. Operation-level failures are
// answered with an error response and leave the loop intact.
func (s *Server) Run(ctx context.Context) error {
	for {
		payload, err := protocol.ReadFrame(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Infof("input closed, shutting down")
				return nil
			}
			s.log.Errorf("read failed, shutting down: %v", err)
			return err
		}

		req, err := protocol.DecodeRequest(payload)
		if err != nil {
			s.log.Errorf("malformed request, shutting down: %v", err)
			return err
		}

		resp, err := s.dispatch(ctx, req)
		if err != nil {
			s.log.Errorf("encode response: %v", err)
			return err
		}

		if err := protocol.WriteFrame(s.out, resp); err != nil {
			s.log.Errorf("write failed, shutting down: %v", err)
			return err
		}
	}
}

// dispatch executes one request and encodes its response envelope. The
// returned error is reserved for encode failures, which are fatal; operation
// failures are folded into the envelope.
func (s *Server) dispatch(ctx context.Context, req protocol.Request) ([]byte, error) {
	start := time.Now()
	metrics.RequestCount.WithLabelValues(req.Op).Inc()

	result, err := s.handle(ctx, req)

	metrics.RequestDuration.WithLabelValues(req.Op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RequestFailed.WithLabelValues(req.Op).Inc()
		s.log.Warnf("%s failed: %v", req.Op, err)
		return protocol.EncodeErr(err.Error())
	}

	return protocol.EncodeOK(result)
}

func (s *Server) handle(ctx context.Context, req protocol.Request) (any, error) {
	switch req.Op {
	case protocol.OpSync:
		return s.syncer.Sync(ctx, req.URL, req.Branch, req.Path, req.Depth)

	case protocol.OpFiles:
		return repofs.ListFiles(req.Path, req.Subpath)

	case protocol.OpRead:
		return repofs.ReadFile(req.Path, req.File)

	case protocol.OpHead:
		return s.inspector.Head(req.Path)

	case protocol.OpCheckout:
		return s.inspector.Checkout(req.Path, req.SHA)

	case protocol.OpLsRemote:
		return s.inspector.LsRemote(ctx, req.URL, req.Branch)

	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}
