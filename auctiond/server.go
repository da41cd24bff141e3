package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/escrowauction/auctionapi"
)

// Server accepts one JSON request per connection and answers with one JSON
// response.
type Server struct {
	host        *Host
	maxWorkers  int
	readTimeout time.Duration
	metrics     *metrics
	logger      *slog.Logger
}

func NewServer(host *Host, cfg Config, m *metrics, logger *slog.Logger) *Server {
	return &Server{
		host:        host,
		maxWorkers:  cfg.MaxWorkers,
		readTimeout: cfg.ReadTimeout,
		metrics:     m,
		logger:      logger,
	}
}

// Listen opens the vsock listener when a port is configured, TCP otherwise.
func Listen(cfg Config) (net.Listener, error) {
	if cfg.VsockPort != 0 {
		ln, err := vsock.Listen(cfg.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp listener: %w", err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is cancelled. A connection arriving
// while every worker is busy is closed immediately.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.logger.Info("server listening", "addr", ln.Addr().String(), "max_workers", s.maxWorkers)

	semaphore := make(chan struct{}, s.maxWorkers)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("failed to accept connection", "err", err)
			continue
		}

		select {
		case semaphore <- struct{}{}:
			s.metrics.workersBusy.Inc()
			go func(c net.Conn) {
				defer func() {
					s.metrics.workersBusy.Dec()
					<-semaphore
				}()
				s.handleConnection(c)
			}(conn)
		default:
			s.logger.Warn("no workers available, rejecting connection")
			s.metrics.connsDenied.Inc()
			if err := conn.Close(); err != nil {
				s.logger.Error("failed to close rejected connection", "err", err)
			}
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in handleConnection", "panic", r)
		}
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close connection", "err", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var req auctionapi.Request
	var resp auctionapi.Response
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.logger.Warn("failed to decode request", "err", err)
		resp = auctionapi.Response{
			Type:      auctionapi.TypeError,
			Message:   fmt.Sprintf("failed to decode request: %v", err),
			ErrorCode: codeBadRequest,
		}
	} else {
		s.logger.Debug("received request", "type", req.Type, "request_id", req.RequestID, "auction_id", req.AuctionID)
		resp = s.host.Handle(req)
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Error("failed to encode response", "err", err)
		return
	}
	s.logger.Debug("sent response", "type", resp.Type, "success", resp.Success, "processing_ms", resp.ProcessingTime)
}
