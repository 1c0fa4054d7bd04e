package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"

	"logwarden/internal/config"
	"logwarden/internal/model"
)

// StartTCPStream accepts line-delimited log streams over plain TCP.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.RawLine, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go streamConn(ctx, conn, "tcp", out, logger)
		}
	}()
}

// streamConn drains one connection line by line. Shared with the
// syslog TCP listener.
func streamConn(ctx context.Context, conn net.Conn, source string, out chan<- model.RawLine, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		SendNonBlocking(ctx, out, NewRawLine(scanner.Text(), source), logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("stream scanner error", "source", source, "err", err)
	}
}
