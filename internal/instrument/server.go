package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Serve exposes backend on ln with the same line protocol Dial speaks:
// commands ending in "?" are queries and get one reply line, anything else is
// a write. A failed query is answered with an "ERR ..." line so the client
// does not hang. Serve returns when ctx is done.
func Serve(ctx context.Context, ln net.Listener, backend Conn, logger zerolog.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("instrument: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, c, backend, logger.With().Str("peer", c.RemoteAddr().String()).Logger())
		}()
	}
}

func serveConn(ctx context.Context, c net.Conn, backend Conn, logger zerolog.Logger) {
	defer c.Close()
	closeOnDone := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer closeOnDone()

	logger.Debug().Msg("client connected")
	sc := bufio.NewScanner(c)
	w := bufio.NewWriter(c)
	for sc.Scan() {
		cmd := strings.TrimSpace(sc.Text())
		if cmd == "" {
			continue
		}

		if !strings.HasSuffix(cmd, "?") {
			if err := backend.Write(ctx, cmd); err != nil {
				logger.Warn().Err(err).Str("cmd", cmd).Msg("write failed")
			}
			continue
		}

		reply, err := backend.Query(ctx, cmd)
		if err != nil {
			logger.Warn().Err(err).Str("cmd", cmd).Msg("query failed")
			reply = "ERR " + err.Error()
		}
		if _, err := w.WriteString(reply + "\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
	logger.Debug().Msg("client gone")
}
