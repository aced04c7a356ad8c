package http

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/netutil"
)

// ListenAndServe serves the given servers until the context is canceled.
// When maxConns is positive, each server accepts at most maxConns
// simultaneous connections.
func ListenAndServe(ctx context.Context, maxConns int, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		for _, s := range servers {
			if err := s.Shutdown(context.Background()); err != nil {
				logs.Warn(errors.Newf("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			l, err := net.Listen("tcp", s.Addr)
			if err != nil {
				logs.Warn(errors.Newf("listening failed").
					WithTag("addr", s.Addr).
					Wrap(err))
				return
			}
			if maxConns > 0 {
				l = netutil.LimitListener(l, maxConns)
			}

			logs.WithTag("addr", s.Addr).
				WithTag("max_conns", maxConns).
				Info("starting server")

			switch err := s.Serve(l); err {
			case nil, http.ErrServerClosed, context.Canceled:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.Newf("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter returns empty string on HTTP 301, 400, 404 or 405 statusCode
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	return path
}
