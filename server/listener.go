package server

import (
	"net"
	"time"

	"github.com/prebid/adstxt-validator/metrics"
)

type monitorableConnection struct {
	net.Conn
	metrics metrics.MetricsEngine
}

// monitorableListener turns on TCP keep-alives and, when metrics is set, counts connections.
type monitorableListener struct {
	*net.TCPListener
	metrics metrics.MetricsEngine
}

func (l *monitorableConnection) Close() error {
	err := l.Conn.Close()
	l.metrics.RecordConnectionClose(err == nil)
	return err
}

func (ln *monitorableListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		if ln.metrics != nil {
			ln.metrics.RecordConnectionAccept(false)
		}
		return nil, err
	}

	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	if ln.metrics == nil {
		return tc, nil
	}
	ln.metrics.RecordConnectionAccept(true)
	return &monitorableConnection{tc, ln.metrics}, nil
}
