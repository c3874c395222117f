// Package rpc serves the asset service over JSON-RPC 2.0. Each connection
// joins the service as a RemoteHost, so clients receive asset, compile and
// thumbnail callbacks on the same stream they issue calls on.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
	"github.com/conduit-lang/assetforge/internal/modeldoc"
	"github.com/conduit-lang/assetforge/internal/service"
)

// DefaultCallTimeout bounds calls the server makes to clients
const DefaultCallTimeout = 30 * time.Second

// Options configures a Server
type Options struct {
	Logger      *zap.Logger
	CallTimeout time.Duration
}

// method handles one request. A nil error replies with result.
type method func(ctx context.Context, sess *session, params json.RawMessage) (interface{}, error)

// Server dispatches JSON-RPC requests onto a service
type Server struct {
	svc     *service.Service
	logger  *zap.Logger
	timeout time.Duration
	methods map[string]method

	// model documents are shared by all connections; each connection frees
	// the ones it created when it goes away
	docs   *handle.Table[*modeldoc.Doc]
	docsMu sync.Mutex

	sessions sync.WaitGroup
}

// session is the per-connection state
type session struct {
	conn jsonrpc2.Conn
	host *RemoteHost

	docs   map[handle.Handle]bool
	menuID string
	menu   *host.Menu
	mu     sync.Mutex
}

// NewServer creates a server for svc
func NewServer(svc *service.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	s := &Server{
		svc:     svc,
		logger:  opts.Logger,
		timeout: opts.CallTimeout,
		docs:    handle.NewTable[*modeldoc.Doc](),
	}
	s.methods = s.routes()
	return s
}

// ServeConn serves one client until the stream closes or ctx ends
func (s *Server) ServeConn(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	sess := &session{
		conn: conn,
		host: NewRemoteHost(conn, s.logger, s.timeout),
		docs: make(map[handle.Handle]bool),
	}

	s.sessions.Add(1)
	defer s.sessions.Done()

	s.svc.Hosts().Add(sess.host)
	defer s.svc.Hosts().Remove(sess.host)
	defer s.releaseDocs(sess)

	conn.Go(ctx, s.handler(sess))
	s.logger.Debug("client connected")

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
		<-conn.Done()
	}

	s.logger.Debug("client disconnected")
	if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) && ctx.Err() == nil {
		return err
	}
	return nil
}

// Serve accepts clients on ln until ctx ends
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.sessions.Wait()
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}
		go func() {
			if err := s.ServeConn(ctx, c); err != nil {
				s.logger.Debug("connection ended", zap.Error(err))
			}
		}()
	}
}

// ServeStdio serves a single client on stdin and stdout
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.ServeConn(ctx, stdrwc{})
}

// handler runs every request on its own goroutine. A managed compile keeps
// its request open while the client calls back into the compile context,
// so requests must not wait on each other.
func (s *Server) handler(sess *session) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		m, ok := s.methods[req.Method()]
		if !ok {
			return reply(ctx, nil, fmt.Errorf("%q: %w", req.Method(), jsonrpc2.ErrMethodNotFound))
		}

		go func() {
			result, err := s.call(ctx, m, sess, req)
			if err != nil {
				s.logger.Debug("request failed", zap.String("method", req.Method()), zap.Error(err))
			}
			if err := reply(ctx, result, replyError(err)); err != nil {
				s.logger.Debug("failed to reply", zap.String("method", req.Method()), zap.Error(err))
			}
		}()
		return nil
	}
}

// call runs one method. A panic fails only that request.
func (s *Server) call(ctx context.Context, m method, sess *session, req jsonrpc2.Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request panicked", zap.String("method", req.Method()), zap.Any("panic", r))
			result = nil
			err = jsonrpc2.NewError(jsonrpc2.InternalError, fmt.Sprintf("%s panicked: %v", req.Method(), r))
		}
	}()
	return m(ctx, sess, req.Params())
}

var invalidParamErrors = []error{
	asset.ErrNotFound,
	modeldoc.ErrCountMismatch,
	modeldoc.ErrIndexOutOfRange,
	modeldoc.ErrUnknownGroup,
	modeldoc.ErrDuplicateGroup,
	modeldoc.ErrDegenerateFace,
	modeldoc.ErrInvalidCount,
	modeldoc.ErrIncomplete,
	modeldoc.ErrNonFinite,
}

// replyError maps service errors onto JSON-RPC codes
func replyError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc2.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	for _, target := range invalidParamErrors {
		if errors.Is(err, target) {
			return jsonrpc2.NewError(jsonrpc2.InvalidParams, err.Error())
		}
	}
	return jsonrpc2.NewError(jsonrpc2.InternalError, err.Error())
}

func invalidParams(format string, args ...interface{}) error {
	return jsonrpc2.Errorf(jsonrpc2.InvalidParams, format, args...)
}

// bind decodes params into P before calling fn
func bind[P any](fn func(ctx context.Context, sess *session, p P) (interface{}, error)) method {
	return func(ctx context.Context, sess *session, raw json.RawMessage) (interface{}, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalidParams("invalid params: %v", err)
			}
		}
		return fn(ctx, sess, p)
	}
}

func (s *Server) releaseDocs(sess *session) {
	sess.mu.Lock()
	owned := sess.docs
	sess.docs = nil
	sess.mu.Unlock()

	s.docsMu.Lock()
	for h := range owned {
		s.docs.Remove(h)
	}
	s.docsMu.Unlock()
}

func (sess *session) storeMenu(m *host.Menu) string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.menuID = uuid.NewString()
	sess.menu = m
	return sess.menuID
}

func (sess *session) findMenuItem(menuID, itemID string) (host.MenuItem, bool) {
	sess.mu.Lock()
	m, current := sess.menu, sess.menuID
	sess.mu.Unlock()
	if m == nil || current != menuID {
		return host.MenuItem{}, false
	}
	return m.Find(itemID)
}

// stdrwc implements io.ReadWriteCloser for stdin/stdout
type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
