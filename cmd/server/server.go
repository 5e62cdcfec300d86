package main

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nickyhof/CommitStore"
	"github.com/nickyhof/CommitStore/core"
	"github.com/sirupsen/logrus"
)

// Server is a TCP server that exposes a CommitStore instance.
type Server struct {
	listener   net.Listener
	instance   *CommitStore.Instance
	identity   core.Identity
	authConfig *AuthConfig
	log        logrus.FieldLogger
	tlsEnabled bool
	done       chan struct{}
	wg         sync.WaitGroup

	connMu  sync.Mutex
	conns   map[net.Conn]struct{}
	stopped bool
}

// NewServer creates a server that commits as identity.
func NewServer(instance *CommitStore.Instance, identity core.Identity) *Server {
	return &Server{
		instance: instance,
		identity: identity,
		log:      logrus.WithField("component", "server"),
		done:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// SetLogger replaces the server's logger. Call before Start.
func (s *Server) SetLogger(logger logrus.FieldLogger) {
	s.log = logger
}

// NewServerWithAuth creates a server that requires every connection to
// authenticate before issuing commands.
func NewServerWithAuth(instance *CommitStore.Instance, authConfig *AuthConfig) *Server {
	server := NewServer(instance, core.Identity{})
	server.authConfig = authConfig
	return server
}

func (s *Server) authRequired() bool {
	return s.authConfig != nil && s.authConfig.Enabled
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.serve(listener)
	return nil
}

// StartTLS begins listening for TLS connections on the specified address.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS certificate: %w", err)
	}
	listener, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}
	s.tlsEnabled = true
	s.serve(listener)
	return nil
}

func (s *Server) serve(listener net.Listener) {
	s.listener = listener
	s.log.WithField("addr", listener.Addr().String()).Info("listening")
	go s.acceptLoop()
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return.
func (s *Server) Stop() error {
	s.connMu.Lock()
	if s.stopped {
		s.connMu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.done)
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// track registers conn and its handler so Stop can close and wait for it.
// It reports false once the server is stopping.
func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

// TLSEnabled reports whether the server was started with StartTLS.
func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.log.WithError(err).Warn("accept failed")
				continue
			}
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	connLog := s.log.WithField("remote", conn.RemoteAddr().String())
	connLog.Debug("client connected")

	reader := bufio.NewReader(conn)
	state := &ConnectionState{}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		// one request per line
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-s.done:
			default:
				if err != io.EOF {
					connLog.WithError(err).Warn("read failed")
				}
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			connLog.Debug("client disconnected")
			return
		}

		var response Response
		if strings.HasPrefix(strings.ToUpper(line), "AUTH ") {
			response = s.handleAuth(line, state)
		} else {
			response = s.handleLine(line, state)
		}

		data, err := EncodeResponse(response)
		if err != nil {
			connLog.WithError(err).Error("failed to encode response")
			continue
		}

		if _, err := conn.Write(data); err != nil {
			connLog.WithError(err).Warn("write failed")
			return
		}
	}
}

func (s *Server) handleLine(line string, state *ConnectionState) Response {
	if s.authRequired() {
		if !state.IsAuthenticated() {
			return errorResponse(errors.New("authentication required: send AUTH JWT <token>"))
		}
		if !state.tokenExpiry.IsZero() && time.Now().After(state.tokenExpiry) {
			state.authenticated = false
			return errorResponse(errors.New("authentication required: token expired"))
		}
	}

	req, err := DecodeRequest([]byte(line))
	if err != nil {
		return errorResponse(fmt.Errorf("invalid request: %w", err))
	}

	return s.execute(req, s.identityFor(state))
}

// identityFor returns the identity commits on this connection are authored as
func (s *Server) identityFor(state *ConnectionState) core.Identity {
	if identity := state.Identity(); identity != nil {
		return *identity
	}
	return s.identity
}

func (s *Server) execute(req Request, identity core.Identity) Response {
	persistence := s.instance.Persistence

	switch strings.ToLower(req.Op) {
	case "merge":
		return s.executeMerge(req, identity)

	case "contents":
		content, err := persistence.Contents(revOrBranch(req), req.Path)
		if err != nil {
			return errorResponse(err)
		}
		return resultResponse("contents", ContentsResponse{Path: req.Path, Content: content})

	case "list":
		entries, err := persistence.ListTree(revOrBranch(req), req.Path)
		if err != nil {
			return errorResponse(err)
		}
		return resultResponse("list", entries)

	case "resolve":
		commit, err := persistence.ResolveCommit(revOrBranch(req))
		if err != nil {
			return errorResponse(err)
		}
		return resultResponse("commit", commit)

	case "branches":
		branches, err := persistence.ListBranches()
		if err != nil {
			return errorResponse(err)
		}
		return resultResponse("branches", branches)

	case "log":
		transactions, err := persistence.TransactionsFrom(revOrBranch(req), req.Limit)
		if err != nil {
			return errorResponse(err)
		}
		out := make([]TransactionResponse, len(transactions))
		for i, txn := range transactions {
			out[i] = toTransactionResponse(txn)
		}
		return resultResponse("log", out)

	default:
		return errorResponse(fmt.Errorf("unknown op: %q", req.Op))
	}
}

func (s *Server) executeMerge(req Request, identity core.Identity) Response {
	if req.Branch == "" {
		return errorResponse(errors.New("merge requires a branch"))
	}

	opts := core.OptionsFor(identity, req.Message)
	if req.AuthorName != "" || req.AuthorEmail != "" {
		opts.AuthorName = req.AuthorName
		opts.AuthorEmail = req.AuthorEmail
		// the authenticated identity still commits
		opts.CommitterName = identity.Name
		opts.CommitterEmail = identity.Email
	}
	opts.MergeMessage = req.MergeMessage

	txn, err := s.instance.Persistence.MergeCommit(req.Parent, req.Branch, req.Changes, opts)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"branch": req.Branch,
			"kind":   errorKind(err),
		}).WithError(err).Info("merge rejected")
		return errorResponse(err)
	}

	return resultResponse("transaction", toTransactionResponse(txn))
}

// revOrBranch picks the revision a read request targets
func revOrBranch(req Request) string {
	if req.Rev != "" {
		return req.Rev
	}
	if req.Branch != "" {
		return req.Branch
	}
	return "HEAD"
}

func resultResponse(kind string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to encode result: %w", err))
	}
	return Response{
		Success: true,
		Type:    kind,
		Result:  data,
	}
}

func errorResponse(err error) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Kind:    errorKind(err),
	}
}
