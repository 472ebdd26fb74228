// Package tdauth drives the clients of the native protocol engine through
// the authorization handshake.
//
// The Worker consumes the engine update stream, keeps the state of each
// bound client and answers the authorization states with the values supplied
// by an authflow.Handler.
package tdauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rusq/tdauth/authflow"
	"github.com/rusq/tdauth/td"
)

var (
	// ErrAlreadyRunning is returned if the attempt is made to start the
	// worker for the second time.
	ErrAlreadyRunning = errors.New("worker is already running")
	ErrNotStarted     = errors.New("worker is not started")
	ErrWorkerStopped  = errors.New("worker is stopped")
	ErrUnknownClient  = errors.New("unknown client")
	ErrClientClosed   = errors.New("client is closed")
	ErrNoHandler      = errors.New("no authorization handler")
	ErrReplyTimeout   = errors.New("timed out waiting for the engine reply")
)

// DispatchError is returned if handling the authorization state failed,
// i.e. the engine rejected the supplied value.  The State should be handled
// again, see Worker.HandleAuthState.
type DispatchError struct {
	Err   error
	State td.AuthorizationState
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("handling %s: %s", e.State.AuthorizationStateType(), e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// reply is the engine reply to a tagged request.
type reply struct {
	typ  string
	data []byte
	// derr is the recorded failure, if the request was answering the
	// authorization state.
	derr *DispatchError
}

// pendingCall is the request waiting for the reply.
type pendingCall struct {
	ch chan reply
	s  *session
	st td.AuthorizationState // nil, if not answering a state
}

type Worker struct {
	engine    Engine
	handler   authflow.Handler
	params    Parameters
	credsStrg credsStorage

	receiveTimeout time.Duration
	replyTimeout   time.Duration
	queueSize      int
	tombstones     int
	tombstoneTTL   time.Duration
	verbosity      int

	trace      *zap.Logger
	registerer prometheus.Registerer
	metrics    *metrics

	mu       sync.RWMutex
	started  bool
	stopping bool
	sessions map[int32]*session
	closed   gcache.Cache // reaped sessions

	credsMu      sync.Mutex
	creds        creds
	credsUnsaved bool

	pmu     sync.Mutex
	pending map[string]pendingCall

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the worker.  The handler is used for the clients that don't
// have their own, it may be nil if all clients do.
func New(engine Engine, handler authflow.Handler, opts ...Option) *Worker {
	w := &Worker{
		engine:  engine,
		handler: handler,
		params:  DefaultParameters(),

		receiveTimeout: defReceiveTimeout,
		replyTimeout:   defReplyTimeout,
		queueSize:      defQueueSize,
		tombstones:     defTombstones,
		tombstoneTTL:   defTombstoneTTL,
		verbosity:      defVerbosity,

		trace:   zap.NewNop(),
		metrics: newMetrics(),

		sessions: make(map[int32]*session),
		pending:  make(map[string]pendingCall),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.closed = gcache.New(w.tombstones).LRU().Expiration(w.tombstoneTTL).Build()
	return w
}

// Start starts consuming the engine updates in the background.  The worker
// stops, when ctx is cancelled or Stop is called, and it can't be started
// again.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return ErrAlreadyRunning
	}
	if w.registerer != nil {
		if err := w.metrics.register(w.registerer); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	if w.verbosity >= 0 {
		w.engine.SetLogVerbosity(w.verbosity)
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	go w.run(w.ctx)
	return nil
}

// Stop asks the engine to close the live clients and stops the worker.  The
// calls waiting for the state changes return ErrWorkerStopped.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return ErrNotStarted
	}
	if w.stopping {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.stopping = true
	w.mu.Unlock()

	w.cancel()
	<-w.done

	w.mu.Lock()
	for id, s := range w.sessions {
		// the engine replies are not read anymore.
		if err := w.send(id, &td.Close{}, ""); err != nil {
			Log.Printf("%s: close: %s", s.client, err)
		}
		w.metrics.sessions.WithLabelValues(s.state.String()).Dec()
		delete(w.sessions, id)
	}
	w.closed.Purge()
	w.mu.Unlock()
	Log.Debug("worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for ctx.Err() == nil {
		id, data, ok := w.engine.Receive(w.receiveTimeout)
		if !ok {
			continue
		}
		if err := w.route(id, data); err != nil {
			Log.Printf("client %d: skipping the update: %s", id, err)
		}
	}
}

// route passes the engine object to whoever is waiting for it.
func (w *Worker) route(id int32, data []byte) error {
	env, err := td.Peek(data)
	if err != nil {
		return err
	}
	w.metrics.updates.WithLabelValues(env.Type).Inc()
	w.trace.Debug("recv",
		zap.Int32("client_id", id),
		zap.String("type", env.Type),
		zap.String("extra", env.Extra),
		zap.ByteString("data", data),
	)
	if env.Extra != "" && w.resolve(env.Extra, reply{typ: env.Type, data: data}) {
		return nil
	}
	if env.Type != td.TypeUpdateAuthorizationState {
		return nil
	}
	st, err := td.UnmarshalUpdateAuthorizationState(data)
	if err != nil {
		return err
	}
	w.transition(id, st)
	return nil
}

// transition records the new authorization state of the client and queues
// it for dispatch.  The queue send blocks, if the session has queueSize
// states waiting.
func (w *Worker) transition(id int32, st td.AuthorizationState) {
	w.mu.Lock()
	s, ok := w.sessions[id]
	if !ok {
		w.mu.Unlock()
		Log.Debugf("client %d: %s for unknown client", id, st.AuthorizationStateType())
		return
	}
	from := s.state
	s.setLocked(st)
	w.metrics.moved(from, s.state)
	closed := s.state == ClientStateClosed
	if closed {
		w.reapLocked(s)
	}
	w.mu.Unlock()

	Log.Debugf("%s: %s", s.client, st.AuthorizationStateType())
	if closed {
		return
	}
	select {
	case s.queue <- st:
	case <-w.ctx.Done():
	}
}

// reapLocked moves the closed session to the tombstones.
func (w *Worker) reapLocked(s *session) {
	delete(w.sessions, s.client.id)
	w.metrics.sessions.WithLabelValues(ClientStateClosed.String()).Dec()
	close(s.quit)
	if err := w.closed.Set(s.client.id, s); err != nil {
		Log.Printf("%s: failed to keep the closed session: %s", s.client, err)
	}
}

// serve dispatches the queued states of the session one at a time.
func (w *Worker) serve(ctx context.Context, s *session) {
	for {
		select {
		case st := <-s.queue:
			if err := w.handle(ctx, s, st); err != nil {
				Log.Printf("%s: %s", s.client, err)
			}
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// BindClient creates the engine client and registers it with the worker.
// The worker then drives the client through the authorization.
func (w *Worker) BindClient(c Client) (BoundClient, error) {
	w.mu.Lock()
	if err := w.checkLocked(); err != nil {
		w.mu.Unlock()
		return BoundClient{}, err
	}
	h := c.Handler
	if h == nil {
		h = w.handler
	}
	if h == nil {
		w.mu.Unlock()
		return BoundClient{}, ErrNoHandler
	}
	p := w.params
	if c.Parameters != nil {
		p = *c.Parameters
	}
	id := w.engine.CreateClient()
	s := newSession(BoundClient{name: c.Name, id: id}, h, p, w.queueSize)
	w.sessions[id] = s
	w.metrics.sessions.WithLabelValues(s.state.String()).Inc()
	go w.serve(w.ctx, s)
	w.mu.Unlock()

	// the engine starts the client on the first request.
	if err := w.send(id, &td.GetOption{Name: "version"}, ""); err != nil {
		return s.client, err
	}
	Log.Debugf("%s: bound", s.client)
	return s.client, nil
}

// HandleAuthState handles the authorization state st of the client.  It's
// called by the worker for every state the engine reports, and can be called
// to retry the state after a DispatchError, once the handler input is
// corrected.  The call is serialized with the other dispatches of the
// client.
func (w *Worker) HandleAuthState(ctx context.Context, st td.AuthorizationState, c BoundClient) error {
	w.mu.RLock()
	s, ok := w.sessions[c.id]
	err := w.checkLocked()
	w.mu.RUnlock()
	if err != nil {
		return err
	}
	if !ok {
		if _, err := w.closed.Get(c.id); err == nil {
			return ErrClientClosed
		}
		return ErrUnknownClient
	}
	return w.handle(ctx, s, st)
}

func (w *Worker) handle(ctx context.Context, s *session, st td.AuthorizationState) error {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	// the dispatch is cancelled when the worker stops.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	w.mu.RLock()
	since := s.transSeq
	w.mu.RUnlock()

	err := w.dispatch(ctx, s, st)
	defer w.metrics.dispatched(st.AuthorizationStateType(), err)
	if err == nil {
		return nil
	}
	if w.ctx.Err() != nil {
		return ErrWorkerStopped
	}
	var derr *DispatchError
	if errors.As(err, &derr) {
		// the engine rejection, recorded when the reply was routed.
		return derr
	}
	derr = &DispatchError{Err: err, State: st}
	w.mu.Lock()
	defer w.mu.Unlock()
	if s.transSeq != since && !sameType(s.authState, st) {
		// the engine has moved on meanwhile, and the new state is the one to
		// act on.
		Log.Debugf("%s: %s", s.client, derr)
		return derr
	}
	s.failLocked(derr)
	return derr
}

func sameType(a, b td.AuthorizationState) bool {
	return a != nil && b != nil && a.AuthorizationStateType() == b.AuthorizationStateType()
}

// dispatch asks the handler for the value the state needs and sends it to the
// engine.
func (w *Worker) dispatch(ctx context.Context, s *session, st td.AuthorizationState) error {
	var req td.Request
	switch st := st.(type) {
	case *td.AuthorizationStateWaitTdlibParameters:
		p, err := w.parameters(ctx, s)
		if err != nil {
			return err
		}
		req = p.request()
	case *td.AuthorizationStateWaitEncryptionKey:
		key, err := s.handler.HandleEncryptionKey(ctx, st)
		if err != nil {
			return err
		}
		req = &td.CheckDatabaseEncryptionKey{EncryptionKey: key}
	case *td.AuthorizationStateWaitPhoneNumber:
		id, err := s.handler.HandleWaitClientIdentifier(ctx, st)
		if err != nil {
			return err
		}
		if id.IsBot() {
			req = &td.CheckAuthenticationBotToken{Token: id.Value}
		} else {
			req = &td.SetAuthenticationPhoneNumber{PhoneNumber: id.Value}
		}
	case *td.AuthorizationStateWaitCode:
		code, err := s.handler.HandleWaitCode(ctx, st)
		if err != nil {
			return err
		}
		req = &td.CheckAuthenticationCode{Code: code}
	case *td.AuthorizationStateWaitPassword:
		pass, err := s.handler.HandleWaitPassword(ctx, st)
		if err != nil {
			return err
		}
		req = &td.CheckAuthenticationPassword{Password: pass}
	case *td.AuthorizationStateWaitRegistration:
		first, last, err := s.handler.HandleWaitRegistration(ctx, st)
		if err != nil {
			return err
		}
		req = &td.RegisterUser{FirstName: first, LastName: last}
	case *td.AuthorizationStateWaitOtherDeviceConfirmation:
		s.handler.HandleOtherDeviceConfirmation(ctx, st)
		return nil
	case *td.AuthorizationStateReady:
		w.saveCreds()
		return nil
	default:
		// LoggingOut, Closing and Closed need nothing.
		return nil
	}
	return w.call(ctx, s, st, req)
}

// parameters returns the session parameters with the API credentials.
func (w *Worker) parameters(ctx context.Context, s *session) (Parameters, error) {
	p := s.params
	if p.hasCreds() {
		return p, nil
	}
	w.credsMu.Lock()
	defer w.credsMu.Unlock()
	if w.creds.IsEmpty() && w.credsStrg.IsAvailable() {
		c, err := w.credsStrg.Load()
		if err == nil && !c.IsEmpty() {
			w.creds = c
		} else {
			Log.Debugf("warning: error loading credentials file, requesting manual input: %v", err)
		}
	}
	if w.creds.IsEmpty() {
		ca, ok := s.handler.(authflow.CredentialsAsker)
		if !ok {
			return p, authflow.ErrNoCredentials
		}
		id, hash, err := ca.GetAPICredentials(ctx)
		if err != nil {
			return p, err
		}
		c := creds{ID: id, Hash: hash}
		if c.IsEmpty() {
			return p, errors.New("invalid credentials")
		}
		w.creds = c
		w.credsUnsaved = true
	}
	p.APIID, p.APIHash = w.creds.ID, w.creds.Hash
	return p, nil
}

// saveCreds saves the entered credentials, now that we're sure they're
// correct.
func (w *Worker) saveCreds() {
	w.credsMu.Lock()
	defer w.credsMu.Unlock()
	if !w.credsUnsaved || !w.credsStrg.IsAvailable() {
		return
	}
	if err := w.credsStrg.Save(w.creds); err != nil {
		// not a fatal error
		Log.Printf("failed to save credentials: %s, but nevermind let's continue", err)
		return
	}
	w.credsUnsaved = false
}

// call sends the request and waits for the engine to reply.  The error reply
// is returned as *td.Error, or as *DispatchError if the request answers the
// authorization state st.  Sending the new value clears the pending failure
// of the session.
func (w *Worker) call(ctx context.Context, s *session, st td.AuthorizationState, req td.Request) error {
	extra := uuid.NewString()
	ch := make(chan reply, 1)
	w.pmu.Lock()
	w.pending[extra] = pendingCall{ch: ch, s: s, st: st}
	w.pmu.Unlock()
	defer func() {
		w.pmu.Lock()
		delete(w.pending, extra)
		w.pmu.Unlock()
	}()

	if st != nil {
		w.mu.Lock()
		s.failure = nil
		w.mu.Unlock()
	}
	start := time.Now()
	if err := w.send(s.client.id, req, extra); err != nil {
		return err
	}

	timer := time.NewTimer(w.replyTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		w.metrics.replies.Observe(time.Since(start).Seconds())
		if r.typ != td.TypeError {
			return nil
		}
		if r.derr != nil {
			return r.derr
		}
		terr, err := td.UnmarshalError(r.data)
		if err != nil {
			return err
		}
		return terr
	case <-timer.C:
		return ErrReplyTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) send(id int32, req td.Request, extra string) error {
	data, err := td.Marshal(req, extra)
	if err != nil {
		return err
	}
	// the request body is not logged, as it carries the secrets.
	w.trace.Debug("send",
		zap.Int32("client_id", id),
		zap.String("type", req.RequestType()),
		zap.String("extra", extra),
	)
	w.engine.Send(id, data)
	return nil
}

// resolve passes the reply to the call waiting for it.  The rejection of
// the value answering the authorization state is recorded right away, before
// the loop routes the updates that follow it.
func (w *Worker) resolve(extra string, r reply) bool {
	w.pmu.Lock()
	pc, ok := w.pending[extra]
	delete(w.pending, extra)
	w.pmu.Unlock()
	if !ok {
		return false
	}
	if r.typ == td.TypeError && pc.st != nil {
		var cause error
		terr, err := td.UnmarshalError(r.data)
		if err != nil {
			cause = err
		} else {
			cause = terr
		}
		r.derr = &DispatchError{Err: cause, State: pc.st}
		w.mu.Lock()
		pc.s.failLocked(r.derr)
		w.mu.Unlock()
	}
	pc.ch <- r
	return true
}

// CloseClient asks the engine to close the client.  The session is reaped
// once the engine reports it closed.
func (w *Worker) CloseClient(ctx context.Context, c BoundClient) error {
	return w.request(ctx, c, &td.Close{})
}

// LogOut logs the client out, and the engine closes it afterwards.
func (w *Worker) LogOut(ctx context.Context, c BoundClient) error {
	return w.request(ctx, c, &td.LogOut{})
}

func (w *Worker) request(ctx context.Context, c BoundClient, req td.Request) error {
	w.mu.RLock()
	s, ok := w.sessions[c.id]
	err := w.checkLocked()
	w.mu.RUnlock()
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownClient
	}
	return w.call(ctx, s, nil, req)
}

// WaitAuthStateChange waits for the next authorization state transition of
// the client or for the dispatch failure, whichever comes first, and returns
// the client state.  The failure is returned as *DispatchError, and is
// preferred over the transition if both happened.  It stays pending until
// the new value for the state is sent (see HandleAuthState) or the engine
// reports a different state: the calls made meanwhile return it without
// waiting.  The engine repeating the rejected state keeps it pending.  If
// the authorization has concluded, the client state is returned
// immediately.
func (w *Worker) WaitAuthStateChange(ctx context.Context, c BoundClient) (ClientState, error) {
	w.mu.Lock()
	s, err := w.sessionLocked(c)
	if err != nil {
		w.mu.Unlock()
		return ClientStateClosed, err
	}
	if s.state != ClientStateAuthorizing {
		state := s.state
		w.mu.Unlock()
		return state, nil
	}
	if s.failure != nil {
		state, derr := s.state, s.failure
		w.mu.Unlock()
		return state, derr
	}
	return w.waitLocked(ctx, s, func(since uint64) (bool, error) {
		if s.failSeq > since {
			return true, s.lastFailure
		}
		return s.transSeq > since, nil
	})
}

// WaitClientState waits for the next authorization state transition of the
// client and returns the client state.  It doesn't see the dispatch
// failures: if the failed state is never handled again, it waits until ctx
// is done.  Use WaitAuthStateChange to act on failures.
func (w *Worker) WaitClientState(ctx context.Context, c BoundClient) (ClientState, error) {
	w.mu.Lock()
	s, err := w.sessionLocked(c)
	if err != nil {
		w.mu.Unlock()
		return ClientStateClosed, err
	}
	if s.state == ClientStateClosed {
		w.mu.Unlock()
		return ClientStateClosed, nil
	}
	return w.waitLocked(ctx, s, func(since uint64) (bool, error) {
		return s.transSeq > since, nil
	})
}

// waitLocked waits until cond, called with the lock held on each session
// event, returns true.  It must be called with w.mu locked and unlocks it.
func (w *Worker) waitLocked(ctx context.Context, s *session, cond func(since uint64) (bool, error)) (ClientState, error) {
	s.waiters++
	since := s.seq
	for {
		ch := s.changed
		w.mu.Unlock()
		var err error
		select {
		case <-ch:
		case <-ctx.Done():
			err = ctx.Err()
		case <-w.done:
			err = ErrWorkerStopped
		}
		w.mu.Lock()
		if err == nil {
			var ok bool
			if ok, err = cond(since); !ok {
				continue
			}
		}
		s.waiters--
		state := s.state
		w.mu.Unlock()
		return state, err
	}
}

// GetClientState returns the current state of the client.  The
// authorization state is nil, if the engine has not reported any yet.
func (w *Worker) GetClientState(c BoundClient) (ClientState, td.AuthorizationState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, err := w.sessionLocked(c)
	if err != nil {
		return ClientStateClosed, nil, err
	}
	return s.state, s.authState, nil
}

// Sessions returns the live clients ordered by the engine handle.
func (w *Worker) Sessions() []BoundClient {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cc := make([]BoundClient, 0, len(w.sessions))
	for _, s := range w.sessions {
		cc = append(cc, s.client)
	}
	sort.Slice(cc, func(i, j int) bool { return cc[i].id < cc[j].id })
	return cc
}

// sessionLocked returns the live or the recently closed session.
func (w *Worker) sessionLocked(c BoundClient) (*session, error) {
	if err := w.checkLocked(); err != nil {
		return nil, err
	}
	if s, ok := w.sessions[c.id]; ok {
		return s, nil
	}
	if v, err := w.closed.Get(c.id); err == nil {
		return v.(*session), nil
	}
	return nil, ErrUnknownClient
}

func (w *Worker) checkLocked() error {
	if !w.started {
		return ErrNotStarted
	}
	if w.stopping || w.ctx.Err() != nil {
		return ErrWorkerStopped
	}
	return nil
}
