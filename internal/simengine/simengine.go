// Package simengine is the in-process engine that plays the authorization
// handshake by the script.
package simengine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rusq/tdauth/td"
)

// Error messages returned for the rejected values.
const (
	ErrPhoneInvalid    = "PHONE_NUMBER_INVALID"
	ErrCodeInvalid     = "PHONE_CODE_INVALID"
	ErrPasswordInvalid = "PASSWORD_HASH_INVALID"
	ErrTokenInvalid    = "ACCESS_TOKEN_INVALID"
	ErrKeyInvalid      = "Wrong database encryption key"
	ErrNameInvalid     = "FIRSTNAME_INVALID"
	ErrParamsInvalid   = "Valid api_id must be provided"
	ErrUnexpected      = "Unexpected request"
)

// Config is the script of the handshake.  The empty Password means no two
// factor authentication.
type Config struct {
	EncryptionKey string
	Phone         string
	BotToken      string
	Code          string
	Password      string
	// Register makes the phone number a new account.
	Register bool
	// ConfirmLink, if set, is reported in the other device confirmation
	// state before the code is asked for.
	ConfirmLink string
	// Reemit makes the engine report the state again after rejecting the
	// value.
	Reemit bool
}

type message struct {
	id   int32
	data []byte
}

type client struct {
	started  bool
	state    td.AuthorizationState
	requests []string
}

// Engine implements tdauth.Engine.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	lastID    int32
	clients   map[int32]*client
	verbosity int

	out chan message
}

func New(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		clients:   make(map[int32]*client),
		verbosity: 1,
		out:       make(chan message, 1024),
	}
}

func (e *Engine) CreateClient() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastID++
	e.clients[e.lastID] = &client{}
	return e.lastID
}

func (e *Engine) SetLogVerbosity(level int) {
	e.mu.Lock()
	e.verbosity = level
	e.mu.Unlock()
}

// Verbosity returns the log verbosity level.
func (e *Engine) Verbosity() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.verbosity
}

func (e *Engine) Receive(timeout time.Duration) (int32, []byte, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-e.out:
		return m.id, m.data, true
	case <-t.C:
		return 0, nil, false
	}
}

// Requests returns the types of the requests the client has received.
func (e *Engine) Requests(id int32) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[id]
	if !ok {
		return nil
	}
	return append([]string(nil), c.requests...)
}

// Emit injects the authorization state update for the client.
func (e *Engine) Emit(id int32, st td.AuthorizationState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[id]; ok {
		e.setState(id, c, st)
	}
}

// EmitRaw injects an arbitrary object into the update stream.
func (e *Engine) EmitRaw(id int32, data []byte) {
	e.out <- message{id: id, data: data}
}

func (e *Engine) Send(id int32, request []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[id]
	if !ok {
		return
	}
	env, err := td.Peek(request)
	if err != nil {
		return
	}
	c.requests = append(c.requests, env.Type)
	if !c.started {
		c.started = true
		e.setState(id, c, &td.AuthorizationStateWaitTdlibParameters{})
	}
	e.handle(id, c, env, request)
}

// handle plays the request, called with the lock held.
func (e *Engine) handle(id int32, c *client, env td.Envelope, request []byte) {
	var (
		st   = c.state
		next td.AuthorizationState
		msg  string
	)
	switch env.Type {
	case "getOption":
		e.push(id, map[string]any{"@type": "optionValueString", "@extra": env.Extra, "value": "1.7.0"})
		return
	case "close":
		e.ok(id, env.Extra)
		e.setState(id, c, &td.AuthorizationStateClosing{})
		e.setState(id, c, &td.AuthorizationStateClosed{})
		return
	case "logOut":
		e.ok(id, env.Extra)
		e.setState(id, c, &td.AuthorizationStateLoggingOut{})
		e.setState(id, c, &td.AuthorizationStateClosing{})
		e.setState(id, c, &td.AuthorizationStateClosed{})
		return
	case "setTdlibParameters":
		var req td.SetTdlibParameters
		if !expect[*td.AuthorizationStateWaitTdlibParameters](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.Parameters.APIID == 0 || req.Parameters.APIHash == "" {
			msg = ErrParamsInvalid
		} else {
			next = &td.AuthorizationStateWaitEncryptionKey{}
		}
	case "checkDatabaseEncryptionKey":
		var req td.CheckDatabaseEncryptionKey
		if !expect[*td.AuthorizationStateWaitEncryptionKey](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.EncryptionKey != e.cfg.EncryptionKey {
			msg = ErrKeyInvalid
		} else {
			next = &td.AuthorizationStateWaitPhoneNumber{}
		}
	case "setAuthenticationPhoneNumber":
		var req td.SetAuthenticationPhoneNumber
		if !expect[*td.AuthorizationStateWaitPhoneNumber](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.PhoneNumber != e.cfg.Phone || req.PhoneNumber == "" {
			msg = ErrPhoneInvalid
		} else {
			if e.cfg.ConfirmLink != "" {
				e.ok(id, env.Extra)
				e.setState(id, c, &td.AuthorizationStateWaitOtherDeviceConfirmation{Link: e.cfg.ConfirmLink})
				e.setState(id, c, e.waitCode())
				return
			}
			next = e.waitCode()
		}
	case "checkAuthenticationBotToken":
		var req td.CheckAuthenticationBotToken
		if !expect[*td.AuthorizationStateWaitPhoneNumber](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.Token != e.cfg.BotToken || req.Token == "" {
			msg = ErrTokenInvalid
		} else {
			next = &td.AuthorizationStateReady{}
		}
	case "checkAuthenticationCode":
		var req td.CheckAuthenticationCode
		if !expect[*td.AuthorizationStateWaitCode](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.Code != e.cfg.Code {
			msg = ErrCodeInvalid
		} else {
			next = e.afterCode()
		}
	case "registerUser":
		var req td.RegisterUser
		if !expect[*td.AuthorizationStateWaitRegistration](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.FirstName == "" {
			msg = ErrNameInvalid
		} else {
			next = e.afterRegistration()
		}
	case "checkAuthenticationPassword":
		var req td.CheckAuthenticationPassword
		if !expect[*td.AuthorizationStateWaitPassword](st) || json.Unmarshal(request, &req) != nil {
			msg = ErrUnexpected
		} else if req.Password != e.cfg.Password {
			msg = ErrPasswordInvalid
		} else {
			next = &td.AuthorizationStateReady{}
		}
	default:
		e.fail(id, env.Extra, 400, "Unknown method")
		return
	}
	if msg != "" {
		e.fail(id, env.Extra, 400, msg)
		if e.cfg.Reemit && msg != ErrUnexpected {
			e.setState(id, c, st)
		}
		return
	}
	e.ok(id, env.Extra)
	e.setState(id, c, next)
}

func (e *Engine) waitCode() td.AuthorizationState {
	return &td.AuthorizationStateWaitCode{CodeInfo: td.AuthenticationCodeInfo{
		PhoneNumber: e.cfg.Phone,
		Type:        td.AuthenticationCodeType{Type: "authenticationCodeTypeSms", Length: len(e.cfg.Code)},
		Timeout:     60,
	}}
}

func (e *Engine) afterCode() td.AuthorizationState {
	if e.cfg.Register {
		return &td.AuthorizationStateWaitRegistration{TermsOfService: td.TermsOfService{
			Text: td.FormattedText{Text: "Be nice."},
		}}
	}
	return e.afterRegistration()
}

func (e *Engine) afterRegistration() td.AuthorizationState {
	if e.cfg.Password != "" {
		return &td.AuthorizationStateWaitPassword{PasswordHint: "the usual"}
	}
	return &td.AuthorizationStateReady{}
}

func expect[T td.AuthorizationState](st td.AuthorizationState) bool {
	_, ok := st.(T)
	return ok
}

func (e *Engine) setState(id int32, c *client, st td.AuthorizationState) {
	c.state = st
	data, err := td.MarshalUpdateAuthorizationState(st)
	if err != nil {
		panic(err)
	}
	e.out <- message{id: id, data: data}
}

func (e *Engine) ok(id int32, extra string) {
	data, err := td.MarshalOk(extra)
	if err != nil {
		panic(err)
	}
	e.out <- message{id: id, data: data}
}

func (e *Engine) fail(id int32, extra string, code int, msg string) {
	data, err := td.MarshalError(&td.Error{Code: code, Message: msg}, extra)
	if err != nil {
		panic(err)
	}
	e.out <- message{id: id, data: data}
}

func (e *Engine) push(id int32, v map[string]any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	e.out <- message{id: id, data: data}
}
