package simengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusq/tdauth/td"
)

const timeout = time.Second

type recv struct {
	typ   string
	extra string
	state td.AuthorizationState
	err   *td.Error
}

func next(t *testing.T, e *Engine) recv {
	t.Helper()
	_, data, ok := e.Receive(timeout)
	require.True(t, ok, "nothing received")
	env, err := td.Peek(data)
	require.NoError(t, err)
	r := recv{typ: env.Type, extra: env.Extra}
	switch env.Type {
	case td.TypeUpdateAuthorizationState:
		r.state, err = td.UnmarshalUpdateAuthorizationState(data)
		require.NoError(t, err)
	case td.TypeError:
		r.err, err = td.UnmarshalError(data)
		require.NoError(t, err)
	}
	return r
}

func send(t *testing.T, e *Engine, id int32, req td.Request, extra string) {
	t.Helper()
	data, err := td.Marshal(req, extra)
	require.NoError(t, err)
	e.Send(id, data)
}

func TestEngine_handshake(t *testing.T) {
	e := New(Config{Phone: "+1", Code: "111", Password: "pw", EncryptionKey: "k"})
	id := e.CreateClient()

	send(t, e, id, &td.GetOption{Name: "version"}, "v")
	assert.IsType(t, &td.AuthorizationStateWaitTdlibParameters{}, next(t, e).state)
	assert.Equal(t, recv{typ: "optionValueString", extra: "v"}, next(t, e))

	steps := []struct {
		req  td.Request
		want td.AuthorizationState
	}{
		{&td.SetTdlibParameters{Parameters: td.TdlibParameters{APIID: 1, APIHash: "h"}}, &td.AuthorizationStateWaitEncryptionKey{}},
		{&td.CheckDatabaseEncryptionKey{EncryptionKey: "k"}, &td.AuthorizationStateWaitPhoneNumber{}},
		{&td.SetAuthenticationPhoneNumber{PhoneNumber: "+1"}, &td.AuthorizationStateWaitCode{}},
		{&td.CheckAuthenticationCode{Code: "111"}, &td.AuthorizationStateWaitPassword{}},
		{&td.CheckAuthenticationPassword{Password: "pw"}, &td.AuthorizationStateReady{}},
	}
	for _, s := range steps {
		send(t, e, id, s.req, "x")
		assert.Equal(t, recv{typ: td.TypeOk, extra: "x"}, next(t, e))
		assert.IsType(t, s.want, next(t, e).state, s.req.RequestType())
	}

	send(t, e, id, &td.Close{}, "c")
	assert.Equal(t, td.TypeOk, next(t, e).typ)
	assert.IsType(t, &td.AuthorizationStateClosing{}, next(t, e).state)
	assert.IsType(t, &td.AuthorizationStateClosed{}, next(t, e).state)

	assert.Equal(t, []string{
		"getOption",
		"setTdlibParameters",
		"checkDatabaseEncryptionKey",
		"setAuthenticationPhoneNumber",
		"checkAuthenticationCode",
		"checkAuthenticationPassword",
		"close",
	}, e.Requests(id))
}

func TestEngine_rejects(t *testing.T) {
	tests := []struct {
		name   string
		reemit bool
		req    td.Request
		want   string
	}{
		{"no api id", false, &td.SetTdlibParameters{}, ErrParamsInvalid},
		{"out of order", false, &td.CheckAuthenticationCode{Code: "1"}, ErrUnexpected},
		{"log out", false, &td.LogOut{}, ""},
		{"reemitted", true, &td.SetTdlibParameters{}, ErrParamsInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(Config{Reemit: tt.reemit})
			id := e.CreateClient()
			send(t, e, id, tt.req, "r")
			assert.IsType(t, &td.AuthorizationStateWaitTdlibParameters{}, next(t, e).state)
			r := next(t, e)
			if tt.want == "" {
				// logOut is accepted in any state.
				assert.Equal(t, td.TypeOk, r.typ)
				return
			}
			require.NotNil(t, r.err)
			assert.Equal(t, "r", r.extra)
			assert.Equal(t, tt.want, r.err.Message)
			if tt.reemit {
				assert.IsType(t, &td.AuthorizationStateWaitTdlibParameters{}, next(t, e).state)
			}
		})
	}
}

func TestEngine_confirmAndRegister(t *testing.T) {
	e := New(Config{Phone: "+1", Code: "1", Register: true, ConfirmLink: "tg://login?token=abc"})
	id := e.CreateClient()
	send(t, e, id, &td.GetOption{Name: "version"}, "")
	assert.IsType(t, &td.AuthorizationStateWaitTdlibParameters{}, next(t, e).state)
	next(t, e)

	// skip to the phone number.
	e.Emit(id, &td.AuthorizationStateWaitPhoneNumber{})
	assert.IsType(t, &td.AuthorizationStateWaitPhoneNumber{}, next(t, e).state)
	send(t, e, id, &td.SetAuthenticationPhoneNumber{PhoneNumber: "+1"}, "p")
	assert.Equal(t, td.TypeOk, next(t, e).typ)
	st := next(t, e).state
	require.IsType(t, &td.AuthorizationStateWaitOtherDeviceConfirmation{}, st)
	assert.Equal(t, "tg://login?token=abc", st.(*td.AuthorizationStateWaitOtherDeviceConfirmation).Link)
	assert.IsType(t, &td.AuthorizationStateWaitCode{}, next(t, e).state)

	send(t, e, id, &td.CheckAuthenticationCode{Code: "1"}, "c")
	next(t, e)
	assert.IsType(t, &td.AuthorizationStateWaitRegistration{}, next(t, e).state)

	send(t, e, id, &td.RegisterUser{}, "r")
	assert.Equal(t, ErrNameInvalid, next(t, e).err.Message)
	send(t, e, id, &td.RegisterUser{FirstName: "John"}, "r")
	next(t, e)
	assert.IsType(t, &td.AuthorizationStateReady{}, next(t, e).state)
}

func TestEngine_unknownClient(t *testing.T) {
	e := New(Config{})
	e.Send(42, []byte(`{"@type":"close"}`))
	e.Emit(42, &td.AuthorizationStateReady{})
	assert.Nil(t, e.Requests(42))
	_, _, ok := e.Receive(10 * time.Millisecond)
	assert.False(t, ok)
}
