package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rusq/tdauth/td"
)

// BotPrefix marks the bot token in the values sent to the SignalAuth.
const BotPrefix = "bot:"

var ErrChannelClosed = errors.New("signal channel closed")

// SignalAuth is the handler that takes the answers from a channel.  The
// values are positional: they must be sent in the order the handshake asks
// for them, i.e. the encryption key, the phone number, the code and then the
// password.
//
// The channel must stay open for the whole handshake: if it is closed while
// a value is being waited for, the process is terminated.
//
// A single SignalAuth should serve a single client, otherwise the caller is
// responsible for the attribution of answers to clients.
type SignalAuth struct {
	NopConfirmation

	mu sync.Mutex
	in <-chan string
}

func NewSignalAuth(in <-chan string) *SignalAuth {
	return &SignalAuth{in: in}
}

// recv waits for the next value.
func (a *SignalAuth) recv(ctx context.Context, what string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case v, ok := <-a.in:
		if !ok {
			abort("authflow: signal channel closed while waiting for the %s", what)
			return "", ErrChannelClosed
		}
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (a *SignalAuth) HandleEncryptionKey(ctx context.Context, _ *td.AuthorizationStateWaitEncryptionKey) (string, error) {
	return a.recv(ctx, "encryption key")
}

// HandleWaitClientIdentifier takes the next value as the phone number, unless
// it starts with BotPrefix, in which case the rest of it is the bot token.
func (a *SignalAuth) HandleWaitClientIdentifier(ctx context.Context, _ *td.AuthorizationStateWaitPhoneNumber) (ClientIdentifier, error) {
	v, err := a.recv(ctx, "phone number or bot token")
	if err != nil {
		return ClientIdentifier{}, err
	}
	if token, ok := strings.CutPrefix(v, BotPrefix); ok {
		return Bot(token), nil
	}
	return Phone(v), nil
}

func (a *SignalAuth) HandleWaitCode(ctx context.Context, _ *td.AuthorizationStateWaitCode) (string, error) {
	return a.recv(ctx, "code")
}

func (a *SignalAuth) HandleWaitPassword(ctx context.Context, _ *td.AuthorizationStateWaitPassword) (string, error) {
	return a.recv(ctx, "password")
}

// HandleWaitRegistration takes values until it gets the "First Last" pair.
func (a *SignalAuth) HandleWaitRegistration(ctx context.Context, _ *td.AuthorizationStateWaitRegistration) (string, string, error) {
	for {
		v, err := a.recv(ctx, "first and last name")
		if err != nil {
			return "", "", err
		}
		first, last, ok := splitName(v)
		if ok {
			return first, last, nil
		}
		Log.Printf("authflow: invalid registration value %q, expected \"First Last\"", v)
	}
}

var _ Handler = (*SignalAuth)(nil)
