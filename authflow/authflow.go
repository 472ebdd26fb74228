// Package authflow contains the handlers that supply the values the
// authorization handshake asks for.
package authflow

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/rusq/dlog"

	"github.com/rusq/tdauth/td"
)

// IdentifierKind is the kind of account the client logs in as.
type IdentifierKind int

const (
	KindPhoneNumber IdentifierKind = iota
	KindBotToken
)

// ClientIdentifier is either a phone number or a bot token.
type ClientIdentifier struct {
	Kind  IdentifierKind
	Value string
}

// Phone returns the phone number identifier.
func Phone(number string) ClientIdentifier {
	return ClientIdentifier{Kind: KindPhoneNumber, Value: number}
}

// Bot returns the bot token identifier.
func Bot(token string) ClientIdentifier {
	return ClientIdentifier{Kind: KindBotToken, Value: token}
}

func (ci ClientIdentifier) IsBot() bool {
	return ci.Kind == KindBotToken
}

// Handler supplies the values requested by the authorization states. Each
// method may block until the value is available.
//
// Invalid values are reported back by the engine, which leaves the client in
// the same state, so the method is called again for the next attempt.
type Handler interface {
	HandleEncryptionKey(ctx context.Context, st *td.AuthorizationStateWaitEncryptionKey) (string, error)
	HandleWaitClientIdentifier(ctx context.Context, st *td.AuthorizationStateWaitPhoneNumber) (ClientIdentifier, error)
	HandleWaitCode(ctx context.Context, st *td.AuthorizationStateWaitCode) (string, error)
	HandleWaitPassword(ctx context.Context, st *td.AuthorizationStateWaitPassword) (string, error)
	// HandleWaitRegistration must return non-empty first and last names.
	HandleWaitRegistration(ctx context.Context, st *td.AuthorizationStateWaitRegistration) (first string, last string, err error)
	// HandleOtherDeviceConfirmation is a notification, the engine doesn't
	// expect an answer.
	HandleOtherDeviceConfirmation(ctx context.Context, st *td.AuthorizationStateWaitOtherDeviceConfirmation)
}

// CredentialsAsker is implemented by handlers that can supply the API
// credentials, if they were not configured.
type CredentialsAsker interface {
	GetAPICredentials(ctx context.Context) (int, string, error)
}

// NopConfirmation should be embedded in handlers that have nothing to do on
// the other device confirmation, it just logs the link.
type NopConfirmation struct{}

func (NopConfirmation) HandleOtherDeviceConfirmation(_ context.Context, st *td.AuthorizationStateWaitOtherDeviceConfirmation) {
	Log.Printf("confirm the login on another device: %s", st.Link)
}

var ErrNoCredentials = errors.New("api credentials are not available")

// Logger is the logger interface used by the handlers.
type Logger interface {
	Print(...any)
	Printf(string, ...any)
	Println(...any)
	Debug(...any)
	Debugf(string, ...any)
	Debugln(...any)
}

// Log is the package logger.
var Log Logger = dlog.New(os.Stderr, "", 0, false)

// abort terminates the process.  It is a variable to be replaced in tests.
var abort = func(format string, a ...any) {
	Log.Printf(format, a...)
	os.Exit(1)
}

// splitName splits the "First Last" string on the first space.
func splitName(s string) (first, last string, ok bool) {
	first, last, found := strings.Cut(strings.TrimSpace(s), " ")
	if !found {
		return "", "", false
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" || last == "" {
		return "", "", false
	}
	return first, last, true
}
