package authflow

import (
	"context"
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"github.com/rusq/tdauth/td"
)

// ErrIncompleteName is returned if the sign up info lacks the first or the
// last name.
var ErrIncompleteName = errors.New("first and last names are required")

// Authenticator makes a gotd user authenticator a Handler, so that the
// helpers like auth.Constant or auth.Env can drive the handshake.
type Authenticator struct {
	NopConfirmation

	Auth          auth.UserAuthenticator
	EncryptionKey string
}

func NewAuthenticator(ua auth.UserAuthenticator, encryptionKey string) *Authenticator {
	return &Authenticator{Auth: ua, EncryptionKey: encryptionKey}
}

func (a *Authenticator) HandleEncryptionKey(context.Context, *td.AuthorizationStateWaitEncryptionKey) (string, error) {
	return a.EncryptionKey, nil
}

func (a *Authenticator) HandleWaitClientIdentifier(ctx context.Context, _ *td.AuthorizationStateWaitPhoneNumber) (ClientIdentifier, error) {
	phone, err := a.Auth.Phone(ctx)
	if err != nil {
		return ClientIdentifier{}, err
	}
	return Phone(phone), nil
}

func (a *Authenticator) HandleWaitCode(ctx context.Context, st *td.AuthorizationStateWaitCode) (string, error) {
	return a.Auth.Code(ctx, sentCode(st.CodeInfo))
}

func (a *Authenticator) HandleWaitPassword(ctx context.Context, _ *td.AuthorizationStateWaitPassword) (string, error) {
	return a.Auth.Password(ctx)
}

func (a *Authenticator) HandleWaitRegistration(ctx context.Context, st *td.AuthorizationStateWaitRegistration) (string, string, error) {
	tos := tg.HelpTermsOfService{
		Text:          st.TermsOfService.Text.Text,
		MinAgeConfirm: st.TermsOfService.MinUserAge,
		Popup:         st.TermsOfService.ShowPopup,
	}
	if err := a.Auth.AcceptTermsOfService(ctx, tos); err != nil {
		return "", "", err
	}
	info, err := a.Auth.SignUp(ctx)
	if err != nil {
		return "", "", err
	}
	if info.FirstName == "" || info.LastName == "" {
		return "", "", ErrIncompleteName
	}
	return info.FirstName, info.LastName, nil
}

// GetAPICredentials delegates to the wrapped authenticator, if it can supply
// the credentials.
func (a *Authenticator) GetAPICredentials(ctx context.Context) (int, string, error) {
	if ca, ok := a.Auth.(CredentialsAsker); ok {
		return ca.GetAPICredentials(ctx)
	}
	return 0, "", ErrNoCredentials
}

// sentCode converts the code info into the form gotd authenticators expect.
func sentCode(ci td.AuthenticationCodeInfo) *tg.AuthSentCode {
	sc := &tg.AuthSentCode{Type: sentCodeType(ci.Type)}
	if ci.Timeout > 0 {
		sc.SetTimeout(ci.Timeout)
	}
	return sc
}

func sentCodeType(ct td.AuthenticationCodeType) tg.AuthSentCodeTypeClass {
	switch ct.Type {
	case "authenticationCodeTypeTelegramMessage":
		return &tg.AuthSentCodeTypeApp{Length: ct.Length}
	case "authenticationCodeTypeCall":
		return &tg.AuthSentCodeTypeCall{Length: ct.Length}
	case "authenticationCodeTypeFlashCall":
		return &tg.AuthSentCodeTypeFlashCall{Pattern: ct.Pattern}
	default:
		return &tg.AuthSentCodeTypeSMS{Length: ct.Length}
	}
}

var (
	_ Handler          = (*Authenticator)(nil)
	_ CredentialsAsker = (*Authenticator)(nil)
)
