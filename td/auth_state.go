// Package td contains the subset of the engine's JSON schema that the
// authorization worker inspects or constructs.
package td

import (
	"encoding/json"

	"github.com/go-faster/errors"
)

// Object type names.
const (
	TypeWaitTdlibParameters         = "authorizationStateWaitTdlibParameters"
	TypeWaitEncryptionKey           = "authorizationStateWaitEncryptionKey"
	TypeWaitPhoneNumber             = "authorizationStateWaitPhoneNumber"
	TypeWaitCode                    = "authorizationStateWaitCode"
	TypeWaitOtherDeviceConfirmation = "authorizationStateWaitOtherDeviceConfirmation"
	TypeWaitRegistration            = "authorizationStateWaitRegistration"
	TypeWaitPassword                = "authorizationStateWaitPassword"
	TypeReady                       = "authorizationStateReady"
	TypeLoggingOut                  = "authorizationStateLoggingOut"
	TypeClosing                     = "authorizationStateClosing"
	TypeClosed                      = "authorizationStateClosed"

	TypeUpdateAuthorizationState = "updateAuthorizationState"
	TypeOk                       = "ok"
	TypeError                    = "error"
)

// AuthorizationState is the engine's current step of the login handshake.
// The set of implementations is closed.
type AuthorizationState interface {
	AuthorizationStateType() string
	authorizationState()
}

type AuthorizationStateWaitTdlibParameters struct{}

type AuthorizationStateWaitEncryptionKey struct {
	IsEncrypted bool `json:"is_encrypted"`
}

type AuthorizationStateWaitPhoneNumber struct{}

// AuthenticationCodeType describes the way the code was sent.
type AuthenticationCodeType struct {
	Type    string `json:"@type"`
	Length  int    `json:"length,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

type AuthenticationCodeInfo struct {
	PhoneNumber string                  `json:"phone_number"`
	Type        AuthenticationCodeType  `json:"type"`
	NextType    *AuthenticationCodeType `json:"next_type,omitempty"`
	Timeout     int                     `json:"timeout"`
}

type AuthorizationStateWaitCode struct {
	CodeInfo AuthenticationCodeInfo `json:"code_info"`
}

type AuthorizationStateWaitOtherDeviceConfirmation struct {
	Link string `json:"link"`
}

type FormattedText struct {
	Text string `json:"text"`
}

type TermsOfService struct {
	Text       FormattedText `json:"text"`
	MinUserAge int           `json:"min_user_age"`
	ShowPopup  bool          `json:"show_popup"`
}

type AuthorizationStateWaitRegistration struct {
	TermsOfService TermsOfService `json:"terms_of_service"`
}

type AuthorizationStateWaitPassword struct {
	PasswordHint                string `json:"password_hint"`
	HasRecoveryEmailAddress     bool   `json:"has_recovery_email_address"`
	RecoveryEmailAddressPattern string `json:"recovery_email_address_pattern"`
}

type AuthorizationStateReady struct{}

type AuthorizationStateLoggingOut struct{}

type AuthorizationStateClosing struct{}

type AuthorizationStateClosed struct{}

func (*AuthorizationStateWaitTdlibParameters) AuthorizationStateType() string {
	return TypeWaitTdlibParameters
}
func (*AuthorizationStateWaitEncryptionKey) AuthorizationStateType() string {
	return TypeWaitEncryptionKey
}
func (*AuthorizationStateWaitPhoneNumber) AuthorizationStateType() string { return TypeWaitPhoneNumber }
func (*AuthorizationStateWaitCode) AuthorizationStateType() string        { return TypeWaitCode }
func (*AuthorizationStateWaitOtherDeviceConfirmation) AuthorizationStateType() string {
	return TypeWaitOtherDeviceConfirmation
}
func (*AuthorizationStateWaitRegistration) AuthorizationStateType() string {
	return TypeWaitRegistration
}
func (*AuthorizationStateWaitPassword) AuthorizationStateType() string { return TypeWaitPassword }
func (*AuthorizationStateReady) AuthorizationStateType() string        { return TypeReady }
func (*AuthorizationStateLoggingOut) AuthorizationStateType() string   { return TypeLoggingOut }
func (*AuthorizationStateClosing) AuthorizationStateType() string      { return TypeClosing }
func (*AuthorizationStateClosed) AuthorizationStateType() string       { return TypeClosed }

func (*AuthorizationStateWaitTdlibParameters) authorizationState()         {}
func (*AuthorizationStateWaitEncryptionKey) authorizationState()           {}
func (*AuthorizationStateWaitPhoneNumber) authorizationState()             {}
func (*AuthorizationStateWaitCode) authorizationState()                    {}
func (*AuthorizationStateWaitOtherDeviceConfirmation) authorizationState() {}
func (*AuthorizationStateWaitRegistration) authorizationState()            {}
func (*AuthorizationStateWaitPassword) authorizationState()                {}
func (*AuthorizationStateReady) authorizationState()                       {}
func (*AuthorizationStateLoggingOut) authorizationState()                  {}
func (*AuthorizationStateClosing) authorizationState()                     {}
func (*AuthorizationStateClosed) authorizationState()                      {}

// ErrUnknownState is returned when the object type is not one of the
// authorization states.
var ErrUnknownState = errors.New("unknown authorization state")

// newState returns an empty value for the authorization state type name.
func newState(typ string) (AuthorizationState, bool) {
	switch typ {
	case TypeWaitTdlibParameters:
		return &AuthorizationStateWaitTdlibParameters{}, true
	case TypeWaitEncryptionKey:
		return &AuthorizationStateWaitEncryptionKey{}, true
	case TypeWaitPhoneNumber:
		return &AuthorizationStateWaitPhoneNumber{}, true
	case TypeWaitCode:
		return &AuthorizationStateWaitCode{}, true
	case TypeWaitOtherDeviceConfirmation:
		return &AuthorizationStateWaitOtherDeviceConfirmation{}, true
	case TypeWaitRegistration:
		return &AuthorizationStateWaitRegistration{}, true
	case TypeWaitPassword:
		return &AuthorizationStateWaitPassword{}, true
	case TypeReady:
		return &AuthorizationStateReady{}, true
	case TypeLoggingOut:
		return &AuthorizationStateLoggingOut{}, true
	case TypeClosing:
		return &AuthorizationStateClosing{}, true
	case TypeClosed:
		return &AuthorizationStateClosed{}, true
	}
	return nil, false
}

// UnmarshalAuthorizationState decodes a single authorization state object.
func UnmarshalAuthorizationState(data []byte) (AuthorizationState, error) {
	env, err := Peek(data)
	if err != nil {
		return nil, err
	}
	st, ok := newState(env.Type)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownState, "type %q", env.Type)
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, errors.Wrapf(err, "decode %s", env.Type)
	}
	return st, nil
}

// UnmarshalUpdateAuthorizationState decodes the updateAuthorizationState
// object and returns the state it carries.
func UnmarshalUpdateAuthorizationState(data []byte) (AuthorizationState, error) {
	var upd struct {
		State json.RawMessage `json:"authorization_state"`
	}
	if err := json.Unmarshal(data, &upd); err != nil {
		return nil, errors.Wrap(err, "decode update")
	}
	if len(upd.State) == 0 {
		return nil, errors.New("update has no authorization_state")
	}
	return UnmarshalAuthorizationState(upd.State)
}

// MarshalAuthorizationState encodes st with its "@type" field.
func MarshalAuthorizationState(st AuthorizationState) ([]byte, error) {
	return encode(st.AuthorizationStateType(), "", st)
}
