package td

import (
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
)

// Request is an outgoing engine function call.
type Request interface {
	RequestType() string
}

// Marshal encodes the request, tagging it with extra, if it's not empty.
func Marshal(r Request, extra string) ([]byte, error) {
	return encode(r.RequestType(), extra, r)
}

// TdlibParameters are the engine instance parameters.
type TdlibParameters struct {
	UseTestDC              bool   `json:"use_test_dc"`
	DatabaseDirectory      string `json:"database_directory"`
	FilesDirectory         string `json:"files_directory"`
	UseFileDatabase        bool   `json:"use_file_database"`
	UseChatInfoDatabase    bool   `json:"use_chat_info_database"`
	UseMessageDatabase     bool   `json:"use_message_database"`
	UseSecretChats         bool   `json:"use_secret_chats"`
	APIID                  int32  `json:"api_id"`
	APIHash                string `json:"api_hash"`
	SystemLanguageCode     string `json:"system_language_code"`
	DeviceModel            string `json:"device_model"`
	SystemVersion          string `json:"system_version"`
	ApplicationVersion     string `json:"application_version"`
	EnableStorageOptimizer bool   `json:"enable_storage_optimizer"`
	IgnoreFileNames        bool   `json:"ignore_file_names"`
}

type SetTdlibParameters struct {
	Parameters TdlibParameters `json:"parameters"`
}

type CheckDatabaseEncryptionKey struct {
	EncryptionKey string `json:"encryption_key"`
}

type SetAuthenticationPhoneNumber struct {
	PhoneNumber string `json:"phone_number"`
}

type CheckAuthenticationBotToken struct {
	Token string `json:"token"`
}

type CheckAuthenticationCode struct {
	Code string `json:"code"`
}

type CheckAuthenticationPassword struct {
	Password string `json:"password"`
}

type RegisterUser struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type GetOption struct {
	Name string `json:"name"`
}

type SetLogVerbosityLevel struct {
	NewVerbosityLevel int `json:"new_verbosity_level"`
}

type Close struct{}

type LogOut struct{}

func (*SetTdlibParameters) RequestType() string           { return "setTdlibParameters" }
func (*CheckDatabaseEncryptionKey) RequestType() string   { return "checkDatabaseEncryptionKey" }
func (*SetAuthenticationPhoneNumber) RequestType() string { return "setAuthenticationPhoneNumber" }
func (*CheckAuthenticationBotToken) RequestType() string  { return "checkAuthenticationBotToken" }
func (*CheckAuthenticationCode) RequestType() string      { return "checkAuthenticationCode" }
func (*CheckAuthenticationPassword) RequestType() string  { return "checkAuthenticationPassword" }
func (*RegisterUser) RequestType() string                 { return "registerUser" }
func (*GetOption) RequestType() string                    { return "getOption" }
func (*SetLogVerbosityLevel) RequestType() string         { return "setLogVerbosityLevel" }
func (*Close) RequestType() string                        { return "close" }
func (*LogOut) RequestType() string                       { return "logOut" }

// Error is the engine's error reply.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// UnmarshalError decodes the error reply.
func UnmarshalError(data []byte) (*Error, error) {
	var e Error
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, "decode error")
	}
	return &e, nil
}

// MarshalError encodes an error reply tagged with extra.
func MarshalError(e *Error, extra string) ([]byte, error) {
	return encode(TypeError, extra, e)
}

// MarshalOk encodes an ok reply tagged with extra.
func MarshalOk(extra string) ([]byte, error) {
	return encode(TypeOk, extra, struct{}{})
}

// MarshalUpdateAuthorizationState encodes the update carrying st.
func MarshalUpdateAuthorizationState(st AuthorizationState) ([]byte, error) {
	inner, err := MarshalAuthorizationState(st)
	if err != nil {
		return nil, err
	}
	return encode(TypeUpdateAuthorizationState, "", struct {
		State json.RawMessage `json:"authorization_state"`
	}{inner})
}
