package tdauth

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/rusq/tdauth/td"
)

// Parameters are the engine instance parameters sent in response to the
// WaitTdlibParameters state.
type Parameters struct {
	UseTestDC              bool   `yaml:"use_test_dc"`
	DatabaseDirectory      string `yaml:"database_directory"`
	FilesDirectory         string `yaml:"files_directory"`
	UseFileDatabase        bool   `yaml:"use_file_database"`
	UseChatInfoDatabase    bool   `yaml:"use_chat_info_database"`
	UseMessageDatabase     bool   `yaml:"use_message_database"`
	UseSecretChats         bool   `yaml:"use_secret_chats"`
	APIID                  int    `yaml:"api_id"`
	APIHash                string `yaml:"api_hash"`
	SystemLanguageCode     string `yaml:"system_language_code"`
	DeviceModel            string `yaml:"device_model"`
	SystemVersion          string `yaml:"system_version"`
	ApplicationVersion     string `yaml:"application_version"`
	EnableStorageOptimizer bool   `yaml:"enable_storage_optimizer"`
	IgnoreFileNames        bool   `yaml:"ignore_file_names"`
}

// Environment variables that override the parameters.
const (
	EnvAPIID             = "TDAUTH_API_ID"
	EnvAPIHash           = "TDAUTH_API_HASH"
	EnvDatabaseDirectory = "TDAUTH_DATABASE_DIR"
	EnvUseTestDC         = "TDAUTH_TEST_DC"
)

func DefaultParameters() Parameters {
	return Parameters{
		DatabaseDirectory:      "tdlib-db",
		UseFileDatabase:        true,
		UseChatInfoDatabase:    true,
		UseMessageDatabase:     true,
		UseSecretChats:         false,
		SystemLanguageCode:     "en",
		DeviceModel:            "tdauth",
		SystemVersion:          runtime.GOOS + "/" + runtime.GOARCH,
		ApplicationVersion:     "1.0",
		EnableStorageOptimizer: true,
	}
}

// LoadParameters reads the YAML file on top of the default parameters.
func LoadParameters(path string) (Parameters, error) {
	p := DefaultParameters()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading parameters: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decoding parameters: %w", err)
	}
	return p, nil
}

// ApplyEnv overrides the parameters with the values of the environment
// variables that are set.
func (p *Parameters) ApplyEnv() error {
	if v := os.Getenv(EnvAPIID); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be a number: %w", EnvAPIID, err)
		}
		p.APIID = id
	}
	if v := os.Getenv(EnvAPIHash); v != "" {
		p.APIHash = v
	}
	if v := os.Getenv(EnvDatabaseDirectory); v != "" {
		p.DatabaseDirectory = v
	}
	if v := os.Getenv(EnvUseTestDC); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s must be a boolean: %w", EnvUseTestDC, err)
		}
		p.UseTestDC = b
	}
	return nil
}

func (p Parameters) hasCreds() bool {
	return !(creds{ID: p.APIID, Hash: p.APIHash}).IsEmpty()
}

func (p Parameters) request() *td.SetTdlibParameters {
	return &td.SetTdlibParameters{Parameters: td.TdlibParameters{
		UseTestDC:              p.UseTestDC,
		DatabaseDirectory:      p.DatabaseDirectory,
		FilesDirectory:         p.FilesDirectory,
		UseFileDatabase:        p.UseFileDatabase,
		UseChatInfoDatabase:    p.UseChatInfoDatabase,
		UseMessageDatabase:     p.UseMessageDatabase,
		UseSecretChats:         p.UseSecretChats,
		APIID:                  int32(p.APIID),
		APIHash:                p.APIHash,
		SystemLanguageCode:     p.SystemLanguageCode,
		DeviceModel:            p.DeviceModel,
		SystemVersion:          p.SystemVersion,
		ApplicationVersion:     p.ApplicationVersion,
		EnableStorageOptimizer: p.EnableStorageOptimizer,
		IgnoreFileNames:        p.IgnoreFileNames,
	}}
}
