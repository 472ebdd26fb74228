//go:build !tdjson

// Package tdjson binds the native engine JSON interface.  Build with the
// "tdjson" tag and the libtdjson installed.
package tdjson

import (
	"errors"
	"time"
)

var ErrNotBuilt = errors.New("built without the tdjson tag")

// Engine is a placeholder, the binary is built without the native engine.
type Engine struct{}

// New returns ErrNotBuilt.
func New() (*Engine, error) {
	return nil, ErrNotBuilt
}

func (*Engine) CreateClient() int32                         { panic(ErrNotBuilt) }
func (*Engine) Send(int32, []byte)                          { panic(ErrNotBuilt) }
func (*Engine) Receive(time.Duration) (int32, []byte, bool) { panic(ErrNotBuilt) }
func (*Engine) SetLogVerbosity(int)                         { panic(ErrNotBuilt) }
