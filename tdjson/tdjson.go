//go:build tdjson

// Package tdjson binds the native engine JSON interface.  Build with the
// "tdjson" tag and the libtdjson installed.
package tdjson

/*
#cgo LDFLAGS: -ltdjson
#include <stdlib.h>
#include <td/telegram/td_json_client.h>
*/
import "C"

import (
	"sync"
	"time"
	"unsafe"

	"github.com/rusq/tdauth/td"
)

// Engine implements tdauth.Engine on top of the libtdjson.
type Engine struct {
	// td_receive must not be called concurrently.
	recvMu sync.Mutex
}

func New() (*Engine, error) {
	return &Engine{}, nil
}

func (*Engine) CreateClient() int32 {
	return int32(C.td_create_client_id())
}

func (*Engine) Send(id int32, request []byte) {
	cs := C.CString(string(request))
	defer C.free(unsafe.Pointer(cs))
	C.td_send(C.int(id), cs)
}

func (e *Engine) Receive(timeout time.Duration) (int32, []byte, bool) {
	e.recvMu.Lock()
	res := C.td_receive(C.double(timeout.Seconds()))
	if res == nil {
		e.recvMu.Unlock()
		return 0, nil, false
	}
	// the result is valid until the next call.
	data := C.GoString(res)
	e.recvMu.Unlock()

	env, err := td.Peek([]byte(data))
	if err != nil {
		// let the caller report it.
		return 0, []byte(data), true
	}
	return env.ClientID, []byte(data), true
}

func (*Engine) SetLogVerbosity(level int) {
	data, err := td.Marshal(&td.SetLogVerbosityLevel{NewVerbosityLevel: level}, "")
	if err != nil {
		return
	}
	cs := C.CString(string(data))
	defer C.free(unsafe.Pointer(cs))
	C.td_execute(cs)
}
