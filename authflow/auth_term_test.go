package authflow

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/rusq/tdauth/td"
)

var strcls string

func init() {
	color.NoColor = true
	var buf bytes.Buffer
	clrscr(&buf)
	strcls = buf.String()
}

func TestTermAuth_Phone(t *testing.T) {
	type fields struct {
		phone string
	}
	type args struct {
		in0 context.Context
	}
	tests := []struct {
		name    string
		fields  fields
		args    args
		input   string
		wantOut string
		want    string
		wantErr bool
	}{
		{
			"phone is already set",
			fields{phone: "123"},
			args{context.Background()},
			"",
			"",
			"123",
			false,
		},
		{
			"phone is not set",
			fields{phone: ""},
			args{context.Background()},
			"+64221234567",
			phoneWelcome + phonePrompt,
			"+64221234567",
			false,
		},
		{
			"phone is not set, invalid input",
			fields{phone: ""},
			args{context.Background()},
			"\n+64221234567",
			phoneWelcome + phonePrompt + phoneInvalid + "\n" + phonePrompt,
			"+64221234567",
			false,
		},
		{
			"phone is not set, not intl format",
			fields{phone: ""},
			args{context.Background()},
			"123\n+64221234567\n",
			phoneWelcome + phonePrompt + phoneMustIntl + "\n" + phonePrompt,
			"+64221234567",
			false,
		},
		{
			"phone is not set, non-digit chars",
			fields{phone: ""},
			args{context.Background()},
			"+64 22 123 45 67\n+64221234567",
			phoneWelcome + phonePrompt + phoneOnlyDigits + "\n" + phonePrompt,
			"+64221234567",
			false,
		},
		{
			"input ends",
			fields{phone: ""},
			args{context.Background()},
			"",
			phoneWelcome + phonePrompt,
			"",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewTermAuth(WithPhone(tt.fields.phone))

			cap := StartCapture(t, inputLines(tt.input)...)
			got, err := a.Phone(tt.args.in0)
			output := cap.StopCapture()

			if (err != nil) != tt.wantErr {
				t.Errorf("TermAuth.Phone() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOut, output)
		})
	}
}

func TestTermAuth_HandleWaitClientIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		opts    []TermOption
		input   string
		wantOut string
		want    ClientIdentifier
		wantErr bool
	}{
		{
			"preset phone",
			[]TermOption{WithPhone("+64221234567")},
			"",
			strcls,
			Phone("+64221234567"),
			false,
		},
		{
			"user, invalid phone first",
			nil,
			"u\n123\n+64221234567",
			strcls + identWelcome + identPrompt + phoneWelcome + phonePrompt + phoneMustIntl + "\n" + phonePrompt,
			Phone("+64221234567"),
			false,
		},
		{
			"input ends",
			nil,
			"u",
			strcls + identWelcome + identPrompt + phoneWelcome + phonePrompt,
			ClientIdentifier{},
			true,
		},
		{
			"preset bot token",
			[]TermOption{WithBotToken("123:abc")},
			"",
			strcls,
			Bot("123:abc"),
			false,
		},
		{
			"user",
			nil,
			"u\n+64221234567",
			strcls + identWelcome + identPrompt + phoneWelcome + phonePrompt,
			Phone("+64221234567"),
			false,
		},
		{
			"bot",
			nil,
			"b\n123:abc",
			strcls + identWelcome + identPrompt + tokenPrompt,
			Bot("123:abc"),
			false,
		},
		{
			"unknown selector, then user",
			nil,
			"x\nuser\n+64221234567",
			strcls + identWelcome + identPrompt + identInvalid + "\n" + identPrompt + phoneWelcome + phonePrompt,
			Phone("+64221234567"),
			false,
		},
		{
			"empty bot token",
			nil,
			"b\n\n123:abc",
			strcls + identWelcome + identPrompt + tokenPrompt + tokenInvalid + "\n" + tokenPrompt,
			Bot("123:abc"),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewTermAuth(tt.opts...)

			cap := StartCapture(t, inputLines(tt.input)...)
			got, err := a.HandleWaitClientIdentifier(context.Background(), &td.AuthorizationStateWaitPhoneNumber{})
			output := cap.StopCapture()

			if (err != nil) != tt.wantErr {
				t.Errorf("TermAuth.HandleWaitClientIdentifier() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOut, output)
		})
	}
}

func TestTermAuth_HandleWaitRegistration(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOut   string
		wantFirst string
		wantLast  string
	}{
		{
			"valid",
			"John Smith",
			regWelcome + regPrompt,
			"John",
			"Smith",
		},
		{
			"no separator, then valid",
			"John\nJohn Smith",
			regWelcome + regPrompt + regInvalid + "\n" + regPrompt,
			"John",
			"Smith",
		},
		{
			"last name keeps its spaces",
			"Mary Ann Smith",
			regWelcome + regPrompt,
			"Mary",
			"Ann Smith",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cap := StartCapture(t, inputLines(tt.input)...)
			first, last, err := TermAuth{}.HandleWaitRegistration(context.Background(), &td.AuthorizationStateWaitRegistration{})
			output := cap.StopCapture()

			assert.NoError(t, err)
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantLast, last)
			assert.Equal(t, tt.wantOut, output)
		})
	}
}

func TestTermAuth_HandleWaitCode(t *testing.T) {
	cap := StartCapture(t, "", "12345")
	got, err := TermAuth{}.HandleWaitCode(context.Background(), &td.AuthorizationStateWaitCode{
		CodeInfo: td.AuthenticationCodeInfo{
			PhoneNumber: "+64221234567",
			Type:        td.AuthenticationCodeType{Type: "authenticationCodeTypeSms", Length: 5},
		},
	})
	output := cap.StopCapture()

	assert.NoError(t, err)
	assert.Equal(t, "12345", got)
	assert.Equal(t, "The code was sent to +64221234567 (sms, 5 digits).\n"+codePrompt+codeInvalid+"\n"+codePrompt, output)
}

func TestTermAuth_GetAPICredentials(t *testing.T) {
	cap := StartCapture(t, "abc", "0", "12345", "very secure")
	id, hash, err := TermAuth{}.GetAPICredentials(context.Background())
	output := cap.StopCapture()

	assert.NoError(t, err)
	assert.Equal(t, 12345, id)
	assert.Equal(t, "very secure", hash)
	assert.Equal(t, apiIDPrompt+apiIDInvalid+"\n"+apiIDPrompt+apiIDInvalid+"\n"+apiIDPrompt+apiHashPrompt, output)
}

func TestTermAuth_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := TermAuth{}.HandleWaitPassword(ctx, &td.AuthorizationStateWaitPassword{})
	assert.ErrorIs(t, err, context.Canceled)
}

func inputLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type captor struct {
	r           *os.File
	w           *os.File
	oldOut      io.Writer
	oldReadln   func(r io.Reader) (string, error)
	oldReadpass func() (string, error)
}

// StartCapture starts capturing output.  The input lines are returned by
// readln and readpass in order, after they're exhausted, both return io.EOF.
func StartCapture(t *testing.T, input ...string) *captor {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	c := &captor{
		r:           r,
		w:           w,
		oldOut:      hOutput,
		oldReadln:   readln,
		oldReadpass: readpass,
	}

	hOutput = w
	readln = mkTestReadln(input...)
	readpass = func() (string, error) { return readln(nil) }

	return c
}

func mkTestReadln(input ...string) func(io.Reader) (string, error) {
	var i = 0
	return func(r io.Reader) (string, error) {
		if i >= len(input) {
			return "", io.EOF
		}
		ret := input[i]
		i++
		return ret, nil
	}
}

// StopCapture stops capturing and returns the captured output
func (c *captor) StopCapture() string {
	c.w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, c.r)
	c.r.Close()
	hOutput = c.oldOut
	readln = c.oldReadln
	readpass = c.oldReadpass

	return buf.String()
}

func Test_readln(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			"empty input",
			"\n",
			"",
			false,
		},
		{
			"valid input",
			"123\n",
			"123",
			false,
		},
		{
			"valid input with spaces",
			"  123  \n",
			"123",
			false,
		},
		{
			"multiple lines (reads only first line)",
			"123\n456\n",
			"123",
			false,
		},
		{
			"no trailing newline",
			"123",
			"123",
			false,
		},
		{
			"no input",
			"",
			"",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readln(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("readln() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("readln() = %v, want %v", got, tt.want)
			}
		})
	}
}
