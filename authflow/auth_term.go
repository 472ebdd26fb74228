package authflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"golang.org/x/term"

	"github.com/rusq/tdauth/td"
)

const (
	identWelcome    = "Log in to your account.\n"
	identPrompt     = "Log in as a (u)ser with the phone number or as a (b)ot with the token? "
	identInvalid    = "Please enter \"u\" or \"b\"."
	phoneWelcome    = "Enter the phone number in the international format, i.e. +64221234567\n"
	phonePrompt     = "Phone: "
	phoneInvalid    = "Phone number can't be empty."
	phoneMustIntl   = "Phone number must start with \"+\"."
	phoneOnlyDigits = "Phone number must contain only digits after \"+\"."
	tokenPrompt     = "Bot token: "
	tokenInvalid    = "Bot token can't be empty."
	codePrompt      = "Code: "
	codeInvalid     = "Code can't be empty."
	passwordPrompt  = "Password: "
	keyPrompt       = "Database encryption key (empty if not set): "
	regWelcome      = "This phone number is not registered yet.\n"
	regPrompt       = "First and last name, separated by a space: "
	regInvalid      = "Enter both, the first and the last name, i.e. \"John Smith\"."
	apiIDPrompt     = "API ID: "
	apiIDInvalid    = "API ID must be a positive number."
	apiHashPrompt   = "API Hash: "
	apiHashInvalid  = "API Hash can't be empty."
)

var (
	hOutput io.Writer = colorable.NewColorableStdout()
	stdin             = bufio.NewReader(os.Stdin)

	promptColor = color.New(color.FgHiCyan)
	errorColor  = color.New(color.FgHiRed)
)

// readln reads a single line from r and trims the spaces around it.
var readln = func(r io.Reader) (string, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readpass reads the secret without the echo, if the standard input is a
// terminal.
var readpass = func() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readln(stdin)
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(hOutput)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// TermAuth is the interactive console handler.  It reads the values from the
// standard input and loops on the malformed input.
type TermAuth struct {
	phone string
	bot   string
}

type TermOption func(*TermAuth)

// WithPhone sets the phone number, so that it's not asked for.
func WithPhone(phone string) TermOption {
	return func(a *TermAuth) {
		a.phone = phone
	}
}

// WithBotToken sets the bot token, so that it's not asked for.
func WithBotToken(token string) TermOption {
	return func(a *TermAuth) {
		a.bot = token
	}
}

func NewTermAuth(opts ...TermOption) TermAuth {
	var a TermAuth
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func (a TermAuth) HandleEncryptionKey(ctx context.Context, st *td.AuthorizationStateWaitEncryptionKey) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !st.IsEncrypted {
		// fresh database, the key is set to whatever is entered.
		fmt.Fprint(hOutput, "New database, ")
	}
	promptColor.Fprint(hOutput, keyPrompt)
	return readpass()
}

func (a TermAuth) HandleWaitClientIdentifier(ctx context.Context, _ *td.AuthorizationStateWaitPhoneNumber) (ClientIdentifier, error) {
	clrscr(hOutput)
	if a.phone != "" {
		phone, err := a.Phone(ctx)
		return Phone(phone), err
	}
	if a.bot != "" {
		return Bot(a.bot), nil
	}
	if err := ctx.Err(); err != nil {
		return ClientIdentifier{}, err
	}
	fmt.Fprint(hOutput, identWelcome)
	for {
		promptColor.Fprint(hOutput, identPrompt)
		sel, err := readln(stdin)
		if err != nil {
			return ClientIdentifier{}, err
		}
		switch strings.ToLower(sel) {
		case "u", "user":
			phone, err := a.Phone(ctx)
			if err != nil {
				return ClientIdentifier{}, err
			}
			return Phone(phone), nil
		case "b", "bot":
			token, err := askNonEmpty(tokenPrompt, tokenInvalid, readpass)
			if err != nil {
				return ClientIdentifier{}, err
			}
			return Bot(token), nil
		default:
			errorColor.Fprintln(hOutput, identInvalid)
		}
	}
}

// Phone returns the preset phone number, or asks for it.
func (a TermAuth) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.askPhone()
}

func (a TermAuth) askPhone() (string, error) {
	fmt.Fprint(hOutput, phoneWelcome)
	for {
		promptColor.Fprint(hOutput, phonePrompt)
		phone, err := readln(stdin)
		if err != nil {
			return "", err
		}
		if msg := checkPhone(phone); msg != "" {
			errorColor.Fprintln(hOutput, msg)
			continue
		}
		return phone, nil
	}
}

// checkPhone returns the problem description, or an empty string if the
// phone looks fine.
func checkPhone(phone string) string {
	if phone == "" {
		return phoneInvalid
	}
	if phone[0] != '+' {
		return phoneMustIntl
	}
	for _, r := range phone[1:] {
		if r < '0' || r > '9' {
			return phoneOnlyDigits
		}
	}
	return ""
}

func (a TermAuth) HandleWaitCode(ctx context.Context, st *td.AuthorizationStateWaitCode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(hOutput, "The code was sent to %s (%s).\n", st.CodeInfo.PhoneNumber, describeCodeType(st.CodeInfo.Type))
	return askNonEmpty(codePrompt, codeInvalid, func() (string, error) { return readln(stdin) })
}

func describeCodeType(ct td.AuthenticationCodeType) string {
	kind := strings.TrimPrefix(ct.Type, "authenticationCodeType")
	if kind == "" {
		kind = "unknown"
	}
	if ct.Length > 0 {
		return fmt.Sprintf("%s, %d digits", strings.ToLower(kind), ct.Length)
	}
	return strings.ToLower(kind)
}

func (a TermAuth) HandleWaitPassword(ctx context.Context, st *td.AuthorizationStateWaitPassword) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if st.PasswordHint != "" {
		fmt.Fprintf(hOutput, "Password hint: %s\n", st.PasswordHint)
	}
	promptColor.Fprint(hOutput, passwordPrompt)
	return readpass()
}

func (a TermAuth) HandleWaitRegistration(ctx context.Context, st *td.AuthorizationStateWaitRegistration) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	fmt.Fprint(hOutput, regWelcome)
	if tos := st.TermsOfService.Text.Text; tos != "" {
		fmt.Fprintf(hOutput, "By registering you accept the Terms of Service:\n%s\n", tos)
	}
	for {
		promptColor.Fprint(hOutput, regPrompt)
		s, err := readln(stdin)
		if err != nil {
			return "", "", err
		}
		first, last, ok := splitName(s)
		if !ok {
			errorColor.Fprintln(hOutput, regInvalid)
			continue
		}
		return first, last, nil
	}
}

func (a TermAuth) HandleOtherDeviceConfirmation(_ context.Context, st *td.AuthorizationStateWaitOtherDeviceConfirmation) {
	fmt.Fprintf(hOutput, "Open this link on the device where you're logged in:\n\t%s\n", st.Link)
}

// GetAPICredentials asks for the application API ID and Hash.
func (a TermAuth) GetAPICredentials(ctx context.Context) (int, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	var id int
	for {
		promptColor.Fprint(hOutput, apiIDPrompt)
		s, err := readln(stdin)
		if err != nil {
			return 0, "", err
		}
		id, err = strconv.Atoi(s)
		if err != nil || id <= 0 {
			errorColor.Fprintln(hOutput, apiIDInvalid)
			continue
		}
		break
	}
	hash, err := askNonEmpty(apiHashPrompt, apiHashInvalid, readpass)
	if err != nil {
		return 0, "", err
	}
	return id, hash, nil
}

func askNonEmpty(prompt, invalid string, read func() (string, error)) (string, error) {
	for {
		promptColor.Fprint(hOutput, prompt)
		s, err := read()
		if err != nil {
			return "", err
		}
		if s == "" {
			errorColor.Fprintln(hOutput, invalid)
			continue
		}
		return s, nil
	}
}

// clrscr clears the screen.
func clrscr(w io.Writer) {
	fmt.Fprint(w, "\033[H\033[2J")
}

var _ Handler = TermAuth{}
var _ CredentialsAsker = TermAuth{}
