// Command tdauth authorizes an engine client interactively.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rusq/tdauth"
	"github.com/rusq/tdauth/authflow"
	"github.com/rusq/tdauth/internal/simengine"
	"github.com/rusq/tdauth/tdjson"
)

const (
	simCode  = "12345"
	simPhone = "+10000000000"
	simToken = "1:sim"
	// maxAttempts is the number of times the rejected value is asked again.
	maxAttempts = 3
)

type params struct {
	config      string
	env         string
	sim         bool
	signal      bool
	debug       bool
	creds       string
	metrics     string
	phone       string
	bot         string
	verbosity   int
	logout      bool
	stayRunning bool
}

func main() {
	var p params
	flag.StringVar(&p.config, "config", "", "path to the YAML engine parameters `file`")
	flag.StringVar(&p.env, "env", "", "load the environment from the dotenv `file`")
	flag.BoolVar(&p.sim, "sim", false, "use the simulated engine, the code is "+simCode)
	flag.BoolVar(&p.signal, "signal", false, "read the answers from stdin one per line, without prompts")
	flag.BoolVar(&p.debug, "debug", false, "trace the engine traffic")
	flag.StringVar(&p.creds, "creds", "", "encrypted API credentials `file`")
	flag.StringVar(&p.metrics, "metrics", "", "serve the metrics on `addr`, i.e. :9090")
	flag.StringVar(&p.phone, "phone", "", "the phone number to sign in with")
	flag.StringVar(&p.bot, "bot", "", "the bot token to sign in with")
	flag.IntVar(&p.verbosity, "v", -1, "engine log verbosity level, -1 leaves it as is")
	flag.BoolVar(&p.logout, "logout", false, "log out once authorized")
	flag.BoolVar(&p.stayRunning, "stay", false, "stay running once authorized, until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, p); err != nil {
		tdauth.Log.Printf("tdauth: %s", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, p params) error {
	if p.env != "" {
		if err := godotenv.Load(p.env); err != nil {
			return fmt.Errorf("loading environment: %w", err)
		}
	}
	tdparams := tdauth.DefaultParameters()
	if p.config != "" {
		var err error
		if tdparams, err = tdauth.LoadParameters(p.config); err != nil {
			return err
		}
	}
	if err := tdparams.ApplyEnv(); err != nil {
		return err
	}

	eng, err := engine(p)
	if err != nil {
		return err
	}

	opts := []tdauth.Option{
		tdauth.WithParameters(tdparams),
		tdauth.WithDebug(p.debug),
		tdauth.WithEngineVerbosity(p.verbosity),
	}
	if p.creds != "" {
		opts = append(opts, tdauth.WithApiCredsFile(p.creds))
	}
	if p.metrics != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, tdauth.WithMetrics(reg))
		go serveMetrics(ctx, p.metrics, reg)
	}

	w := tdauth.New(eng, handler(ctx, p), opts...)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	c, err := w.BindClient(tdauth.Client{Name: "tdauth"})
	if err != nil {
		return err
	}
	if err := authorize(ctx, w, c); err != nil {
		return err
	}
	tdauth.Log.Printf("%s is authorized", c)

	switch {
	case p.logout:
		if err := w.LogOut(ctx, c); err != nil {
			return fmt.Errorf("logging out: %w", err)
		}
	case p.stayRunning:
		<-ctx.Done()
		return nil
	default:
		if err := w.CloseClient(ctx, c); err != nil {
			return fmt.Errorf("closing: %w", err)
		}
	}
	for {
		st, err := w.WaitClientState(ctx, c)
		if err != nil {
			return err
		}
		if st == tdauth.ClientStateClosed {
			return nil
		}
	}
}

// authorize waits for the authorization to conclude, asking to correct the
// rejected values.
func authorize(ctx context.Context, w *tdauth.Worker, c tdauth.BoundClient) error {
	attempts := 0
	for {
		st, err := w.WaitAuthStateChange(ctx, c)
		if err != nil {
			var derr *tdauth.DispatchError
			if !errors.As(err, &derr) {
				return err
			}
			if attempts++; attempts > maxAttempts {
				return err
			}
			tdauth.Log.Printf("%s, please try again", derr.Err)
			if err := w.HandleAuthState(ctx, derr.State, c); err != nil && !errors.As(err, &derr) {
				return err
			}
			continue
		}
		switch st {
		case tdauth.ClientStateOpened:
			return nil
		case tdauth.ClientStateClosed:
			return errors.New("client closed during authorization")
		}
		attempts = 0
	}
}

func engine(p params) (tdauth.Engine, error) {
	if p.sim {
		phone := p.phone
		if phone == "" {
			phone = simPhone
		}
		token := p.bot
		if token == "" {
			token = simToken
		}
		return simengine.New(simengine.Config{Phone: phone, Code: simCode, BotToken: token}), nil
	}
	e, err := tdjson.New()
	if err != nil {
		return nil, fmt.Errorf("native engine: %w, use -sim", err)
	}
	return e, nil
}

func handler(ctx context.Context, p params) authflow.Handler {
	if !p.signal {
		var opts []authflow.TermOption
		if p.phone != "" {
			opts = append(opts, authflow.WithPhone(p.phone))
		}
		if p.bot != "" {
			opts = append(opts, authflow.WithBotToken(p.bot))
		}
		return authflow.NewTermAuth(opts...)
	}
	in := make(chan string)
	go func() {
		defer close(in)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			select {
			case in <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return authflow.NewSignalAuth(in)
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(g, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		tdauth.Log.Printf("metrics: %s", err)
	}
}
