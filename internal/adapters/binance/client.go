package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const (
	defaultRecvWindow    = 5000
	defaultRecvWindowMax = 60000
	defaultRetries       = 3
	baseRetryWait        = 300 * time.Millisecond
)

// Options configura el gateway.
type Options struct {
	APIKey    string
	APISecret string
	Testnet   bool
	BaseURL   string // override para tests o proxies

	HTTPTimeout    time.Duration
	RequestsPerSec float64
	Burst          int

	RecvWindowBase int64
	RecvWindowBump int64
	RecvWindowMax  int64

	// ReadRetries acota los reintentos de lecturas idempotentes.
	ReadRetries int
}

// Client es el gateway de Binance USDⓈ-M con rate limiting, retries
// acotados para lecturas y clasificación tipada de errores.
//
// sendMu serializa la emisión de requests; signMu protege el offset de
// tiempo y la ventana de recepción. Ninguno se sostiene durante una espera
// de red ajena a la propia request.
type Client struct {
	fc      *futures.Client
	limiter *rate.Limiter
	retries int

	sendMu sync.Mutex

	signMu     sync.Mutex
	recvBase   int64
	recvBump   int64
	recvMax    int64
	recvWindow int64
}

// NewClient crea el gateway. Testnet solo cambia las URLs base.
func NewClient(opts Options) *Client {
	if opts.Testnet {
		futures.UseTestnet = true
	}
	fc := gobinance.NewFuturesClient(opts.APIKey, opts.APISecret)
	if opts.BaseURL != "" {
		fc.BaseURL = opts.BaseURL
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fc.HTTPClient = &http.Client{Timeout: timeout}

	rps := opts.RequestsPerSec
	if rps <= 0 {
		rps = 8
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 4
	}
	retries := opts.ReadRetries
	if retries <= 0 {
		retries = defaultRetries
	}
	base := opts.RecvWindowBase
	if base <= 0 {
		base = defaultRecvWindow
	}
	maxW := opts.RecvWindowMax
	if maxW <= 0 {
		maxW = defaultRecvWindowMax
	}
	return &Client{
		fc:         fc,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		retries:    retries,
		recvBase:   base,
		recvBump:   opts.RecvWindowBump,
		recvMax:    maxW,
		recvWindow: base,
	}
}

// Futures expone el cliente subyacente para los streams (URLs, listen key).
func (c *Client) Futures() *futures.Client { return c.fc }

// SetTimeOffset aplica el drift servidor-local a la firma. go-binance resta
// TimeOffset a la hora local, así que se guarda con el signo invertido.
func (c *Client) SetTimeOffset(driftMs int64) {
	c.signMu.Lock()
	c.fc.TimeOffset = -driftMs
	c.signMu.Unlock()
}

// BumpRecvWindow amplía la ventana de recepción (acotada a max) o la
// devuelve a la base.
func (c *Client) BumpRecvWindow(bump bool) {
	c.signMu.Lock()
	defer c.signMu.Unlock()
	if !bump {
		c.recvWindow = c.recvBase
		return
	}
	c.recvWindow = min(c.recvMax, c.recvBase+c.recvBump)
}

// RecvWindow devuelve la ventana actual en ms.
func (c *Client) RecvWindow() int64 {
	c.signMu.Lock()
	defer c.signMu.Unlock()
	return c.recvWindow
}

func (c *Client) opts() []futures.RequestOption {
	return []futures.RequestOption{futures.WithRecvWindow(c.RecvWindow())}
}

// send emite una única request respetando el limiter y el lock de envío.
func (c *Client) send(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.ExchangeError{Kind: domain.KindTransient, Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}
	c.sendMu.Lock()
	err := fn(ctx)
	c.sendMu.Unlock()
	return classify(op, err)
}

// read ejecuta una lectura idempotente con reintentos acotados y jitter.
// Solo se reintentan los errores transitorios.
func (c *Client) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		err = c.send(ctx, op, fn)
		if err == nil || !domain.IsTransient(err) || ctx.Err() != nil {
			return err
		}
		if attempt < c.retries {
			slog.Debug("binance: retrying read", "op", op, "attempt", attempt+1, "err", err)
			sleep(ctx, attempt)
		}
	}
	return err
}

// sleep espera con backoff exponencial y jitter, respetando el contexto.
func sleep(ctx context.Context, attempt int) {
	wait := baseRetryWait << attempt
	wait += time.Duration(rand.Int64N(int64(wait / 2)))
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Códigos de Binance que se tratan como transitorios o fatales.
var (
	transientCodes = map[int64]bool{
		-1000: true, // unknown error
		-1001: true, // disconnected
		-1003: true, // too many requests
		-1007: true, // timeout waiting for backend
		-1008: true, // server overloaded
		-1021: true, // timestamp outside recvWindow
	}
	fatalCodes = map[int64]bool{
		-1022: true, // invalid signature
		-2014: true, // bad api key format
		-2015: true, // invalid key / ip / permissions
	}
)

// classify convierte un error de go-binance en domain.ExchangeError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var xe *domain.ExchangeError
	if errors.As(err, &xe) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.ExchangeError{Kind: domain.KindTransient, Op: op, Err: err}
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		kind := domain.KindRejected
		switch {
		case apiErr.Code == 0:
			// cuerpo no JSON: 5xx de un proxy o del balanceador
			kind = domain.KindTransient
		case transientCodes[apiErr.Code]:
			kind = domain.KindTransient
		case fatalCodes[apiErr.Code]:
			kind = domain.KindFatal
		}
		return &domain.ExchangeError{Kind: kind, Op: op, Code: apiErr.Code, Msg: apiErr.Message, Err: err}
	}
	return &domain.ExchangeError{Kind: domain.KindTransient, Op: op, Err: err}
}
