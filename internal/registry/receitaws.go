// Package registry looks up companies on the Brazilian federal registry
// through the public ReceitaWS API.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/docvalidate/internal/core"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultBaseURL           = "https://www.receitaws.com.br"
	DefaultRequestsPerMinute = 3
)

// maxResponseSize caps a registry response body.
const maxResponseSize = 1 << 20

const notInformed = "Não informado"

// Config controls the ReceitaWS client.
type Config struct {
	BaseURL           string
	RequestsPerMinute int // Client-side pacing; the free tier allows 3
	UserAgent         string
}

// ReceitaWS implements core.Registry against the ReceitaWS REST API.
type ReceitaWS struct {
	client  *http.Client
	baseURL string
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ core.Registry = (*ReceitaWS)(nil)

// NewReceitaWS creates a client. A nil client gets http.DefaultClient.
func NewReceitaWS(cfg Config, client *http.Client, logger *slog.Logger) *ReceitaWS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Burst equals the per-minute budget so a single batch is not delayed.
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)

	return &ReceitaWS{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
	}
}

// receitaResponse is the subset of the ReceitaWS payload used here.
type receitaResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Nome        string `json:"nome"`
	Situacao    string `json:"situacao"`
	Logradouro  string `json:"logradouro"`
	Numero      string `json:"numero"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Municipio   string `json:"municipio"`
	UF          string `json:"uf"`
	CEP         string `json:"cep"`

	AtividadePrincipal []struct {
		Code string `json:"code"`
		Text string `json:"text"`
	} `json:"atividade_principal"`
}

// Lookup fetches the company registered under taxID.
// Failures are returned as *core.RegistryError.
func (c *ReceitaWS) Lookup(ctx context.Context, taxID string) (*core.RegistryRecord, error) {
	digits := core.NormalizeTaxID(taxID)
	if digits == "" {
		return nil, &core.RegistryError{Kind: core.KindNotFound, Detail: "empty tax id"}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails early when the deadline cannot be met.
		kind := core.KindTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			kind = core.KindNetwork
		}
		return nil, &core.RegistryError{Kind: kind, Detail: "rate limit wait: " + err.Error(), Err: err}
	}

	start := time.Now()
	url := fmt.Sprintf("%s/v1/cnpj/%s", c.baseURL, digits)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &core.RegistryError{Kind: core.KindNetwork, Detail: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &core.RegistryError{Kind: core.KindNotFound, Detail: "HTTP 404"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &core.RegistryError{Kind: core.KindNetwork, Detail: "HTTP 429: registry rate limit exceeded"}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &core.RegistryError{Kind: core.KindNetwork, Detail: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, transportError(ctx, err)
	}

	var payload receitaResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &core.RegistryError{Kind: core.KindNetwork, Detail: "decode response: " + err.Error(), Err: err}
	}
	if strings.EqualFold(payload.Status, "ERROR") {
		detail := payload.Message
		if detail == "" {
			detail = "registry returned an error status"
		}
		return nil, &core.RegistryError{Kind: core.KindNotFound, Detail: detail}
	}

	c.logger.Debug("registry lookup",
		"tax_id", digits,
		"status", payload.Situacao,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return payload.record(), nil
}

func (p receitaResponse) record() *core.RegistryRecord {
	return &core.RegistryRecord{
		LegalName:          strings.TrimSpace(p.Nome),
		RegistrationStatus: strings.TrimSpace(p.Situacao),
		Address:            p.address(),
		MainActivity:       p.mainActivity(),
	}
}

// address renders "logradouro, numero complemento - bairro, municipio - uf, CEP: cep".
func (p receitaResponse) address() string {
	var b strings.Builder
	b.WriteString(orDefault(p.Logradouro, notInformed))
	b.WriteString(", ")
	b.WriteString(orDefault(p.Numero, "S/N"))
	if c := strings.TrimSpace(p.Complemento); c != "" {
		b.WriteString(" ")
		b.WriteString(c)
	}
	b.WriteString(" - ")
	b.WriteString(orDefault(p.Bairro, notInformed))
	b.WriteString(", ")
	b.WriteString(orDefault(p.Municipio, notInformed))
	b.WriteString(" - ")
	b.WriteString(orDefault(p.UF, "NI"))
	b.WriteString(", CEP: ")
	b.WriteString(orDefault(p.CEP, notInformed))
	return b.String()
}

func (p receitaResponse) mainActivity() string {
	if len(p.AtividadePrincipal) == 0 {
		return notInformed
	}
	a := p.AtividadePrincipal[0]
	return orDefault(a.Code, notInformed) + " - " + orDefault(a.Text, notInformed)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func transportError(ctx context.Context, err error) *core.RegistryError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &core.RegistryError{Kind: core.KindTimeout, Detail: core.TimeoutDetail(err), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &core.RegistryError{Kind: core.KindTimeout, Detail: core.TimeoutDetail(err), Err: err}
	}
	return &core.RegistryError{Kind: core.KindNetwork, Detail: err.Error(), Err: err}
}
