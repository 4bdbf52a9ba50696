package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"eventDesk/internal/mapper"
)

type PostgRESTConfig struct {
	URL     string
	AnonKey string
	Tables  Tables
	Timeout time.Duration
}

func (c PostgRESTConfig) Validate() error {
	switch {
	case c.URL == "":
		return errors.New("remote url is required")
	case !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://"):
		return fmt.Errorf("remote url %q must be http(s)", c.URL)
	case c.AnonKey == "":
		return errors.New("remote anon key is required")
	case c.Tables.Events == "" || c.Tables.Registrations == "":
		return errors.New("remote table names are required")
	}
	return nil
}

// PostgREST is a Store backed by a hosted PostgREST endpoint (/rest/v1).
type PostgREST struct {
	cfg         PostgRESTConfig
	httpClient  *http.Client
	log         *zerolog.Logger
	initialized atomic.Bool
}

func NewPostgREST(cfg PostgRESTConfig, log *zerolog.Logger) *PostgREST {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PostgREST{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Init marks the client usable once the config checks out. A failing
// connection test is only logged: the store may come up later.
func (p *PostgREST) Init(ctx context.Context) error {
	if err := p.cfg.Validate(); err != nil {
		return fmt.Errorf("postgrest config: %w", err)
	}
	p.initialized.Store(true)

	if _, err := p.Select(ctx, p.cfg.Tables.Events, Query{Limit: 1}); err != nil {
		p.log.Warn().Err(err).Msg("remote connection test failed")
	} else {
		p.log.Info().Str("url", p.cfg.URL).Msg("remote store reachable")
	}
	return nil
}

func (p *PostgREST) Ready() bool { return p.initialized.Load() }

func (p *PostgREST) endpoint(table string, params url.Values) string {
	u := strings.TrimRight(p.cfg.URL, "/") + "/rest/v1/" + url.PathEscape(table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (p *PostgREST) Select(ctx context.Context, table string, q Query) ([]mapper.Record, error) {
	params := url.Values{"select": {"*"}}
	for col, v := range q.Eq {
		params.Set(col, "eq."+v)
	}
	if q.Order != "" {
		dir := "desc"
		if q.Ascending {
			dir = "asc"
		}
		params.Set("order", q.Order+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var rows []mapper.Record
	if err := p.do(ctx, http.MethodGet, p.endpoint(table, params), nil, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return rows, nil
}

func (p *PostgREST) Insert(ctx context.Context, table string, row mapper.Record) (mapper.Record, error) {
	var rows []mapper.Record
	if err := p.do(ctx, http.MethodPost, p.endpoint(table, nil), row, &rows); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: empty representation", table)
	}
	return rows[0], nil
}

func (p *PostgREST) Update(ctx context.Context, table, id string, patch mapper.Record) (mapper.Record, error) {
	params := url.Values{"id": {"eq." + id}}
	var rows []mapper.Record
	if err := p.do(ctx, http.MethodPatch, p.endpoint(table, params), patch, &rows); err != nil {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("update %s/%s: %w", table, id, ErrNoRows)
	}
	return rows[0], nil
}

func (p *PostgREST) Delete(ctx context.Context, table, id string) error {
	params := url.Values{"id": {"eq." + id}}
	var rows []mapper.Record
	if err := p.do(ctx, http.MethodDelete, p.endpoint(table, params), nil, &rows); err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete %s/%s: %w", table, id, ErrNoRows)
	}
	return nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (p *PostgREST) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if !p.Ready() {
		return ErrNotInitialized
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", p.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+p.cfg.AnonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("remote returned status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("remote returned status %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
