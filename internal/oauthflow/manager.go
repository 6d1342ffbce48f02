package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrProviderNotConfigured is returned when a flow is requested for an
// unknown provider.
var ErrProviderNotConfigured = errors.New("oauth provider not configured")

// ErrStateInvalid is returned when the state parameter is missing, unknown,
// or expired.
var ErrStateInvalid = errors.New("oauth state invalid or expired")

// ProviderInfo is a lightweight description of a configured provider.
type ProviderInfo struct {
	Name        string
	DisplayName string
}

// BeginResult is returned when an authorization request is constructed.
type BeginResult struct {
	URL   string
	State string
}

// Grant is the outcome of a successful authorization-code exchange: exactly
// the fields the credential supervisor needs to build a Connection record.
type Grant struct {
	Provider     string
	AccessToken  string
	RefreshToken string
	ClientID     string
	Scopes       []string
	ExpiresIn    *time.Duration
}

// Manager drives authorization-code exchanges for a set of providers on
// behalf of the credential supervisor.
type Manager struct {
	providers map[string]ProviderConfig
	state     StateStore
	client    *http.Client
	stateTTL  time.Duration
}

// Option customises the Manager.
type Option func(*Manager)

// WithStateStore injects a custom state store.
func WithStateStore(store StateStore) Option {
	return func(m *Manager) {
		if store != nil {
			m.state = store
		}
	}
}

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// NewManager constructs a Manager for the provided configuration.
func NewManager(configs []ProviderConfig, opts ...Option) (*Manager, error) {
	mgr := &Manager{
		providers: make(map[string]ProviderConfig),
		state:     NewMemoryStateStore(),
		client:    &http.Client{Timeout: 10 * time.Second},
		stateTTL:  10 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		mgr.providers[strings.ToLower(cfg.Name)] = cfg
	}
	return mgr, nil
}

// Providers lists the configured providers.
func (m *Manager) Providers() []ProviderInfo {
	infos := make([]ProviderInfo, 0, len(m.providers))
	for _, cfg := range m.providers {
		infos = append(infos, ProviderInfo{Name: cfg.Name, DisplayName: cfg.DisplayName})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (m *Manager) oauth2Config(cfg ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthorizeURL,
			TokenURL: cfg.TokenURL,
		},
	}
}

// Begin initialises a flow for the selected provider.
func (m *Manager) Begin(name string) (BeginResult, error) {
	cfg, ok := m.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return BeginResult{}, ErrProviderNotConfigured
	}
	state, err := GenerateState()
	if err != nil {
		return BeginResult{}, err
	}
	if err := m.state.Put(state, StateData{Provider: cfg.Name}, m.stateTTL); err != nil {
		return BeginResult{}, err
	}
	opts := make([]oauth2.AuthCodeOption, 0, len(cfg.AuthParams))
	for key, value := range cfg.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}
	url := m.oauth2Config(cfg).AuthCodeURL(state, opts...)
	return BeginResult{URL: url, State: state}, nil
}

// Complete exchanges the authorization code and returns the resulting grant.
func (m *Manager) Complete(ctx context.Context, name, state, code string) (Grant, error) {
	cfg, ok := m.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Grant{}, ErrProviderNotConfigured
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return Grant{}, ErrStateInvalid
	}
	data, ok := m.state.Take(state)
	if !ok {
		return Grant{}, ErrStateInvalid
	}
	if !strings.EqualFold(data.Provider, cfg.Name) {
		return Grant{}, ErrStateInvalid
	}

	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, m.client)
	token, err := m.oauth2Config(cfg).Exchange(httpCtx, code)
	if err != nil {
		return Grant{}, fmt.Errorf("exchange token: %w", err)
	}
	if token.AccessToken == "" {
		return Grant{}, fmt.Errorf("token response missing access_token")
	}

	grant := Grant{
		Provider:     cfg.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ClientID:     cfg.ClientID,
		Scopes:       cfg.Scopes,
	}
	if !token.Expiry.IsZero() {
		d := time.Until(token.Expiry)
		grant.ExpiresIn = &d
	}
	return grant, nil
}

// Cancel invalidates the provided state token.
func (m *Manager) Cancel(state string) error {
	state = strings.TrimSpace(state)
	if state == "" {
		return ErrStateInvalid
	}
	if _, ok := m.state.Take(state); !ok {
		return ErrStateInvalid
	}
	return nil
}
