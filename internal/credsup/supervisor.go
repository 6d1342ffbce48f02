package credsup

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ashspire/songbot/internal/credential"
	"github.com/ashspire/songbot/internal/injector"
	"github.com/ashspire/songbot/internal/settingsstore"
)

const connectionSettingName = "connection"

// validation is the outcome of one evaluation pass.
type validation int

const (
	validationKeep validation = iota
	validationUpdated
	validationCleared
)

// Supervisor owns one provider's OAuth2 connection lifecycle: it watches
// the persisted grant for external changes (a user connecting or
// disconnecting through the dashboard), refreshes the access token before
// it expires, and republishes the result to a credential.Handle and an
// injector slot so every consumer sees the same, current token.
type Supervisor struct {
	Provider  string
	Settings  *settingsstore.Scoped
	Injector  *injector.Injector
	Key       injector.Key[credential.Token]
	Handle    *credential.Handle
	Refresher Refresher

	// ExpiresWithin is how far ahead of expiry a refresh is triggered.
	// Defaults to 5 minutes.
	ExpiresWithin time.Duration
	// CheckInterval is how often Keep/refresh is re-evaluated even absent
	// an external trigger. Defaults to 30 seconds.
	CheckInterval time.Duration
	// Backoff governs the wait between failed refresh attempts. A default
	// is constructed if nil.
	Backoff *Backoff

	// Broker, when set, announces on the cluster-wide Redis channel each
	// time the supervisor republishes its injector slot, so other replicas'
	// injector slots converge without each running its own refresh against
	// the provider. A refresh that only rotates the access token (same
	// client id and scopes) leaves the slot alone and is not announced.
	Broker *injector.RedisBroker

	Logger *slog.Logger

	connection   *Connection
	forceRefresh bool
	backoffUntil time.Time
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Supervisor) init(ctx context.Context) {
	if s.ExpiresWithin <= 0 {
		s.ExpiresWithin = 5 * time.Minute
	}
	if s.CheckInterval <= 0 {
		s.CheckInterval = 30 * time.Second
	}
	if s.Backoff == nil {
		s.Backoff = NewBackoff(50*time.Millisecond, time.Minute)
	}
	s.apply(ctx)
}

func (s *Supervisor) apply(ctx context.Context) {
	if s.connection != nil {
		tok := credential.Token{
			AccessToken: s.connection.AccessToken,
			ClientID:    s.connection.ClientID,
		}
		s.Handle.Set(s.connection.AccessToken, s.connection.ClientID)
		injector.Update(s.Injector, s.Key, tok)
		s.announce(ctx, tok, true)
		return
	}
	s.Handle.Clear()
	injector.Clear(s.Injector, s.Key)
	s.announce(ctx, credential.Token{}, false)
}

func (s *Supervisor) announce(ctx context.Context, tok credential.Token, present bool) {
	if s.Broker == nil {
		return
	}
	if err := s.Broker.PublishRotation(ctx, s.Provider, tok, present); err != nil {
		s.logger().Warn("failed to announce credential rotation", "provider", s.Provider, "error", err)
	}
}

// ForceRefresh demands an out-of-cycle token refresh on the next
// evaluation, regardless of the current token's remaining lifetime.
func (s *Supervisor) ForceRefresh() {
	s.forceRefresh = true
	s.Handle.ForceRefresh()
}

// Run drives the supervisor until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.init(ctx)

	raw, ok, sub, err := s.Settings.Stream(ctx, connectionSettingName)
	if err != nil {
		return err
	}
	defer sub.Close()
	if ok {
		if conn, err := decodeConnection(raw); err == nil {
			s.connection = conn
			s.apply(ctx)
		} else {
			s.logger().Warn("discarding malformed stored connection", "provider", s.Provider, "error", err)
		}
	}

	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()

	refreshCh := s.Handle.Listen()

	for {
		var backoffTimer <-chan time.Time
		if !s.backoffUntil.IsZero() {
			timer := time.NewTimer(time.Until(s.backoffUntil))
			defer timer.Stop()
			backoffTimer = timer.C
		}
		backingOff := !s.backoffUntil.IsZero()

		select {
		case <-ctx.Done():
			return nil

		case ev, chOpen := <-sub.C():
			if !chOpen {
				return nil
			}
			previous := s.connection
			switch ev.Kind {
			case settingsstore.EventClear:
				s.connection = nil
			case settingsstore.EventSet:
				conn, err := decodeConnection(ev.Value)
				if err != nil {
					s.logger().Warn("ignoring malformed connection update", "provider", s.Provider, "error", err)
					continue
				}
				s.connection = conn
			}
			s.Backoff.Reset()
			s.backoffUntil = time.Time{}

			if ev.Kind == settingsstore.EventSet && !sameConnection(previous, s.connection) {
				// A new connection must fan out immediately: evaluate()'s
				// expiry check would otherwise report validationKeep and
				// silently drop it.
				s.apply(ctx)
				continue
			}
			s.update(ctx, true)

		case <-refreshCh:
			refreshCh = s.Handle.Listen()
			if backingOff {
				continue
			}
			s.forceRefresh = true
			s.update(ctx, false)

		case <-ticker.C:
			if backingOff {
				continue
			}
			s.update(ctx, false)

		case <-backoffTimer:
			s.backoffUntil = time.Time{}
		}
	}
}

func (s *Supervisor) update(ctx context.Context, fromSetting bool) {
	outcome, next, err := s.evaluate(ctx)
	if err != nil {
		wait := s.Backoff.Failed()
		s.backoffUntil = time.Now().Add(wait)
		s.logger().Warn("connection refresh failed, backing off", "provider", s.Provider, "wait", wait, "error", err)
		return
	}
	s.Backoff.Reset()

	switch outcome {
	case validationKeep:
		return
	case validationUpdated:
		oldHash := ""
		if s.connection != nil {
			oldHash = s.connection.hash()
		}
		if !fromSetting {
			raw, _ := json.Marshal(next)
			if err := s.Settings.SetSilent(ctx, connectionSettingName, raw); err != nil {
				s.logger().Warn("failed to persist refreshed connection", "provider", s.Provider, "error", err)
			}
		}
		s.connection = &next
		s.Handle.Set(next.AccessToken, next.ClientID)
		if oldHash != next.hash() {
			tok := credential.Token{AccessToken: next.AccessToken, ClientID: next.ClientID}
			injector.Update(s.Injector, s.Key, tok)
			s.announce(ctx, tok, true)
		}
	case validationCleared:
		if !fromSetting {
			if err := s.Settings.Clear(ctx, connectionSettingName); err != nil {
				s.logger().Warn("failed to clear persisted connection", "provider", s.Provider, "error", err)
			}
		}
		s.connection = nil
		s.Handle.Clear()
		injector.Clear(s.Injector, s.Key)
		s.announce(ctx, credential.Token{}, false)
	}
}

func (s *Supervisor) evaluate(ctx context.Context) (validation, Connection, error) {
	if s.forceRefresh {
		s.forceRefresh = false
		if s.connection == nil {
			return validationCleared, Connection{}, nil
		}
		next, err := s.Refresher.Refresh(ctx, *s.connection)
		if err != nil {
			return 0, Connection{}, err
		}
		return validationUpdated, next, nil
	}

	if s.connection == nil {
		return validationCleared, Connection{}, nil
	}

	if !s.connection.expiresWithin(s.ExpiresWithin) {
		return validationKeep, Connection{}, nil
	}

	next, err := s.Refresher.Refresh(ctx, *s.connection)
	if err != nil {
		return 0, Connection{}, err
	}
	return validationUpdated, next, nil
}

func decodeConnection(raw json.RawMessage) (*Connection, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty connection payload")
	}
	var conn Connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}
