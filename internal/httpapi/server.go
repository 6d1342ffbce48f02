package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashspire/songbot/internal/oauthflow"
	"github.com/ashspire/songbot/internal/player"
)

// GrantHandler persists a completed OAuth exchange as the provider's
// credential supervisor connection record. The caller supplies this so
// httpapi does not need to know about settingsstore or credsup directly.
type GrantHandler func(ctx context.Context, grant oauthflow.Grant) error

// Config wires the dashboard/OAuth server to the rest of the process.
type Config struct {
	OAuth         *oauthflow.Manager
	OnGrant       GrantHandler
	Player        *player.Player
	Sessions      *SessionManager
	Logger        *slog.Logger
	DashboardUser string
	DashboardPass string
}

// Server implements the process's HTTP surface: OAuth begin/callback for
// connecting providers, and a read-only dashboard over the Player Core.
type Server struct {
	cfg Config
}

// New constructs a Server. cfg.OAuth and cfg.Player are required.
func New(cfg Config) (*Server, error) {
	if cfg.OAuth == nil {
		return nil, errors.New("httpapi: OAuth manager is required")
	}
	if cfg.Player == nil {
		return nil, errors.New("httpapi: player is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg}, nil
}

// Routes returns an http.Handler with every route registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/", s.handleOAuth)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/dashboard/state", s.requireSession(s.handleDashboardState))
	return mux
}

// handleOAuth dispatches "/oauth/<provider>/begin" and
// "/oauth/<provider>/callback" by splitting the trimmed path, matching the
// teacher's manual-prefix routing rather than pulling in a router library.
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.TrimPrefix(r.URL.Path, "/oauth/")
	segments := strings.SplitN(trimmed, "/", 2)
	if len(segments) != 2 || segments[0] == "" {
		http.NotFound(w, r)
		return
	}
	provider, action := segments[0], segments[1]
	switch action {
	case "begin":
		s.handleBegin(w, r, provider)
	case "callback":
		s.handleCallback(w, r, provider)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request, provider string) {
	result, err := s.cfg.OAuth.Begin(provider)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	http.Redirect(w, r, result.URL, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request, provider string) {
	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")

	if errParam := query.Get("error"); errParam != "" {
		s.writeError(w, http.StatusBadRequest, errors.New("provider denied authorization: "+errParam))
		return
	}

	grant, err := s.cfg.OAuth.Complete(r.Context(), provider, state, code)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.cfg.OnGrant != nil {
		if err := s.cfg.OnGrant(r.Context(), grant); err != nil {
			s.cfg.Logger.Error("failed to persist oauth grant", "provider", provider, "error", err)
			s.writeError(w, http.StatusInternalServerError, errors.New("failed to save connection"))
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"provider": grant.Provider, "connected": true})
}

// handleLogin exchanges an operator-configured username/password for a
// signed dashboard session cookie. There is exactly one dashboard account;
// this is not a multi-user login system.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		s.writeError(w, http.StatusNotFound, errors.New("dashboard disabled"))
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if body.Username == "" || body.Username != s.cfg.DashboardUser || body.Password != s.cfg.DashboardPass {
		s.writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}

	cookie := s.cfg.Sessions.Issue(body.Username)
	http.SetCookie(w, &http.Cookie{
		Name:     "songbot_session",
		Value:    cookie,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	s.writeJSON(w, http.StatusOK, map[string]any{"requestID": uuid.NewString(), "ok": true})
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Sessions == nil {
			next(w, r)
			return
		}
		cookie, err := r.Cookie("songbot_session")
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
			return
		}
		if _, err := s.cfg.Sessions.Verify(cookie.Value); err != nil {
			s.writeError(w, http.StatusUnauthorized, errors.New("session expired"))
			return
		}
		next(w, r)
	}
}

type dashboardSong struct {
	TrackID  string `json:"trackId"`
	User     string `json:"user,omitempty"`
	State    string `json:"state"`
	Elapsed  int64  `json:"elapsedMs"`
	Duration int64  `json:"durationMs"`
}

type dashboardState struct {
	Current *dashboardSong  `json:"current"`
	Queue   []dashboardSong `json:"queue"`
	Length  int             `json:"length"`
}

func (s *Server) handleDashboardState(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	state := dashboardState{Length: s.cfg.Player.Length()}

	if current := s.cfg.Player.Current(); current != nil {
		state.Current = &dashboardSong{
			TrackID:  current.TrackID.String(),
			State:    current.State.String(),
			Elapsed:  current.EffectiveElapsed(now).Milliseconds(),
			Duration: current.Duration.Milliseconds(),
			User:     userOrEmpty(current.User),
		}
	}

	for _, item := range s.cfg.Player.List() {
		state.Queue = append(state.Queue, dashboardSong{
			TrackID:  item.TrackID.String(),
			Duration: item.Duration.Milliseconds(),
			User:     userOrEmpty(item.User),
		})
	}

	s.writeJSON(w, http.StatusOK, state)
}

func userOrEmpty(user *string) string {
	if user == nil {
		return ""
	}
	return *user
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": strings.TrimSpace(err.Error())})
}
