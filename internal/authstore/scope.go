// Package authstore implements the scope/role grant model that gates which
// chat users may invoke which bot capability: a persisted set of
// (scope, role) assignments, schema-driven default grants applied once per
// schema version, and an in-memory table of temporary allow/deny permits
// that expire on their own.
package authstore

import "strings"

// Scope is a closed enum of capabilities a grant can unlock. An unrecognized
// string always decodes to ScopeUnknown, which never grants anything.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopePlayerDetach
	ScopeAdmin
	ScopeSong
	ScopeSongYouTube
	ScopeSongSpotify
	ScopeSongBypassConstraints
	ScopeSongTheme
	ScopeSongEditQueue
	ScopeSongListLimit
	ScopeSongVolume
	ScopeSongPlaybackControl
	ScopeSwearJar
	ScopeUptime
	ScopeGame
	ScopeGameEdit
	ScopeTitle
	ScopeTitleEdit
	ScopeAfterStream
	ScopeClip
	ScopeEightBall
	ScopeCommand
	ScopeCommandEdit
	ScopeThemeEdit
	ScopePromoEdit
	ScopeAliasEdit
	ScopeCountdown
	ScopeSpeedrun
	ScopeCurrencyShow
	ScopeCurrencyBoost
	ScopeCurrencyWindfall
	ScopeAuthPermit
	ScopeChatBypassURLWhitelist
	ScopeTime
)

var scopeNames = map[Scope]string{
	ScopePlayerDetach:           "player/detach",
	ScopeAdmin:                  "admin",
	ScopeSong:                   "song",
	ScopeSongYouTube:            "song/youtube",
	ScopeSongSpotify:            "song/spotify",
	ScopeSongBypassConstraints:  "song/bypass-constraints",
	ScopeSongTheme:              "song/theme",
	ScopeSongEditQueue:          "song/edit-queue",
	ScopeSongListLimit:          "song/list-limit",
	ScopeSongVolume:             "song/volume",
	ScopeSongPlaybackControl:    "song/playback-control",
	ScopeSwearJar:               "swearjar",
	ScopeUptime:                 "uptime",
	ScopeGame:                   "game",
	ScopeGameEdit:               "game/edit",
	ScopeTitle:                  "title",
	ScopeTitleEdit:              "title/edit",
	ScopeAfterStream:            "afterstream",
	ScopeClip:                   "clip",
	ScopeEightBall:              "8ball",
	ScopeCommand:                "command",
	ScopeCommandEdit:            "command/edit",
	ScopeThemeEdit:              "theme/edit",
	ScopePromoEdit:              "promo/edit",
	ScopeAliasEdit:              "alias/edit",
	ScopeCountdown:              "countdown",
	ScopeSpeedrun:               "speedrun",
	ScopeCurrencyShow:           "currency/show",
	ScopeCurrencyBoost:          "currency/boost",
	ScopeCurrencyWindfall:       "currency/windfall",
	ScopeAuthPermit:             "auth/permit",
	ScopeChatBypassURLWhitelist: "chat/bypass-url-whitelist",
	ScopeTime:                   "time",
}

var scopesByName = func() map[string]Scope {
	m := make(map[string]Scope, len(scopeNames))
	for scope, name := range scopeNames {
		m[name] = scope
	}
	return m
}()

// String renders the scope in its canonical "/"-separated form.
func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseScope decodes a scope name. An unrecognized name decodes to
// ScopeUnknown rather than an error, matching the rest of the grant model's
// fail-safe-closed behaviour.
func ParseScope(s string) Scope {
	if scope, ok := scopesByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return scope
	}
	return ScopeUnknown
}

// AllScopes lists every known scope, in declaration order, for UI listings.
func AllScopes() []Scope {
	scopes := make([]Scope, 0, len(scopeNames))
	for scope := ScopePlayerDetach; scope <= ScopeTime; scope++ {
		scopes = append(scopes, scope)
	}
	return scopes
}
