// Package models defines the data structures used for API responses and database persistence.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Edition is the game server variant.
type Edition string

const (
	EditionJava    Edition = "java"
	EditionBedrock Edition = "bedrock"
)

// EditionOf returns the edition selected by the bedrock flag.
func EditionOf(bedrock bool) Edition {
	if bedrock {
		return EditionBedrock
	}
	return EditionJava
}

// Valid reports whether e is a known edition.
func (e Edition) Valid() bool {
	return e == EditionJava || e == EditionBedrock
}

// Source tells who performed a check.
type Source string

const (
	SourceWeb Source = "WEB"
	SourceAPI Source = "API"
	SourceBot Source = "BOT"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceWeb || s == SourceAPI || s == SourceBot
}

// Key identifies a server record: one row per (address, edition).
type Key struct {
	Address string
	Edition Edition
}

// NewKey builds a key with the address trimmed and lowercased.
func NewKey(address string, edition Edition) Key {
	return Key{Address: NormalizeAddress(address), Edition: edition}
}

// String renders the key as "address|edition".
func (k Key) String() string {
	return fmt.Sprintf("%s|%s", k.Address, k.Edition)
}

// RefreshTarget is a stored server together with the mode it was last
// resolved in, so a batch refresh keeps query-only fields.
type RefreshTarget struct {
	Key   Key
	Query bool
}

// NormalizeAddress returns the canonical, case-insensitive form of a server address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Players holds the online and max player counts.
type Players struct {
	Online int `json:"online"`
	Max    int `json:"max"`
}

// Motd is the message of the day in raw, plain and HTML renderings.
type Motd struct {
	Raw   string `json:"raw"`
	Clean string `json:"clean"`
	HTML  string `json:"html"`
}

// QueryFields are only known when the server was resolved with query mode.
type QueryFields struct {
	IP      string   `json:"ip"`
	Map     string   `json:"map"`
	Plugins []string `json:"plugins"`
}

// JavaFields are the status fields exclusive to Java edition servers.
type JavaFields struct {
	Software *string      `json:"software"`
	Favicon  *string      `json:"favicon"`
	Ping     *int64       `json:"ping"`
	Query    *QueryFields `json:"query"`
}

// BedrockFields are the status fields exclusive to Bedrock edition servers.
type BedrockFields struct {
	EditionName string `json:"edition_name"`
	Gamemode    string `json:"gamemode"`
	GUID        string `json:"guid"`
}

// Status is the normalized live state of a server. Exactly one of Java and
// Bedrock is set, matching the edition it was normalized for.
type Status struct {
	Version  *string        `json:"version"`
	Java     *JavaFields    `json:"java"`
	Bedrock  *BedrockFields `json:"bedrock"`
	Motd     Motd           `json:"motd"`
	Host     string         `json:"host"`
	Players  Players        `json:"players"`
	Port     int            `json:"port"`
	Protocol int            `json:"protocol"`
	Online   bool           `json:"online"`
}

// QueryMode reports whether the status carries query-mode fields.
func (s Status) QueryMode() bool {
	return s.Java != nil && s.Java.Query != nil
}

// ServerRecord is the cached, canonical representation of a server's last known status.
type ServerRecord struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	OwnerID   *int64    `json:"owner_id"`
	Address   string    `json:"address"`
	Edition   Edition   `json:"edition"`
	ID        int64     `json:"id"`
	Status
}

// Key returns the identity of the record.
func (r ServerRecord) Key() Key {
	return Key{Address: r.Address, Edition: r.Edition}
}

// Check is an immutable record of one successful resolution.
type Check struct {
	CheckedAt     time.Time `json:"checked_at" db:"checked_at"`
	ClientIP      *string   `json:"client_ip,omitempty" db:"client_ip"`
	CountryCode   *string   `json:"country_code,omitempty" db:"country_code"`
	Source        Source    `json:"source" db:"source"`
	ID            int64     `json:"id" db:"id"`
	ServerID      int64     `json:"server_id" db:"server_id"`
	TokenID       int64     `json:"-" db:"token_id"`
	PlayersOnline int       `json:"players_online" db:"players_online"`
	Online        bool      `json:"online" db:"online"`
}

// Vote is an append-only vote cast by a user for a server.
type Vote struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ID        int64     `json:"id" db:"id"`
	ServerID  int64     `json:"server_id" db:"server_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
}

// Token is an API credential that checks are attributed to.
type Token struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Token     string    `json:"-" db:"token"`
	Name      string    `json:"name" db:"name"`
	ID        int64     `json:"id" db:"id"`
}

// ServerStats are aggregates derived from the check and vote history.
type ServerStats struct {
	ServerID              int64 `json:"server_id"`
	Votes                 int64 `json:"votes"`
	VotesThisMonth        int64 `json:"votes_this_month"`
	VotesLastMonthToDate  int64 `json:"votes_last_month_to_date"`
	Checks                int64 `json:"checks"`
	ChecksThisMonth       int64 `json:"checks_this_month"`
	ChecksLastMonthToDate int64 `json:"checks_last_month_to_date"`
}

// ServerSummary is a listing entry.
type ServerSummary struct {
	Favicon *string `json:"favicon,omitempty" db:"favicon"`
	Address string  `json:"address" db:"address"`
	Edition Edition `json:"edition" db:"edition"`
	ID      int64   `json:"id" db:"id"`
	Online  bool    `json:"online" db:"online"`
}
