// Package models defines the data structures used for API requests and database persistence.
package models

import (
	"time"

	"github.com/woozymasta/herald/internal/a2s"
)

// TargetRequest is the payload of a target registration.
type TargetRequest struct {
	Name string `json:"name,omitempty"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ServerStatus is the last known state of a polled game server.
type ServerStatus struct {
	LastChecked   time.Time  `json:"last_checked"`
	FirstSeen     *time.Time `json:"first_seen,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	Key           string     `json:"key"`
	Name          string     `json:"name"`
	Host          string     `json:"host"`
	ServerName    string     `json:"server_name"`
	MapName       string     `json:"map_name"`
	Folder        string     `json:"folder"`
	GameName      string     `json:"game_name"`
	GameVersion   string     `json:"game_version"`
	ServerOS      string     `json:"server_os"`
	CountryCode   string     `json:"country_code"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorKind string     `json:"last_error_kind,omitempty"`
	Port          int        `json:"port"`
	Failures      int        `json:"failures"`
	QueryMS       int64      `json:"query_ms"`
	AppID         int16      `json:"app_id"`
	Online        bool       `json:"online"`
	Players       byte       `json:"players"`
	MaxPlayers    byte       `json:"max_players"`
	Bots          byte       `json:"bots"`
}

// HumanPlayers is the player count without bots, never below zero.
func (s ServerStatus) HumanPlayers() int {
	return max(int(s.Players)-int(s.Bots), 0)
}

// ApplyInfo copies the shown fields of an A2S response into the status.
func (s *ServerStatus) ApplyInfo(info *a2s.Info) {
	s.ServerName = info.Name
	s.MapName = info.Map
	s.Folder = info.Folder
	s.GameName = info.Game
	s.GameVersion = info.Version
	s.AppID = info.AppID
	s.Players = info.Players
	s.MaxPlayers = info.MaxPlayers
	s.Bots = info.Bots
	if info.Environment != 0 {
		s.ServerOS = info.Environment.String()
	}
}
