// Package song holds the track value exchanged between room members.
package song

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	UnknownTrack  = "Unknown Song"
	UnknownArtist = "Unknown Artist"
)

// Song is immutable once normalized. GithubURL is the playable media locator.
type Song struct {
	ID                string `json:"song_id"`
	TrackName         string `json:"track_name"`
	ArtistsString     string `json:"artists_string"`
	AlbumName         string `json:"album_name,omitempty"`
	CoverArtURL       string `json:"cover_art_url,omitempty"`
	GithubURL         string `json:"github_url"`
	DurationFormatted string `json:"duration_formatted,omitempty"`
}

// IDFromURL derives a stable song id from its media locator.
func IDFromURL(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

// Normalize fills the fields every song in local state must carry.
func Normalize(s Song) Song {
	s.TrackName = strings.TrimSpace(s.TrackName)
	s.ArtistsString = strings.TrimSpace(s.ArtistsString)
	if s.TrackName == "" {
		s.TrackName = UnknownTrack
	}
	if s.ArtistsString == "" {
		s.ArtistsString = UnknownArtist
	}
	if s.ID == "" && s.GithubURL != "" {
		s.ID = IDFromURL(s.GithubURL)
	}

	return s
}

// NormalizeAll returns a normalized copy of songs. A nil input yields an empty slice.
func NormalizeAll(songs []Song) []Song {
	out := make([]Song, 0, len(songs))
	for _, s := range songs {
		out = append(out, Normalize(s))
	}

	return out
}

// Duration parses DurationFormatted ("3:45" or "1:02:03"). Zero means unknown.
func (s Song) Duration() time.Duration {
	if s.DurationFormatted == "" {
		return 0
	}

	parts := strings.Split(s.DurationFormatted, ":")
	if len(parts) > 3 {
		return 0
	}

	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}

	return time.Duration(total) * time.Second
}

func (s Song) String() string {
	return fmt.Sprintf("%s - %s", s.ArtistsString, s.TrackName)
}

type plain Song

// UnmarshalJSON accepts both a bare song and the {"songInfo": {...}} wrapper
// some servers emit for queue entries.
func (s *Song) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		SongInfo *json.RawMessage `json:"songInfo"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if wrapped.SongInfo != nil && string(*wrapped.SongInfo) != "null" {
		return s.UnmarshalJSON(*wrapped.SongInfo)
	}

	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Song(p)

	return nil
}
