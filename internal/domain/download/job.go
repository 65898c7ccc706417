package download

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrNotFound     = errors.New("download not found")
	ErrInvalidInput = errors.New("invalid download")
)

// Status is a job's position in the queue
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Job is one persisted transfer. Field names follow the table columns.
type Job struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Singer         string    `json:"singer"`
	Source         string    `json:"source"`
	MusicID        string    `json:"music_id"`
	Quality        string    `json:"quality"`
	URL            string    `json:"url"`
	FilePath       string    `json:"file_path"`
	FileSize       int64     `json:"file_size"`
	DownloadedSize int64     `json:"downloaded_size"`
	Status         Status    `json:"status"`
	Progress       float64   `json:"progress"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"create_time"`
	UpdatedAt      time.Time `json:"update_time"`
}

// AddInput describes a track to download
type AddInput struct {
	Name    string `json:"name"`
	Singer  string `json:"singer"`
	Source  string `json:"source"`
	MusicID string `json:"musicId"`
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

func (in *AddInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	if in.Name == "" || in.URL == "" {
		return ErrInvalidInput
	}
	if in.Singer == "" {
		in.Singer = "Unknown"
	}
	if in.Source == "" {
		in.Source = "unknown"
	}
	if in.Quality == "" {
		in.Quality = "128k"
	}
	return nil
}

// AddResult is returned when a job is queued
type AddResult struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Status   Status `json:"status"`
}

// ListResult is one page of jobs, newest first
type ListResult struct {
	List  []Job `json:"list"`
	Total int   `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// Summary counts jobs per status
type Summary struct {
	Total       int   `json:"total"`
	Pending     int   `json:"pending"`
	Downloading int   `json:"downloading"`
	Completed   int   `json:"completed"`
	Failed      int   `json:"failed"`
	TotalSize   int64 `json:"totalSize"`
}

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	spaces      = regexp.MustCompile(`\s+`)
	urlExt      = regexp.MustCompile(`(?i)\.([a-z0-9]+)(?:[?#]|$)`)
)

const (
	maxFileName = 255
	defaultExt  = "mp3"
)

// SanitizeFileName makes name safe on common filesystems
func SanitizeFileName(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(spaces.ReplaceAllString(name, " "))
	for len(name) > maxFileName {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// extensionFromURL returns the URL's file extension, or "" when it has none
func extensionFromURL(rawURL string) string {
	m := urlExt.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

func fileName(singer, name, ext string) string {
	return SanitizeFileName(singer + " - " + name + "." + ext)
}
