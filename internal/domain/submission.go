package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SearchItem is the desired target of a search.
type SearchItem struct {
	Track  string `json:"track"`
	Album  string `json:"album"`
	Artist string `json:"artist"`
}

// String renders the item the way peers usually name files: "track - artist - album".
func (s SearchItem) String() string {
	return s.Track + " - " + s.Artist + " - " + s.Album
}

// DownloadableFile is a candidate file offered by a remote peer.
type DownloadableFile struct {
	Filename string `json:"filename"`
	Username string `json:"username"`
	Size     uint64 `json:"size"`
}

// Submission is a (query, candidate) pair sent for judging.
type Submission struct {
	Query SearchItem       `json:"query"`
	Track DownloadableFile `json:"track"`
}

// Response is the judging result returned to the caller.
type Response struct {
	Track DownloadableFile `json:"track"`
	Score float64          `json:"score"`
}

// wire shapes use pointers so that absent fields are distinguishable from zero values.
type wireSubmission struct {
	Query *wireSearchItem `json:"query"`
	Track *wireFile       `json:"track"`
}

type wireSearchItem struct {
	Track  *string `json:"track"`
	Album  *string `json:"album"`
	Artist *string `json:"artist"`
}

type wireFile struct {
	Filename *string `json:"filename"`
	Username *string `json:"username"`
	Size     *uint64 `json:"size"`
}

// ParseSubmission validates and decodes a Submission from a JSON body.
// Both query and track must be present objects with every field set; strings may be empty.
// Unknown fields are ignored.
func ParseSubmission(body []byte) (Submission, error) {
	var w wireSubmission
	if err := json.Unmarshal(body, &w); err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrMalformedSubmission, err)
	}
	if w.Query == nil {
		return Submission{}, fmt.Errorf("%w: query is required", ErrMalformedSubmission)
	}
	if w.Track == nil {
		return Submission{}, fmt.Errorf("%w: track is required", ErrMalformedSubmission)
	}

	switch {
	case w.Query.Track == nil:
		return Submission{}, fmt.Errorf("%w: query.track is required", ErrMalformedSubmission)
	case w.Query.Album == nil:
		return Submission{}, fmt.Errorf("%w: query.album is required", ErrMalformedSubmission)
	case w.Query.Artist == nil:
		return Submission{}, fmt.Errorf("%w: query.artist is required", ErrMalformedSubmission)
	case w.Track.Filename == nil:
		return Submission{}, fmt.Errorf("%w: track.filename is required", ErrMalformedSubmission)
	case w.Track.Username == nil:
		return Submission{}, fmt.Errorf("%w: track.username is required", ErrMalformedSubmission)
	case w.Track.Size == nil:
		return Submission{}, fmt.Errorf("%w: track.size is required", ErrMalformedSubmission)
	}

	return Submission{
		Query: SearchItem{
			Track:  *w.Query.Track,
			Album:  *w.Query.Album,
			Artist: *w.Query.Artist,
		},
		Track: DownloadableFile{
			Filename: *w.Track.Filename,
			Username: *w.Track.Username,
			Size:     *w.Track.Size,
		},
	}, nil
}

// Canonical returns the canonical JSON text of the submission.
// Field order is fixed and HTML characters are not escaped.
func (s Submission) Canonical() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
