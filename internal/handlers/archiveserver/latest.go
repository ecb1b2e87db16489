package archiveserver

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"himawari-desktop/internal/common"

	"github.com/goccy/go-json"
	"github.com/jellydator/ttlcache/v3"
)

// ErrNoSnapshot is returned when the archive holds no composed snapshot
var ErrNoSnapshot = errors.New("no snapshot in archive")

const notFoundMessage = "Latest image not found in the expected directory structure."

// Latest locates the newest snapshot in the archive
type Latest struct {
	Day      string
	Filename string
}

// RelativeURL returns the path the snapshot is served under
func (l Latest) RelativeURL() string {
	return "himawari/" + l.Day + "/" + l.Filename
}

// LatestResponse is the body of GET /api/latest
type LatestResponse struct {
	Success   bool    `json:"success"`
	Timestamp int64   `json:"timestamp"`
	LatestURL string  `json:"latest_url"`
	Filename  *string `json:"filename"`
	Message   string  `json:"message,omitempty"`
}

// FindLatest scans day directories newest first and returns the newest .jpg of the
// first one that has any. Names sort chronologically, so no file metadata is read.
func FindLatest(root string) (Latest, error) {
	days, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Latest{}, ErrNoSnapshot
		}
		return Latest{}, err
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Name() > days[j].Name() })

	for _, day := range days {
		if !day.IsDir() || !common.IsArchiveDay(day.Name()) {
			continue
		}

		files, err := os.ReadDir(filepath.Join(root, day.Name()))
		if err != nil {
			continue
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Name() > files[j].Name() })

		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".jpg" {
				continue
			}
			return Latest{Day: day.Name(), Filename: name}, nil
		}
	}
	return Latest{}, ErrNoSnapshot
}

// lookupLatest memoises successful lookups for LatestTTL. A memoised snapshot whose
// file is gone (expired day) is dropped and the archive rescanned.
func (s *Server) lookupLatest() (Latest, error) {
	if item := s.latest.Get(latestKey); item != nil {
		cached := item.Value()
		if _, err := os.Stat(filepath.Join(s.opts.ArchiveRoot, cached.Day, cached.Filename)); err == nil {
			return cached, nil
		}
		s.latest.Delete(latestKey)
	}

	latest, err := FindLatest(s.opts.ArchiveRoot)
	if err != nil {
		return Latest{}, err
	}
	s.latest.Set(latestKey, latest, ttlcache.DefaultTTL)
	return latest, nil
}

// InvalidateLatest forgets the memoised lookup, e.g. right after a snapshot is composed
func (s *Server) InvalidateLatest() {
	s.latest.Delete(latestKey)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	resp := LatestResponse{Timestamp: s.opts.Clock().Unix()}
	status := http.StatusOK

	latest, err := s.lookupLatest()
	switch {
	case err == nil:
		resp.Success = true
		resp.LatestURL = s.opts.BaseURL + latest.RelativeURL()
		resp.Filename = &latest.Filename
	case errors.Is(err, ErrNoSnapshot):
		status = http.StatusNotFound
		resp.Message = notFoundMessage
	default:
		s.log.Warn().Err(err).Msg("failed to scan archive")
		status = http.StatusInternalServerError
		resp.Message = "Failed to read the archive."
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
