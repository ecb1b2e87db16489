package archiveserver

import (
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"himawari-desktop/internal/common"

	"github.com/go-chi/chi/v5"
)

var snapshotFilePattern = regexp.MustCompile(`^\d{12}\.jpg$`)

// handleArchiveFile serves one composed snapshot
// URL format: /himawari/{YYYYMMDD}/{YYYYMMDDHHMM}.jpg
func (s *Server) handleArchiveFile(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	file := chi.URLParam(r, "file")

	if !common.IsArchiveDay(day) || !snapshotFilePattern.MatchString(file) {
		http.Error(w, "Invalid URL format. Expected: /himawari/{YYYYMMDD}/{YYYYMMDDHHMM}.jpg", http.StatusBadRequest)
		return
	}

	path := filepath.Join(s.opts.ArchiveRoot, day, file)
	if err := validateArchivePath(s.opts.ArchiveRoot, path); err != nil {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// snapshots are never rewritten in place
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

// validateArchivePath checks that filePath stays inside the archive root
func validateArchivePath(root, filePath string) error {
	if root == "" || filePath == "" {
		return fmt.Errorf("archive root or file path is empty")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for archive root: %w", err)
	}

	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path for file: %w", err)
	}

	relPath, err := filepath.Rel(absRoot, absFilePath)
	if err != nil {
		return fmt.Errorf("failed to get relative path: %w", err)
	}

	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal attempt detected: %s is outside archive %s", filePath, root)
	}
	return nil
}
