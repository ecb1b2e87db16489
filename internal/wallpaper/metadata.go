package wallpaper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
)

var (
	// ErrUnrecognizedShape is returned when the metadata body names no image URL
	ErrUnrecognizedShape = errors.New("unrecognized metadata shape")
	// ErrMetadataStatus is returned for a non-2xx metadata response
	ErrMetadataStatus = errors.New("metadata request failed")
)

// maxMetadataBytes bounds the metadata body; a real response is a few hundred bytes
const maxMetadataBytes = 64 << 10

// Metadata is the accepted JSON object shape. The first non-empty field in
// declaration order names the image.
type Metadata struct {
	LatestURL string `json:"latest_url"`
	URL       string `json:"url"`
	Image     string `json:"image"`
	Latest    string `json:"latest"`
}

// ImageURL returns the first non-empty candidate
func (m Metadata) ImageURL() string {
	for _, candidate := range []string{m.LatestURL, m.URL, m.Image, m.Latest} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// ParseMetadata extracts the image URL from a metadata body. Accepted shapes are a
// JSON object (see Metadata), a bare JSON string, or a plain-text absolute URL.
// Relative URLs are resolved against base.
func ParseMetadata(body []byte, base *url.URL) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty body", ErrUnrecognizedShape)
	}

	var candidate string
	switch {
	case body[0] == '{':
		var m Metadata
		if err := json.Unmarshal(body, &m); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		candidate = m.ImageURL()
	case body[0] == '"':
		if err := json.Unmarshal(body, &candidate); err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
	case json.Valid(body):
		return "", fmt.Errorf("%w: unexpected JSON value", ErrUnrecognizedShape)
	default:
		u, err := url.Parse(string(body))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("%w: plain text is not an absolute URL", ErrUnrecognizedShape)
		}
		return u.String(), nil
	}

	if candidate == "" {
		return "", fmt.Errorf("%w: no image URL field", ErrUnrecognizedShape)
	}
	ref, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String(), nil
}

// ResolveImageURL fetches the metadata endpoint and returns the image URL it names
func (c *Client) ResolveImageURL(ctx context.Context) (string, error) {
	base, err := url.Parse(c.apiURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse metadata URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w with status: %d", ErrMetadataStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read metadata: %w", err)
	}

	return ParseMetadata(body, base)
}
