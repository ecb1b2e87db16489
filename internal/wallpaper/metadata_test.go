package wallpaper

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata(t *testing.T) {
	base, err := url.Parse("https://earth.example.com/api/latest")
	require.NoError(t, err)

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "latest_url wins",
			body: `{"success":true,"latest_url":"https://cdn.example.com/a.jpg","url":"https://cdn.example.com/b.jpg"}`,
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "falls through empty keys in order",
			body: `{"latest_url":"","url":"","image":"https://cdn.example.com/c.jpg","latest":"https://cdn.example.com/d.jpg"}`,
			want: "https://cdn.example.com/c.jpg",
		},
		{
			name: "latest key",
			body: `{"latest":"https://cdn.example.com/d.jpg"}`,
			want: "https://cdn.example.com/d.jpg",
		},
		{
			name: "relative url resolves against the api",
			body: `{"url":"/himawari/20240102/202401020340.jpg"}`,
			want: "https://earth.example.com/himawari/20240102/202401020340.jpg",
		},
		{
			name: "bare json string",
			body: `"https://cdn.example.com/e.jpg"`,
			want: "https://cdn.example.com/e.jpg",
		},
		{
			name: "plain text url",
			body: "  https://cdn.example.com/f.jpg\n",
			want: "https://cdn.example.com/f.jpg",
		},
		{name: "object without known keys", body: `{"success":false,"message":"nope"}`, wantErr: true},
		{name: "key of wrong type", body: `{"latest_url":42}`, wantErr: true},
		{name: "json array", body: `["https://cdn.example.com/a.jpg"]`, wantErr: true},
		{name: "json number", body: `42`, wantErr: true},
		{name: "empty string", body: `""`, wantErr: true},
		{name: "empty body", body: "   ", wantErr: true},
		{name: "html page", body: "<html><body>maintenance</body></html>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMetadata([]byte(tt.body), base)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnrecognizedShape)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
