package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdougie/vibe-check/pkg/config"
)

func TestResolvePrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		baseName string
		want     string
	}{
		{
			name:     "default prefix",
			prefix:   "",
			baseName: "results",
			want:     "vibe-check/results",
		},
		{
			name:     "custom prefix",
			prefix:   "my-project/benchmarks",
			baseName: "results",
			want:     "my-project/benchmarks/results",
		},
		{
			name:     "trailing slash stripped",
			prefix:   "my-prefix/",
			baseName: "results",
			want:     "my-prefix/results",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			got := u.resolvePrefix(tt.baseName)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{
			name:       "json file",
			path:       "results/llama3_easy_20250301.json",
			wantPrefix: "application/json",
		},
		{
			name:       "no extension",
			path:       "results/Makefile",
			wantPrefix: "application/octet-stream",
		},
		{
			name:       "html file",
			path:       "results/index.html",
			wantPrefix: "text/html",
		},
		{
			name:       "txt file",
			path:       "results/notes.txt",
			wantPrefix: "text/plain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectContentType(tt.path)
			assert.Contains(t, got, tt.wantPrefix)
		})
	}
}
