package shared

import (
	"net/url"
	"path/filepath"
	"strings"
)

// AudioExtensions lists the container extensions the player can decode.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".wav":  true,
}

// IsAudioFile reports whether path has a decodable audio extension.
func IsAudioFile(path string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(path))]
}

// LocalPath returns the filesystem path for a file:// URL or an absolute path.
// Remote URLs return false.
func LocalPath(source string) (string, bool) {
	if strings.HasPrefix(source, "file://") {
		u, err := url.Parse(source)
		if err != nil || u.Path == "" {
			return "", false
		}
		return filepath.FromSlash(u.Path), true
	}
	if filepath.IsAbs(source) {
		return source, true
	}
	return "", false
}

// FileURL converts a filesystem path into a file:// URL.
func FileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
