package resolver

import (
	"fmt"
	"os"

	"github.com/desertthunder/cassette/internal/shared"
	"github.com/dhowden/tag"
)

// Probe checks that a source is playable before a tier commits to it.
type Probe func(source string) error

// ProbeLocal accepts remote URLs as-is and checks that local sources exist and hold audio.
//
// A local file must be a non-empty regular file whose container is recognized either by
// its header or by its extension.
func ProbeLocal(source string) error {
	path, ok := shared.LocalPath(source)
	if !ok {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNoSource, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is not an audio file", shared.ErrNoSource, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrNoSource, err)
	}
	defer f.Close()

	if _, fileType, err := tag.Identify(f); err == nil && fileType != tag.UnknownFileType {
		return nil
	}
	if shared.IsAudioFile(path) {
		return nil
	}
	return fmt.Errorf("%w: %s", shared.ErrUnsupportedAudio, path)
}
