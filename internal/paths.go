package internal

import (
	"path/filepath"
	"strings"
)

const playlistName = "index.m3u8"

// BasePath returns the source path with its file extension stripped.
// "/media/videos/movie.mp4" becomes "/media/videos/movie".
func BasePath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
}

// HLSOutputDir returns the directory holding the HLS output for one
// rendition of the given source: "<base>_<label>".
func HLSOutputDir(sourcePath, label string) string {
	return BasePath(sourcePath) + "_" + label
}

// HLSPlaylistPath returns the playlist file inside the rendition's output
// directory.
func HLSPlaylistPath(sourcePath, label string) string {
	return filepath.Join(HLSOutputDir(sourcePath, label), playlistName)
}

// HLSSegmentPath returns the path of a named segment file inside the
// rendition's output directory. The segment name must already be validated.
func HLSSegmentPath(sourcePath, label, segment string) string {
	return filepath.Join(HLSOutputDir(sourcePath, label), segment)
}
