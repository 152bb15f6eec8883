package internal

import (
	"path/filepath"
	"strconv"
)

// HLSEncode describes a single ffmpeg invocation producing one rendition.
// Keeping the invocation as a value with a pure Args method keeps the
// command contract testable without running any process.
type HLSEncode struct {
	Source          string
	TargetHeight    int
	SegmentTemplate string
	Playlist        string
}

// NewHLSEncode builds the invocation for one rendition of sourcePath, with
// all output paths derived from the rendition's output directory.
func NewHLSEncode(sourcePath string, r Rendition) HLSEncode {
	outDir := HLSOutputDir(sourcePath, r.Label)
	return HLSEncode{
		Source:          sourcePath,
		TargetHeight:    r.Height,
		SegmentTemplate: filepath.Join(outDir, "segment_%03d.ts"),
		Playlist:        filepath.Join(outDir, playlistName),
	}
}

// Args returns the ffmpeg argument vector (without the binary name).
//
// The flags must stay as they are for output compatibility: H.264 at preset
// medium / CRF 23, AAC audio at 128k, 6 second VOD segments with
// independent_segments so players can seek to any segment boundary. The
// scale filter keeps aspect ratio with the width rounded to an even number,
// which libx264 requires.
func (e HLSEncode) Args() []string {
	return []string{
		"-y",
		"-i", e.Source,
		"-vf", "scale=-2:" + strconv.Itoa(e.TargetHeight),
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "hls",
		"-hls_time", "6",
		"-hls_playlist_type", "vod",
		"-hls_flags", "independent_segments",
		"-hls_segment_filename", e.SegmentTemplate,
		e.Playlist,
	}
}
