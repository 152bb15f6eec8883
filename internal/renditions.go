package internal

// Rendition is one entry of the fixed HLS resolution ladder.
type Rendition struct {
	// Label names the rendition in output paths and URLs, e.g. "480p".
	Label string
	// Height is the target output height in pixels; width is derived by
	// the encoder to preserve aspect ratio.
	Height int
}

// Renditions is the ladder every source video is converted into. The order
// is significant: renditions are encoded first to last, and a failure stops
// the remaining entries.
var Renditions = []Rendition{
	{Label: "480p", Height: 480},
	{Label: "720p", Height: 720},
	{Label: "1080p", Height: 1080},
}

// IsAllowedResolution reports whether label names a rendition in the ladder.
func IsAllowedResolution(label string) bool {
	for _, r := range Renditions {
		if r.Label == label {
			return true
		}
	}
	return false
}
