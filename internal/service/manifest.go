package service

import (
	"path/filepath"
	"strconv"
	"strings"
)

// ConcatManifest builds an ffmpeg concat-demuxer script that shows each
// image for perSceneSec seconds, in order. The demuxer ignores the duration
// of the final entry, so the last image is listed a second time without one.
func ConcatManifest(images []string, perSceneSec float64) string {
	if len(images) == 0 {
		return ""
	}
	duration := strconv.FormatFloat(perSceneSec, 'f', -1, 64)

	var b strings.Builder
	for _, img := range images {
		b.WriteString("file " + quoteConcatPath(img) + "\n")
		b.WriteString("duration " + duration + "\n")
	}
	b.WriteString("file " + quoteConcatPath(images[len(images)-1]) + "\n")
	return b.String()
}

// quoteConcatPath renders a path the way the concat demuxer parses it:
// forward slashes, single-quoted, with embedded quotes escaped.
func quoteConcatPath(p string) string {
	p = filepath.ToSlash(p)
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}
