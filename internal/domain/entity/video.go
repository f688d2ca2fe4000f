package entity

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var ErrUnsupportedType = errors.New("unsupported video type")

// VideoType is the declared container of an upload. Only the allow-list below is accepted.
type VideoType string

const (
	VideoTypeMP4 VideoType = "mp4"
	VideoTypeAVI VideoType = "avi"
	VideoTypeMOV VideoType = "mov"
)

var contentTypes = map[VideoType]string{
	VideoTypeMP4: "video/mp4",
	VideoTypeAVI: "video/x-msvideo",
	VideoTypeMOV: "video/quicktime",
}

// ParseVideoType accepts a bare type ("mov"), an extension (".MOV") or a filename ("clip.mov").
func ParseVideoType(s string) (VideoType, error) {
	ext := strings.ToLower(strings.TrimSpace(s))
	if e := filepath.Ext(ext); e != "" {
		ext = e
	}
	vt := VideoType(strings.TrimPrefix(ext, "."))
	if !vt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
	return vt, nil
}

func (t VideoType) Valid() bool {
	_, ok := contentTypes[t]
	return ok
}

func (t VideoType) Extension() string {
	return "." + string(t)
}

func (t VideoType) ContentType() string {
	if ct, ok := contentTypes[t]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UploadedVideo is a request-scoped upload. Size is -1 when the client did not declare it.
type UploadedVideo struct {
	Filename string
	Type     VideoType
	Size     int64
	Body     io.Reader
}
