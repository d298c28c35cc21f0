/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

const defaultMaxBytes = 32 << 20

// SourceLoader reads sounds over http(s) or from the local filesystem and
// decodes them in memory.
type SourceLoader struct {
	client   *http.Client
	maxBytes int64
}

func NewSourceLoader(client *http.Client, maxBytes int64) *SourceLoader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	return &SourceLoader{
		client:   client,
		maxBytes: maxBytes,
	}
}

func (l *SourceLoader) Load(ctx context.Context, source string) (*Handle, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, err
	}

	var (
		data        []byte
		contentType string
	)

	switch u.Scheme {
	case "http", "https":
		data, contentType, err = l.fetch(ctx, source)
	case "", "file":
		data, err = l.readFile(u.Path)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	return Decode(source, contentType, data)
}

func (l *SourceLoader) fetch(ctx context.Context, source string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%s returned %s", source, resp.Status)
	}

	data, err := l.readAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return data, resp.Header.Get("Content-Type"), nil
}

func (l *SourceLoader) readFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return l.readAll(f)
}

func (l *SourceLoader) readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("sound exceeds %d bytes", l.maxBytes)
	}

	return data, nil
}

type memoryFile struct {
	*bytes.Reader
}

func (memoryFile) Close() error {
	return nil
}

// Decode picks a decoder from the source extension, falling back to the
// content type.
func Decode(source, contentType string, data []byte) (*Handle, error) {
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)

	r := memoryFile{bytes.NewReader(data)}

	switch kind := formatOf(source, contentType); kind {
	case "mp3":
		s, format, err = mp3.Decode(r)
	case "wav":
		s, format, err = wav.Decode(r)
	case "flac":
		s, format, err = flac.Decode(r)
	case "ogg":
		s, format, err = vorbis.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, source)
	}
	if err != nil {
		return nil, err
	}

	return NewHandle(source, s, format), nil
}

func formatOf(source, contentType string) string {
	p := source
	if u, err := url.Parse(source); err == nil {
		p = u.Path
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".mp3":
		return "mp3"
	case ".wav", ".wave":
		return "wav"
	case ".flac":
		return "flac"
	case ".ogg", ".oga":
		return "ogg"
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	case "audio/ogg", "audio/vorbis", "application/ogg":
		return "ogg"
	}

	return ""
}
