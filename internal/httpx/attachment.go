// SPDX-License-Identifier: AGPL-3.0-or-later
package httpx

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// AttachmentOpts describes a file download.
type AttachmentOpts struct {
	Filename    string    // name presented to the client
	ContentType string    // application/octet-stream when empty
	Size        int64     // -1 if unknown; otherwise enforced
	ModTime     time.Time // with an io.ReadSeeker, enables ServeContent
}

// WriteAttachment streams src as a download with a Content-Disposition that
// carries both an ASCII filename and an RFC 5987 UTF-8 one.
func WriteAttachment(w http.ResponseWriter, r *http.Request, src io.Reader, opts AttachmentOpts) error {
	name := sanitizeFilename(opts.Filename)
	ct := strings.TrimSpace(opts.ContentType)
	if ct == "" {
		ct = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Content-Type", ct)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, name, url.PathEscape(name)))
	h.Set("Cache-Control", "no-store")

	if rs, ok := src.(io.ReadSeeker); ok && !opts.ModTime.IsZero() {
		http.ServeContent(w, r, name, opts.ModTime, rs)
		return nil
	}

	if r.Method == http.MethodHead || src == nil {
		if opts.Size >= 0 {
			h.Set("Content-Length", strconv.FormatInt(opts.Size, 10))
		}
		w.WriteHeader(http.StatusOK)
		return nil
	}

	if opts.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(opts.Size, 10))
		lr := &io.LimitedReader{R: src, N: opts.Size}
		n, err := io.Copy(w, lr)
		if err != nil {
			return err
		}
		if n != opts.Size {
			return fmt.Errorf("mismatched content length: wrote=%d want=%d", n, opts.Size)
		}
		return nil
	}

	_, err := io.Copy(w, src)
	return err
}

// sanitizeFilename keeps letters, digits, space, dot, underscore and hyphen.
// Separators become underscores and leading dots are stripped.
func sanitizeFilename(s string) string {
	s = strings.NewReplacer("\r", "", "\n", "", "/", "_", "\\", "_").Replace(s)
	s = toASCII(strings.TrimSpace(s))

	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		switch {
		case r == ' ':
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
			continue
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
		lastSpace = false
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.ReplaceAll(out, "_.", ".")
	out = strings.TrimLeft(out, ". _-")
	out = strings.TrimRight(out, ". ")
	if len(out) > 150 {
		out = out[:150]
	}
	if out == "" {
		return "download"
	}
	return out
}

var (
	asciiMulti = map[rune]string{
		'ß': "ss", 'Æ': "AE", 'æ': "ae", 'Œ': "OE", 'œ': "oe",
		'Ø': "O", 'ø': "o", 'Ł': "L", 'ł': "l",
		'–': "-", '—': "-", '−': "-",
	}
	asciiSingle = map[rune]rune{
		'à': 'a', 'á': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
		'ç': 'c', 'č': 'c',
		'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
		'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
		'ñ': 'n',
		'ò': 'o', 'ó': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o',
		'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
		'ý': 'y', 'ÿ': 'y',
		'À': 'A', 'Á': 'A', 'Â': 'A', 'Ä': 'A', 'Ã': 'A', 'Å': 'A',
		'Ç': 'C', 'Č': 'C',
		'È': 'E', 'É': 'E', 'Ê': 'E', 'Ë': 'E',
		'Ì': 'I', 'Í': 'I', 'Î': 'I', 'Ï': 'I',
		'Ñ': 'N',
		'Ò': 'O', 'Ó': 'O', 'Ô': 'O', 'Ö': 'O', 'Õ': 'O',
		'Ù': 'U', 'Ú': 'U', 'Û': 'U', 'Ü': 'U',
		'Ý': 'Y',
	}
)

// toASCII folds common Latin diacritics and dashes; other non-ASCII runes
// are dropped.
func toASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
			continue
		}
		if rep, ok := asciiMulti[r]; ok {
			b.WriteString(rep)
			continue
		}
		if rep, ok := asciiSingle[r]; ok {
			b.WriteRune(rep)
		}
	}
	return b.String()
}
