// Package redact substitutes secret input values with "***" in every
// persisted artifact: output streams, JSON documents, and event payloads.
// Redaction is a pure function of the run's secret set; the unredacted
// values never leave process memory.
package redact

import (
	"bytes"
	"io"
	"sort"

	"github.com/Jeffail/gabs/v2"
)

// Placeholder is the replacement text for secret values.
const Placeholder = "***"

// Redactor replaces exact occurrences of secret strings.
type Redactor struct {
	secrets [][]byte
	maxLen  int
}

// New builds a redactor from the literal secret values. Empty strings are
// dropped; longer secrets are replaced first so overlapping secrets do not
// leak suffixes.
func New(secrets []string) *Redactor {
	uniq := map[string]bool{}
	for _, s := range secrets {
		if s != "" {
			uniq[s] = true
		}
	}
	ordered := make([]string, 0, len(uniq))
	for s := range uniq {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	r := &Redactor{}
	for _, s := range ordered {
		r.secrets = append(r.secrets, []byte(s))
		if len(s) > r.maxLen {
			r.maxLen = len(s)
		}
	}
	return r
}

// Empty reports whether the redactor has no secrets.
func (r *Redactor) Empty() bool {
	return len(r.secrets) == 0
}

// Bytes replaces every exact secret occurrence in data.
func (r *Redactor) Bytes(data []byte) []byte {
	out := data
	for _, secret := range r.secrets {
		out = bytes.ReplaceAll(out, secret, []byte(Placeholder))
	}
	return out
}

// String replaces every exact secret occurrence in s.
func (r *Redactor) String(s string) string {
	return string(r.Bytes([]byte(s)))
}

// JSON walks a parsed JSON document and redacts it twice over: values at
// the named secret keys become "***" wherever they appear, and any string
// value containing a secret literal is replaced as a whole. The document is
// modified in place.
func (r *Redactor) JSON(doc *gabs.Container, secretKeys []string) {
	keySet := map[string]bool{}
	for _, k := range secretKeys {
		keySet[k] = true
	}
	r.redactContainer(doc, keySet)
}

func (r *Redactor) redactContainer(c *gabs.Container, secretKeys map[string]bool) {
	if children := c.ChildrenMap(); len(children) > 0 {
		for key, child := range children {
			if secretKeys[key] {
				c.Set(Placeholder, key)
				continue
			}
			if s, ok := child.Data().(string); ok {
				if r.matches(s) {
					c.Set(Placeholder, key)
				}
				continue
			}
			r.redactContainer(child, secretKeys)
		}
		return
	}
	for i, child := range c.Children() {
		if s, ok := child.Data().(string); ok {
			if r.matches(s) {
				c.SetIndex(Placeholder, i)
			}
			continue
		}
		r.redactContainer(child, secretKeys)
	}
}

func (r *Redactor) matches(s string) bool {
	for _, secret := range r.secrets {
		if bytes.Contains([]byte(s), secret) {
			return true
		}
	}
	return false
}

// Writer is an io.WriteCloser that redacts a byte stream on the way to an
// underlying writer. A tail of up to maxLen-1 bytes is held back between
// writes so secrets split across Write calls are still caught; Close
// flushes the tail.
type Writer struct {
	dst      io.Writer
	redactor *Redactor
	tail     []byte
	closer   io.Closer
}

// NewWriter wraps dst with stream redaction. If dst is also an io.Closer
// it is closed by Close.
func NewWriter(dst io.Writer, redactor *Redactor) *Writer {
	w := &Writer{dst: dst, redactor: redactor}
	if c, ok := dst.(io.Closer); ok {
		w.closer = c
	}
	return w
}

// Write redacts and forwards p. The returned count always reports p fully
// consumed on success.
func (w *Writer) Write(p []byte) (int, error) {
	if w.redactor.Empty() {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	buf := append(w.tail, p...)
	redacted := w.redactor.Bytes(buf)

	// Hold back a tail long enough to contain a partially written secret.
	hold := w.redactor.maxLen - 1
	if hold > len(redacted) {
		hold = len(redacted)
	}
	emit := redacted[:len(redacted)-hold]
	w.tail = append([]byte(nil), redacted[len(redacted)-hold:]...)

	if len(emit) > 0 {
		if _, err := w.dst.Write(emit); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes the held-back tail and closes the underlying writer when
// it is closable.
func (w *Writer) Close() error {
	if len(w.tail) > 0 {
		tail := w.redactor.Bytes(w.tail)
		w.tail = nil
		if _, err := w.dst.Write(tail); err != nil {
			if w.closer != nil {
				w.closer.Close()
			}
			return err
		}
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
