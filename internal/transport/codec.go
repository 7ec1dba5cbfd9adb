package transport

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const DefaultEncoding = "windows-1252"

// Codec converts between device bytes and text using a WHATWG encoding label.
type Codec struct {
	name string
	enc  encoding.Encoding
}

func NewCodec(label string) (*Codec, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultEncoding
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		name = label
	}
	return &Codec{name: name, enc: enc}, nil
}

func (c *Codec) Name() string { return c.name }

// Decode never fails; undecodable input is returned as is.
func (c *Codec) Decode(raw []byte) string {
	out, err := c.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func (c *Codec) Encode(text string) ([]byte, error) {
	return c.enc.NewEncoder().Bytes([]byte(text))
}
