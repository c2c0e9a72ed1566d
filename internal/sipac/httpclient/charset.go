package httpclient

import (
	"fmt"
	"mime"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is the charset the portal serves its pages in.
const DefaultCharset = "iso-8859-1"

// Decoder turns raw response bytes into text. The portal serves Latin-1 pages, response
// bodies must never be interpreted as utf-8 without going through a Decoder.
type Decoder struct {
	name     string
	encoding encoding.Encoding
}

// NewDecoder resolves a charset label (ex. "iso-8859-1", "utf-8") using the WHATWG
// encoding index, an empty label means "iso-8859-1".
func NewDecoder(charset string) (Decoder, error) {
	if charset == "" {
		charset = DefaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return Decoder{}, fmt.Errorf("unknown charset %q: %w", charset, err)
	}
	return Decoder{name: charset, encoding: enc}, nil
}

func (d Decoder) Name() string {
	return d.name
}

func (d Decoder) Decode(body []byte) (string, error) {
	decoded, err := d.encoding.NewDecoder().Bytes(body)
	if err != nil {
		return "", fmt.Errorf("decode %s body: %w", d.name, err)
	}
	return string(decoded), nil
}

// DecodeResponse decodes a body with the charset named by its Content-Type header, the
// decoder's own charset is used when the header names none or an unknown one.
func (d Decoder) DecodeResponse(contentType string, body []byte) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err == nil {
		enc, name := charset.Lookup(params["charset"])
		if enc != nil {
			return Decoder{name: name, encoding: enc}.Decode(body)
		}
	}
	return d.Decode(body)
}
