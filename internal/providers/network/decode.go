package network

import (
	"bytes"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// DecodeBody converts a response body to a JSON value when it parses as
// JSON, otherwise to a UTF-8 string.
func DecodeBody(body []byte, contentType string) any {
	text := ToUTF8(body, contentType)

	trimmed := strings.TrimSpace(text)
	if looksLikeJSON(trimmed, contentType) {
		var v any
		if err := sonic.UnmarshalString(trimmed, &v); err == nil {
			return v
		}
	}
	return text
}

// ToUTF8 transcodes body using the declared charset, falling back to
// statistical detection for undeclared non-UTF-8 bodies (GBK is common).
func ToUTF8(body []byte, contentType string) string {
	label := declaredCharset(contentType)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		if utf8.Valid(body) {
			return string(body)
		}
		label = ""
	}

	if label == "" {
		res, err := chardet.NewTextDetector().DetectBest(body)
		if err != nil || res == nil {
			return string(body)
		}
		label = res.Charset
		if alias, ok := chardetAliases[label]; ok {
			label = alias
		}
	}

	enc, _ := charset.Lookup(label)
	if enc == nil {
		return string(body)
	}
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), enc.NewDecoder()))
	if err != nil {
		return string(body)
	}
	return string(out)
}

// chardet names that the WHATWG label index spells differently
var chardetAliases = map[string]string{
	"GB-18030":    "gb18030",
	"ISO-2022-JP": "iso-2022-jp",
	"Shift_JIS":   "shift_jis",
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func looksLikeJSON(s, contentType string) bool {
	if s == "" {
		return false
	}
	if strings.Contains(contentType, "json") {
		return true
	}
	return s[0] == '{' || s[0] == '['
}
