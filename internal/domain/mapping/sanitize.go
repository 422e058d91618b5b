package mapping

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"
)

// Canonical boolean values stored in local fields.
const (
	BoolTrue  = "1"
	BoolFalse = "0"
)

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Sanitize cleans raw for the given kind. It never fails; a false second
// result means the value is invalid and must be treated as absent.
func Sanitize(kind Kind, raw any) (any, bool) {
	switch kind {
	case KindText:
		s, ok := stringOf(raw)
		if !ok {
			return nil, false
		}
		return SanitizeText(s), true
	case KindRichText:
		s, ok := stringOf(raw)
		if !ok {
			return nil, false
		}
		return SanitizeRichText(s), true
	case KindEmail:
		return sanitizeEmail(raw)
	case KindURL:
		return sanitizeURL(raw)
	case KindBoolean:
		return sanitizeBoolean(raw), true
	case KindNumber:
		return SanitizeNumber(raw, NumericAuto)
	case KindDate:
		return sanitizeDate(raw)
	case KindScalar:
		return sanitizeScalar(raw)
	case KindArray:
		items, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		return normalizeValue(items), true
	case KindNested:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		return normalizeValue(obj), true
	}
	return nil, false
}

// SanitizeText strips markup and control characters, collapses whitespace
// and normalizes to NFC.
func SanitizeText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style, iframe, noscript, template").Remove()
			s = doc.Text()
		}
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

var richTextAllowed = map[atom.Atom]bool{
	atom.P: true, atom.Br: true, atom.Strong: true, atom.B: true, atom.Em: true,
	atom.I: true, atom.U: true, atom.Ul: true, atom.Ol: true, atom.Li: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.A: true, atom.Blockquote: true, atom.Span: true,
}

var richTextDropped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Iframe: true, atom.Object: true,
	atom.Embed: true, atom.Noscript: true, atom.Template: true,
}

// SanitizeRichText keeps a small formatting subset of HTML. Script-like
// elements are removed with their content and every attribute except a safe
// link href is stripped.
func SanitizeRichText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	dropped := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			out := strings.Map(func(r rune) rune {
				if r != '\n' && r != '\t' && unicode.IsControl(r) {
					return -1
				}
				return r
			}, b.String())
			return norm.NFC.String(strings.TrimSpace(out))
		case html.TextToken:
			if dropped == 0 {
				b.WriteString(html.EscapeString(string(z.Text())))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if richTextDropped[tok.DataAtom] {
				if tt == html.StartTagToken {
					dropped++
				}
				continue
			}
			if dropped > 0 || !richTextAllowed[tok.DataAtom] {
				continue
			}
			b.WriteString(openTag(tok))
		case html.EndTagToken:
			tok := z.Token()
			if richTextDropped[tok.DataAtom] {
				if dropped > 0 {
					dropped--
				}
				continue
			}
			if dropped == 0 && richTextAllowed[tok.DataAtom] && tok.DataAtom != atom.Br {
				b.WriteString("</" + tok.Data + ">")
			}
		}
	}
}

func openTag(tok html.Token) string {
	if tok.DataAtom != atom.A {
		return "<" + tok.Data + ">"
	}
	for _, attr := range tok.Attr {
		if attr.Key != "href" {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(attr.Val))
		if err != nil {
			break
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "mailto":
			return `<a href="` + html.EscapeString(u.String()) + `">`
		}
	}
	return "<a>"
}

func sanitizeEmail(raw any) (any, bool) {
	s, ok := stringOf(raw)
	if !ok {
		return nil, false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "mailto:")
	if !emailPattern.MatchString(s) {
		return nil, false
	}
	return s, true
}

func sanitizeURL(raw any) (any, bool) {
	s, ok := stringOf(raw)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return nil, false
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), true
	}
	return nil, false
}

func sanitizeBoolean(raw any) string {
	switch v := raw.(type) {
	case bool:
		if v {
			return BoolTrue
		}
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 1 {
			return BoolTrue
		}
	case float64:
		if v == 1 {
			return BoolTrue
		}
	case int:
		if v == 1 {
			return BoolTrue
		}
	case int64:
		if v == 1 {
			return BoolTrue
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return BoolTrue
		}
	}
	return BoolFalse
}

// SanitizeNumber parses raw into int64 or float64 according to sub. Thousands
// separators in strings are ignored. Non-numeric input is invalid.
func SanitizeNumber(raw any, sub Numeric) (any, bool) {
	var f float64
	var i int64
	isInt := false

	switch v := raw.(type) {
	case json.Number:
		return parseNumber(string(v), sub)
	case string:
		return parseNumber(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), sub)
	case int:
		i, isInt = int64(v), true
	case int64:
		i, isInt = v, true
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return nil, false
	}

	if isInt {
		if sub == NumericFloat {
			return float64(i), true
		}
		return i, true
	}
	return fromFloat(f, sub)
}

func parseNumber(s string, sub Numeric) (any, bool) {
	if s == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sub == NumericFloat {
			return float64(i), true
		}
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return fromFloat(f, sub)
}

const maxExactFloatInt = 1 << 53

func fromFloat(f float64, sub Numeric) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	switch sub {
	case NumericFloat:
		return f, true
	case NumericInt:
		if math.Abs(f) >= math.MaxInt64 {
			return nil, false
		}
		return int64(f), true
	}
	if f == math.Trunc(f) && math.Abs(f) < maxExactFloatInt {
		return int64(f), true
	}
	return f, true
}

func sanitizeDate(raw any) (any, bool) {
	switch v := raw.(type) {
	case json.Number:
		secs, err := v.Int64()
		if err != nil || secs <= 0 {
			return nil, false
		}
		return time.Unix(secs, 0).UTC().Format(time.RFC3339), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), true
			}
		}
	}
	return nil, false
}

func sanitizeScalar(raw any) (any, bool) {
	switch v := raw.(type) {
	case string:
		return norm.NFC.String(strings.TrimSpace(v)), true
	case bool:
		return v, true
	case json.Number, int, int64, float64, float32:
		return SanitizeNumber(v, NumericAuto)
	}
	return nil, false
}

// stringOf accepts strings and numbers; numbers are rendered in their JSON form.
func stringOf(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case json.Number:
		return string(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

// normalizeValue deep-copies a decoded JSON value, normalizing every string to NFC.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return norm.NFC.String(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[norm.NFC.String(k)] = normalizeValue(item)
		}
		return out
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return string(t)
		}
		return f
	}
	return v
}

// isEmpty reports whether a sanitized value carries no data.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
