// Package subtitles classifies Chinese subtitle files as simplified,
// traditional, or unspecified. The variant becomes a language tag in the
// renamed filename ("chs", "cht", "chi").
package subtitles

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Variant is the detected Chinese subtitle flavor.
type Variant string

const (
	// Simplified Chinese.
	VariantCHS Variant = "chs"
	// Traditional Chinese.
	VariantCHT Variant = "cht"
	// Chinese, flavor unknown.
	VariantCHI Variant = "chi"
)

// DotSuffix returns the filename tag for the variant, e.g. ".chs".
func (v Variant) DotSuffix() string { return "." + string(v) }

const maxProbeBytes = 64 * 1024

var simplifiedTokens = []string{"chs", "hans", "zh-hans", "zh_cn", "zh-cn", "gb"}
var traditionalTokens = []string{"cht", "hant", "zh-hant", "zh_tw", "zh-tw", "big5"}
var simplifiedWords = []string{"简体", "简中"}
var traditionalWords = []string{"繁体", "繁中"}

// High-frequency characters that differ between simplified and traditional
// Chinese, weighted toward dialogue-heavy content.
var simplifiedChars = charSet(
	"为国云马门见车长乐书这爱气网与万广后台里发复钟东" +
		"说时来会过对话听开头觉点样经认关现离让给请学问" +
		"还没虽该谁写买卖读语词饭馆银钱")

var traditionalChars = charSet(
	"為國雲馬門見車長樂書這愛氣網與萬廣後臺裡發復鐘東" +
		"說時來會過對話聽開頭覺點樣經認關現離讓給請學問" +
		"還沒雖該誰寫買賣讀語詞飯館銀錢")

func charSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, utf8.RuneCountInString(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

// DetectVariant classifies the subtitle file at path. Filename tokens win
// over content; ".sup" image subtitles that carry no filename hint fall back
// to the generic variant; otherwise the first 64 KiB of decoded text is
// scored by character frequency.
func DetectVariant(path string) (Variant, error) {
	if v, ok := DetectVariantFromFilename(filepath.Base(path)); ok {
		return v, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".sup") {
		return VariantCHI, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxProbeBytes))
	if err != nil {
		return "", err
	}

	if v, ok := DetectVariantFromText(decodeSubtitleBytes(data)); ok {
		return v, nil
	}
	return VariantCHI, nil
}

// DetectVariantFromFilename looks for explicit language markers in the
// filename. ASCII tokens match only at non-alphanumeric boundaries so that
// "chs" in "matches" does not count.
func DetectVariantFromFilename(filename string) (Variant, bool) {
	lower := strings.ToLower(filename)
	for _, token := range simplifiedTokens {
		if containsToken(lower, token) {
			return VariantCHS, true
		}
	}
	for _, word := range simplifiedWords {
		if strings.Contains(filename, word) {
			return VariantCHS, true
		}
	}
	for _, token := range traditionalTokens {
		if containsToken(lower, token) {
			return VariantCHT, true
		}
	}
	for _, word := range traditionalWords {
		if strings.Contains(filename, word) {
			return VariantCHT, true
		}
	}
	return "", false
}

func containsToken(lower, token string) bool {
	for start := 0; ; {
		idx := strings.Index(lower[start:], token)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(token)
		if !alnumAt(lower, idx-1) && !alnumAt(lower, end) {
			return true
		}
		start = idx + 1
	}
}

func alnumAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	c := s[i]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// DetectVariantFromText scores the text by counting characters that exist in
// exactly one of the two scripts. A tie means no verdict.
func DetectVariantFromText(text string) (Variant, bool) {
	var simplified, traditional int
	for _, r := range text {
		if _, ok := simplifiedChars[r]; ok {
			simplified++
		}
		if _, ok := traditionalChars[r]; ok {
			traditional++
		}
	}
	switch {
	case simplified > traditional:
		return VariantCHS, true
	case traditional > simplified:
		return VariantCHT, true
	default:
		return "", false
	}
}

var utf16BOMLE = []byte{0xff, 0xfe}
var utf16BOMBE = []byte{0xfe, 0xff}
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// decodeSubtitleBytes turns raw subtitle bytes into text. BOMs pick the
// UTF codec; otherwise valid UTF-8 passes through and anything else is
// treated as GB18030.
func decodeSubtitleBytes(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return string(data[len(utf8BOM):])
	case bytes.HasPrefix(data, utf16BOMLE):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data)
	case bytes.HasPrefix(data, utf16BOMBE):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data)
	}
	if utf8.Valid(data) {
		return string(data)
	}
	if text := decodeWith(simplifiedchinese.GB18030, data); text != "" {
		return text
	}
	return string(bytes.ToValidUTF8(data, nil))
}

func decodeWith(enc encoding.Encoding, data []byte) string {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return string(out)
}
