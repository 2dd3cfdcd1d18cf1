// Package encoding detects the text encoding of input files and converts them
// to UTF-8.
package encoding

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"latex-mathedit/internal/logger"
	"latex-mathedit/internal/types"
)

// Encoding 输入文件编码
type Encoding string

const (
	UTF8    Encoding = "UTF-8"
	UTF8BOM Encoding = "UTF-8-BOM"
	UTF16LE Encoding = "UTF-16LE"
	UTF16BE Encoding = "UTF-16BE"
	GBK     Encoding = "GBK"
	Unknown Encoding = "UNKNOWN"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Detect guesses the encoding of data. BOMs win, then UTF-8 validity, then
// a clean GBK decode.
func Detect(data []byte) Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return UTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return UTF16LE
	case bytes.HasPrefix(data, bomUTF16BE):
		return UTF16BE
	case utf8.Valid(data):
		return UTF8
	}
	if _, err := decodeGBK(data); err == nil {
		return GBK
	}
	return Unknown
}

// Decode converts data to a UTF-8 string and reports the detected encoding.
func Decode(data []byte) (string, Encoding, error) {
	enc := Detect(data)
	var (
		out []byte
		err error
	)
	switch enc {
	case UTF8:
		out = data
	case UTF8BOM:
		out = data[len(bomUTF8):]
	case UTF16LE:
		out, err = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case UTF16BE:
		out, err = unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder().Bytes(data)
	case GBK:
		out, err = decodeGBK(data)
	default:
		return "", enc, types.NewAppError(types.ErrInvalidInput, "unsupported text encoding", nil)
	}
	if err != nil {
		return "", enc, types.NewAppError(types.ErrInvalidInput,
			fmt.Sprintf("failed to decode %s input", enc), err)
	}
	if enc != UTF8 {
		logger.Debug("converted input to UTF-8", logger.String("from", string(enc)))
	}
	return string(out), enc, nil
}

// ReadFile reads path and decodes it with Decode.
func ReadFile(path string) (string, Encoding, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", Unknown, fmt.Errorf("failed to read file: %w", err)
	}
	text, enc, err := Decode(data)
	if err != nil {
		logger.Warn("could not decode input file", logger.String("path", path), logger.Err(err))
		return "", enc, err
	}
	return text, enc, nil
}

func decodeGBK(data []byte) ([]byte, error) {
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data)
	if err != nil {
		return nil, err
	}
	// The decoder substitutes U+FFFD for bytes it cannot map.
	if strings.ContainsRune(string(decoded), utf8.RuneError) {
		return nil, fmt.Errorf("input is not valid GBK")
	}
	return decoded, nil
}
