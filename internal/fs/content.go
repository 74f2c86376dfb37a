package fs

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const (
	sniffSampleSize          = 8192
	nonPrintableLimitPercent = 30
)

type byteOrderMark int

const (
	bomNone byteOrderMark = iota
	bomUTF8
	bomUTF16LE
	bomUTF16BE
)

// Extensions that are never worth scanning for text.
var binaryExtensions = map[string]struct{}{
	".7z": {}, ".a": {}, ".apk": {}, ".avi": {}, ".bin": {}, ".bmp": {}, ".bz2": {},
	".class": {}, ".dll": {}, ".dylib": {}, ".exe": {}, ".flac": {}, ".gif": {},
	".gz": {}, ".ico": {}, ".iso": {}, ".jar": {}, ".jpeg": {}, ".jpg": {}, ".mkv": {},
	".mov": {}, ".mp3": {}, ".mp4": {}, ".o": {}, ".ogg": {}, ".otf": {}, ".pdf": {},
	".png": {}, ".psd": {}, ".pyc": {}, ".so": {}, ".tar": {}, ".tgz": {}, ".ttf": {},
	".wasm": {}, ".wav": {}, ".webp": {}, ".woff": {}, ".woff2": {}, ".xz": {},
	".zip": {}, ".zst": {},
}

// LooksBinary reports whether content read from path should be skipped by a text
// search. data is expected to be already decoded by [DecodeText]; any NUL byte in
// the sniffed sample marks the content as binary.
func LooksBinary(path string, data []byte) bool {
	if path != "" {
		if _, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]; ok {
			return true
		}
	}
	if len(data) == 0 {
		return false
	}

	sample := data
	if len(sample) > sniffSampleSize {
		sample = sample[:sniffSampleSize]
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	if utf8.Valid(sample) {
		return false
	}

	odd := 0
	for _, b := range sample {
		if !isTextByte(b) {
			odd++
		}
	}
	return odd*100/len(sample) >= nonPrintableLimitPercent
}

// DecodeText returns data as UTF-8. A UTF-8 byte order mark is stripped and
// UTF-16 content with a BOM is transcoded; everything else is returned untouched
// without copying.
func DecodeText(data []byte) []byte {
	switch detectBOM(data) {
	case bomUTF8:
		return data[3:]
	case bomUTF16LE:
		return transcodeUTF16(data, unicode.LittleEndian)
	case bomUTF16BE:
		return transcodeUTF16(data, unicode.BigEndian)
	default:
		return data
	}
}

func transcodeUTF16(data []byte, endian unicode.Endianness) []byte {
	out, err := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

func detectBOM(data []byte) byteOrderMark {
	switch {
	case len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF:
		return bomUTF8
	case len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE:
		return bomUTF16LE
	case len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF:
		return bomUTF16BE
	}
	return bomNone
}

func isTextByte(b byte) bool {
	switch {
	case b == '\t' || b == '\n' || b == '\r' || b == 0x1B:
		return true
	case b >= 0x20 && b <= 0x7E:
		return true
	case b >= 0x80:
		return true
	}
	return false
}
