package blobstore

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// objectName builds a collision-resistant object name like
// audio_1724900000000_x7k2pq.mp3.
func objectName(mimeType string) string {
	return fmt.Sprintf("audio_%d_%s.%s", time.Now().UnixMilli(), randomSuffix(6), extForMime(mimeType))
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = suffixAlphabet[int(b[i])%len(suffixAlphabet)]
	}
	return string(b)
}

var mimeExtensions = map[string]string{
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/mp4":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/aac":   "aac",
	"audio/ogg":   "ogg",
	"audio/flac":  "flac",
	"audio/webm":  "webm",
}

func extForMime(mimeType string) string {
	// Parameters like "audio/ogg; codecs=opus" don't affect the extension.
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if ext, ok := mimeExtensions[mimeType]; ok {
		return ext
	}
	return "mp3"
}

// decodePayload strips any data-URI prefix and base64-decodes the payload.
func decodePayload(payload string) ([]byte, error) {
	raw := StripDataURI(payload)
	data, err := base64.StdEncoding.DecodeString(raw)
	if err == nil {
		return data, nil
	}
	// Some producers omit padding.
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
}

// StripDataURI removes an embedded "data:<mime>;base64," prefix, if present.
func StripDataURI(payload string) string {
	if !strings.HasPrefix(payload, "data:") {
		return payload
	}
	if i := strings.IndexByte(payload, ','); i >= 0 {
		return payload[i+1:]
	}
	return payload
}
