// utils/datauri.go
package utils

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeImageDataURI decodes a base64 image payload as uploaded by the admin
// panel. Accepts both a full data URI ("data:image/png;base64,....") and a
// bare base64 string (assumed PNG). Returns the raw bytes, the MIME type, and
// a file extension for archival keys.
func DecodeImageDataURI(input string) ([]byte, string, string, error) {
	contentType := "image/png"
	payload := input

	if strings.HasPrefix(input, "data:") {
		semi := strings.Index(input, ";base64,")
		if semi < 0 {
			return nil, "", "", fmt.Errorf("unsupported data URI encoding (expected base64)")
		}
		contentType = input[len("data:"):semi]
		payload = input[semi+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", "", fmt.Errorf("invalid base64 image data: %w", err)
	}
	if len(data) == 0 {
		return nil, "", "", fmt.Errorf("empty image data")
	}

	ext := ".png"
	switch contentType {
	case "image/jpeg", "image/jpg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	case "image/gif":
		ext = ".gif"
	}

	return data, contentType, ext, nil
}
