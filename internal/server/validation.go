package server

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxFilenameLength   = 255
	maxResolutionLength = 1000
)

var (
	articleIDRegex    = regexp.MustCompile(`^ar-[0-9a-z]{6}$`)
	attachmentIDRegex = regexp.MustCompile(`^at-[0-9a-z]{6}$`)
	orphanIDRegex     = regexp.MustCompile(`^of-[0-9a-z]{6}$`)
)

func validateArticleID(id string) bool {
	return articleIDRegex.MatchString(id)
}

func validateAttachmentID(id string) bool {
	return attachmentIDRegex.MatchString(id)
}

func validateOrphanID(id string) bool {
	return orphanIDRegex.MatchString(id)
}

func requireArticleID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateArticleID(id) {
		return "", badRequestCode(fmt.Errorf("invalid article id"), ErrCodeInvalidID)
	}
	return id, nil
}

func requireAttachmentID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("attachment_id"))
	if !validateAttachmentID(id) {
		return "", badRequestCode(fmt.Errorf("invalid attachment_id"), ErrCodeInvalidID)
	}
	return id, nil
}

func requireOrphanID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateOrphanID(id) {
		return "", badRequestCode(fmt.Errorf("invalid orphaned file id"), ErrCodeInvalidID)
	}
	return id, nil
}

// cleanFilename reduces a client-supplied name to its last path element and
// strips control characters. Browsers on Windows send full paths.
func cleanFilename(raw string) (string, error) {
	name := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", badRequestCode(fmt.Errorf("filename is required"), ErrCodeMissingRequired)
	}
	if len(name) > maxFilenameLength {
		return "", badRequestCode(fmt.Errorf("filename too long"), ErrCodeInvalidFilename)
	}
	return name, nil
}

func normalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", badRequestCode(fmt.Errorf("invalid media type"), ErrCodeInvalidMediaType)
	}
	return strings.ToLower(strings.TrimSpace(parsed)), nil
}
