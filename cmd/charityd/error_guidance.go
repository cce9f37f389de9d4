package main

import (
	"context"
	"errors"
	"net"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized", "forbidden":
			lines = append(lines, "hint: verify CHARITY_API_TOKEN, CHARITY_ADMIN_TOKEN or CHARITY_ADMIN_USER/CHARITY_ADMIN_PASSWORD.")
		case "resource_exhausted":
			lines = append(lines, "hint: the server is throttling this client (busy uploads or operator lockout); retry shortly.")
		case "blob_missing":
			lines = append(lines, "hint: the attachment's content is gone; it has been registered, see: charityd orphans list")
		case "conflict":
			if apiErr.ErrorCode == scanInProgressCode {
				lines = append(lines, "hint: another reconciliation scan is running; retry when it finishes.")
			}
		}
		if !apiErr.FromServer() {
			lines = append(lines, "hint: verify CHARITY_API_URL points to a charityd server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CHARITY_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a charityd server is running at CHARITY_API_URL.",
			"hint: start local server manually with: charityd srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

// scanInProgressCode mirrors the server's numeric code for a busy scan slot.
const scanInProgressCode = 2103

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
