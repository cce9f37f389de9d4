package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
	"github.com/EhsanAmini770/charity-info-sub000/internal/format"
	"github.com/EhsanAmini770/charity-info-sub000/internal/models"
)

var (
	outputFormatter format.Formatter
	stdout          io.Writer = os.Stdout
	now                       = time.Now
)

// emit writes payload with the structured formatter, or runs plain otherwise.
func emit(out *outputOptions, payload any, plain func() error) error {
	if out != nil && out.structured() && outputFormatter != nil {
		return outputFormatter.Write(stdout, payload)
	}
	return plain()
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
}

func writeAttachmentDetail(a models.Attachment) error {
	lines := []string{
		fmt.Sprintf("id: %s", a.ID),
		fmt.Sprintf("article_id: %s", a.ArticleID),
		fmt.Sprintf("filename: %s", a.Filename),
		fmt.Sprintf("mime_type: %s", a.MimeType),
		fmt.Sprintf("size: %s (%d bytes)", humanBytes(a.Size), a.Size),
		fmt.Sprintf("backend: %s", a.Backend),
		fmt.Sprintf("created_at: %s (%s)", formatTime(a.CreatedAt), humanAge(a.CreatedAt)),
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeAttachmentTable(items []models.Attachment) error {
	if len(items) == 0 {
		return writePlain("no attachments\n")
	}
	tw := newTable()
	fmt.Fprintln(tw, "ID\tFILENAME\tTYPE\tSIZE\tBACKEND\tCREATED")
	for _, a := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.Filename, a.MimeType, humanBytes(a.Size), a.Backend, humanAge(a.CreatedAt))
	}
	return tw.Flush()
}

func writeOrphanTable(resp api.OrphanListResponse) error {
	if len(resp.Items) == 0 {
		return writePlain("no orphaned files\n")
	}
	tw := newTable()
	fmt.Fprintln(tw, "ID\tKIND\tFILE\tBACKEND\tSTATUS\tDETECTED")
	for _, entry := range resp.Items {
		status := "open"
		if entry.Resolved {
			status = "resolved"
			if resolution, ok := entry.Metadata["resolution"].(string); ok && resolution != "" {
				status += " (" + resolution + ")"
			}
		} else if attempts, ok := entry.Metadata["attempts"].(float64); ok && attempts > 0 {
			status = fmt.Sprintf("failing x%d", int(attempts))
		}
		backend := string(entry.StorageType)
		if backend == "" {
			backend = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", entry.ID, entry.Kind, entry.FileID, backend, status, humanAge(entry.CreatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writePlain("page %d of %d (%d total)\n", resp.Page, max(resp.Pages, 1), resp.Total)
}

func writeScanSummary(resp api.ScanResponse) error {
	lines := []string{
		fmt.Sprintf("checked: %d records, %d blobs, %d list entries", resp.RecordsChecked, resp.BlobsChecked, resp.ListEntriesChecked),
	}
	kinds := make([]string, 0, len(resp.Found))
	for kind := range resp.Found {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		lines = append(lines, fmt.Sprintf("  %s: %d", kind, resp.Found[kind]))
	}
	lines = append(lines,
		fmt.Sprintf("newly registered: %d", resp.Registered),
		fmt.Sprintf("probe errors: %d", resp.Errors),
	)
	if len(resp.SkippedBackends) > 0 {
		lines = append(lines, fmt.Sprintf("skipped backends: %s", strings.Join(resp.SkippedBackends, ", ")))
	}
	lines = append(lines, fmt.Sprintf("took: %s", time.Duration(resp.DurationMS)*time.Millisecond))
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeProcessSummary(resp api.ProcessResponse) error {
	return writePlain("processed %d: %d healed, %d failed, %s reclaimed\n",
		resp.Processed, resp.Succeeded, resp.Failed, humanBytes(resp.ReclaimedBytes))
}

func humanBytes(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}

func humanAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now(), "ago", "from now")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
