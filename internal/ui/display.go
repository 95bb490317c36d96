// Package ui formats drive items, upload sessions and token status for the
// terminal, and provides the transfer progress bar.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/onedrive-personal/internal/session"
	"github.com/tonimelisma/onedrive-personal/internal/tokenstore"
	"github.com/tonimelisma/onedrive-personal/pkg/onedrive"
)

// Success prints a confirmation line.
func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

// FormatBytes renders a size with IEC units, e.g. "1.5 MiB".
func FormatBytes(b int64) string {
	if b < 0 {
		return fmt.Sprintf("%d B", b)
	}
	return humanize.IBytes(uint64(b))
}

func itemType(item onedrive.DriveItem) string {
	switch item.(type) {
	case *onedrive.Folder:
		return "Folder"
	case *onedrive.File:
		return "File"
	default:
		return "Unknown"
	}
}

// DisplayDriveItems prints a table of items with name, size and type.
func DisplayDriveItems(w io.Writer, items []onedrive.DriveItem, title string) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items found in this location.")
		return
	}

	fmt.Fprintln(w, title)
	fmt.Fprintf(w, "%-50s %12s %-6s %s\n", "Name", "Size", "Type", "ID")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, item := range items {
		info := item.ItemInfo()
		fmt.Fprintf(w, "%-50.50s %12s %-6s %s\n", info.Name, FormatBytes(info.Size), itemType(item), info.ID)
	}
}

// DisplayDriveItem prints the metadata of one item.
func DisplayDriveItem(w io.Writer, item onedrive.DriveItem) {
	info := item.ItemInfo()
	fmt.Fprintln(w, "Item Metadata:")
	fmt.Fprintf(w, "  Name:             %s\n", info.Name)
	fmt.Fprintf(w, "  ID:               %s\n", info.ID)
	fmt.Fprintf(w, "  Size:             %s (%d bytes)\n", FormatBytes(info.Size), info.Size)
	if !info.CreatedDateTime.IsZero() {
		fmt.Fprintf(w, "  Created:          %s\n", info.CreatedDateTime.Local().Format(time.RFC1123))
	}
	if !info.LastModifiedDateTime.IsZero() {
		fmt.Fprintf(w, "  Last Modified:    %s\n", info.LastModifiedDateTime.Local().Format(time.RFC1123))
	}
	if info.Description != "" {
		fmt.Fprintf(w, "  Description:      %s\n", info.Description)
	}
	if info.ParentReference != nil && info.ParentReference.Path != "" {
		fmt.Fprintf(w, "  Parent:           %s\n", info.ParentReference.Path)
	}
	if info.CreatedBy != nil && info.CreatedBy.User != nil {
		fmt.Fprintf(w, "  Created By:       %s\n", info.CreatedBy.User.DisplayName)
	}
	if info.WebURL != "" {
		fmt.Fprintf(w, "  Web URL:          %s\n", info.WebURL)
	}

	switch it := item.(type) {
	case *onedrive.Folder:
		fmt.Fprintf(w, "  Type:             Folder\n")
		fmt.Fprintf(w, "  Child Count:      %d\n", it.ChildCount)
	case *onedrive.File:
		fmt.Fprintf(w, "  Type:             File\n")
		if it.MimeType != "" {
			fmt.Fprintf(w, "  MIME Type:        %s\n", it.MimeType)
		}
		if it.Hashes.QuickXorHash != "" {
			fmt.Fprintf(w, "  QuickXorHash:     %s\n", it.Hashes.QuickXorHash)
		}
		if it.Hashes.SHA256Hash != "" {
			fmt.Fprintf(w, "  SHA256:           %s\n", it.Hashes.SHA256Hash)
		}
	}
}

// DisplayUploadStatus prints the server side view of an upload session.
func DisplayUploadStatus(w io.Writer, state *session.State, status *onedrive.UploadSession, now time.Time) {
	fmt.Fprintf(w, "Upload of %s to %s\n", state.LocalPath, state.RemotePath)
	fmt.Fprintf(w, "  Size:             %s\n", FormatBytes(state.Size))
	if !status.ExpirationDateTime.IsZero() {
		fmt.Fprintf(w, "  Expires:          %s (%s)\n",
			status.ExpirationDateTime.Local().Format(time.RFC1123),
			humanize.RelTime(status.ExpirationDateTime, now, "ago", "from now"))
	}
	if len(status.NextExpectedRanges) == 0 {
		fmt.Fprintln(w, "  Next Expected:    (all bytes received)")
		return
	}
	fmt.Fprintf(w, "  Next Expected:    %s\n", strings.Join(status.NextExpectedRanges, ", "))
}

// DisplaySessions lists saved upload sessions.
func DisplaySessions(w io.Writer, states []*session.State, now time.Time) {
	if len(states) == 0 {
		fmt.Fprintln(w, "No pending uploads.")
		return
	}
	fmt.Fprintf(w, "Pending uploads (%d):\n", len(states))
	for _, s := range states {
		fmt.Fprintf(w, "%s\n", s.LocalPath)
		fmt.Fprintf(w, "  Remote:           %s\n", s.RemotePath)
		fmt.Fprintf(w, "  Size:             %s\n", FormatBytes(s.Size))
		fmt.Fprintf(w, "  Expires:          %s\n", humanize.RelTime(s.Session.ExpirationDateTime, now, "ago", "from now"))
	}
}

// DisplayTokenStatus prints what the stored token contains, never its values.
func DisplayTokenStatus(w io.Writer, path string, st tokenstore.Status, now time.Time) {
	fmt.Fprintf(w, "Token file:         %s\n", path)
	fmt.Fprintf(w, "  Access token:     %s\n", yesNo(st.HasAccessToken))
	fmt.Fprintf(w, "  Refresh token:    %s\n", yesNo(st.HasRefreshToken))
	switch {
	case st.Expiry.IsZero():
		fmt.Fprintln(w, "  Expires:          unknown")
	case st.Expired(now):
		fmt.Fprintf(w, "  Expires:          expired %s\n", humanize.RelTime(st.Expiry, now, "ago", "from now"))
	default:
		fmt.Fprintf(w, "  Expires:          %s\n", humanize.RelTime(st.Expiry, now, "ago", "from now"))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
