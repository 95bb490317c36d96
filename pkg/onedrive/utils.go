package onedrive

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// closeBodySafely closes an HTTP response body and logs any error.
// This is intended for use in defer statements where error handling is not critical.
func closeBodySafely(body io.Closer, logger *slog.Logger, operation string) {
	if err := body.Close(); err != nil {
		logger.Warn("failed to close body",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
	}
}

// parseRangeStart returns the first byte of a nextExpectedRanges entry such
// as "26-" or "0-1023".
func parseRangeStart(r string) (int64, error) {
	startStr, _, _ := strings.Cut(r, "-")
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, fmt.Errorf("%w: malformed range %q", ErrDecodingFailed, r)
	}
	return start, nil
}
