package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aidekit/aide-be/internal/api/storage"
)

// DecodeJobCursor parses an opaque pagination cursor back into the
// (created_at, job_id) position it encodes. An empty cursor means the
// first page.
func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	position, jobID, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, fmt.Errorf("invalid cursor format")
	}

	nanos, err := strconv.ParseInt(position, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor position: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, nanos),
		JobID:     jobID,
	}, nil
}

// EncodeJobCursor renders a page position as an opaque cursor string.
func EncodeJobCursor(cursor *storage.JobCursor) (string, error) {
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + "|" + cursor.JobID
	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}
