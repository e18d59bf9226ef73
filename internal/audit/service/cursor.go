package service

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
)

func encodeCursor(entry *auditdomain.AuditLog) string {
	raw := entry.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + entry.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (*auditdomain.AuditCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, errors.New("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	parsedID, err := snowflake.ParseString(id)
	if err != nil || parsedID == 0 {
		return nil, errors.New("malformed cursor id")
	}
	return &auditdomain.AuditCursor{ID: parsedID, CreatedAt: ts.UTC()}, nil
}
