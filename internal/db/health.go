package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnreachable        = errors.New("database unreachable")
	ErrTimeout            = errors.New("database timeout")
	ErrSSLHandshakeFailed = errors.New("database SSL handshake failed")
)

func Healthcheck(ctx context.Context, sqlDB *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := sqlDB.PingContext(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case strings.Contains(strings.ToLower(err.Error()), "ssl"):
		return fmt.Errorf("%w: %v", ErrSSLHandshakeFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
}
