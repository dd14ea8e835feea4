package auth

import (
	"context"
	"errors"
)

type ctxKey int

const ctxSubject ctxKey = iota

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxSubject, subject)
}

func Subject(ctx context.Context) (string, error) {
	if s, ok := ctx.Value(ctxSubject).(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("subject not in context")
}
