package audit

import "context"

// Meta is the request metadata stamped on every entry.
type Meta struct {
	RequestID string
	IP        string
	UserAgent string
}

type metaKey struct{}

func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func MetaFrom(ctx context.Context) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	return meta
}
