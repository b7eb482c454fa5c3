package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	operatorKey
	recordKey
)

type recordRef struct {
	productLine string
	id          string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithOperator tags the context with the operator role behind an admin
// request.
func WithOperator(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, operatorKey, role)
}

func OperatorFromContext(ctx context.Context) string {
	v, _ := ctx.Value(operatorKey).(string)
	return v
}

func WithRecord(ctx context.Context, productLine, id string) context.Context {
	return context.WithValue(ctx, recordKey, recordRef{productLine: productLine, id: id})
}

func RecordFromContext(ctx context.Context) (productLine string, id string) {
	v, _ := ctx.Value(recordKey).(recordRef)
	return v.productLine, v.id
}
