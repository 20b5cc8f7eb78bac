package ports

import "context"

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
}

// IdempotencyStore ensures checkouts can be retried safely. Keys are scoped
// per caller so two customers never share a replay. The first saved
// response for a key wins.
type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string) (*StoredResponse, error)
	Save(ctx context.Context, scope, key string, response StoredResponse) error
}
