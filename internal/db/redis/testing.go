package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps a pre-built rueidis client (usually a mock).
func NewStoreForTest(client rueidis.Client) *Store {
	return &Store{client: client}
}
