package strategy

import "errors"

// ErrNoShards indicates that no shards were provided for routing.
var ErrNoShards = errors.New("no shards available for routing")
