package backend

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/kolkov/threadlocal/internal/tls/goid"
)

// Shards is the number of independently locked maps behind Sharded.
const Shards = 64

// shardedStore splits the fallback map by thread identity hash.
type shardedStore struct {
	shards [Shards]*store
}

var globalSharded = sync.OnceValue(func() *shardedStore {
	s := &shardedStore{}
	for i := range s.shards {
		s.shards[i] = newStore()
	}
	return s
})

func (s *shardedStore) shard(id goid.ID) *store {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return s.shards[xxhash.Sum64(buf[:])%Shards]
}

// Sharded is Fallback with the map split into Shards shards. Threads whose
// identities hash to different shards never contend.
//
// Like Fallback, values are never released and nested With calls on the
// same thread deadlock.
type Sharded[T any] struct {
	id     uint64
	cfg    Config[T]
	stores *shardedStore
}

// NewSharded creates a sharded backend with a fresh cell identity.
func NewSharded[T any](cfg Config[T]) *Sharded[T] {
	b := &Sharded[T]{
		id:     nextCellID.Add(1),
		cfg:    cfg,
		stores: globalSharded(),
	}
	cfg.logger().Debug("sharded backend created", slog.Uint64("cell", b.id), slog.Int("shards", Shards))
	return b
}

// Kind implements Backend.
func (b *Sharded[T]) Kind() Kind {
	return KindSharded
}

// With implements Backend. fn runs with the caller's shard locked.
func (b *Sharded[T]) With(fn func(v *T)) {
	self := goid.Current()
	b.stores.shard(self).do(self, func(own slots) {
		p, created := getOrInit(own, b.id, b.cfg.Init)
		if created {
			b.cfg.Metrics.SlotCreated(KindSharded.String())
		}
		fn(p)
	})
}

// ShardedLen reports how many threads have entries across all shards.
func ShardedLen() int {
	n := 0
	for _, s := range globalSharded().shards {
		n += s.len()
	}
	return n
}

// ClearShardedPoison clears the poison flag of every shard.
func ClearShardedPoison() {
	for _, s := range globalSharded().shards {
		s.clearPoison()
	}
}
