// Package store opens failed job archives by driver name.
//
// A [Store] is an [archive.Store] that can also migrate, ping and close
// itself. [Open] picks the backend from the archive driver in the CLI
// config file:
//
//	"memory"    store/memory, process-local
//	"postgres"  store/postgres, pgx pool over the queue_failed_jobs table
//	"redis"     store/redis, msgpack hashes indexed by a sorted set
//	"pebble"    store/pebble, an embedded database directory
//
// Open runs Migrate before returning:
//
//	s, err := store.Open(ctx, "pebble", "/var/lib/ferry/failed", logger)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
package store
