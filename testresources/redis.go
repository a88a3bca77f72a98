package testresources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/helpers"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

const redisPollInterval = 100 * time.Millisecond

// Redis connects to an existing Redis server and, unless the "flush" argument is false, clears
// the selected database before the application starts.
//
// Arguments: "addr" (default localhost:6379), "db" (default 0), "flush" (default true), and
// "wait", how long to keep retrying while the server is not yet reachable (default 0).
// Properties: redis.url.
type Redis struct {
	addr   string
	db     int
	flush  bool
	wait   time.Duration
	client *redis.Client
	logger framework.Logger
}

func (r *Redis) Init(ic resources.InitContext) error {
	r.addr = ic.Arg("addr", "localhost:6379")
	db, err := strconv.Atoi(ic.Arg("db", "0"))
	if err != nil {
		return fmt.Errorf("invalid redis db %q", ic.Args["db"])
	}
	r.db = db
	if r.flush, err = boolArg(ic, "flush", true); err != nil {
		return fmt.Errorf("invalid value for flush: %w", err)
	}
	if r.wait, err = time.ParseDuration(ic.Arg("wait", "0s")); err != nil {
		return fmt.Errorf("invalid value for wait: %w", err)
	}
	r.logger = framework.OrNullLogger(ic.Logger)
	return nil
}

func (r *Redis) Start(ctx context.Context) (map[string]string, error) {
	r.client = redis.NewClient(&redis.Options{
		Addr: r.addr,
		DB:   r.db,
	})
	var err error
	ping := func() bool {
		err = r.client.Ping(ctx).Err()
		return err == nil
	}
	if !ping() && (r.wait <= 0 || !helpers.PollUntil(ping, r.wait, redisPollInterval)) {
		return nil, fmt.Errorf("redis at %s is not reachable: %w", r.addr, err)
	}
	if r.flush {
		if err := r.client.FlushDB(ctx).Err(); err != nil {
			return nil, err
		}
		r.logger.Printf("Flushed redis database %d", r.db)
	}
	return map[string]string{"redis.url": r.URL()}, nil
}

// URL is the DSN the application should use.
func (r *Redis) URL() string {
	if r.db == 0 {
		return fmt.Sprintf("redis://%s", r.addr)
	}
	return fmt.Sprintf("redis://%s/%d", r.addr, r.db)
}

// Handle returns the *redis.Client, or nil before Start.
func (r *Redis) Handle() any { return r.client }

func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
