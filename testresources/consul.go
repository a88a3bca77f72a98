package testresources

import (
	"context"
	"fmt"
	"sort"
	"strings"

	consul "github.com/hashicorp/consul/api"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

const (
	consulSeedArgPrefix = "kv."

	// Consul accepts at most this many operations per transaction.
	consulMaxTxnOps = 64
)

// Consul clears a key prefix on an existing Consul agent and seeds it with values before the
// application starts. The prefix is cleared again on Close.
//
// Arguments: "address" (default from the CONSUL_HTTP_ADDR conventions), "prefix" (default
// "mainlaunch"), and any number of "kv.<key>" entries whose values are written under the prefix.
// Properties: consul.address, consul.prefix.
type Consul struct {
	address string
	prefix  string
	seed    map[string]string
	client  *consul.Client
	logger  framework.Logger
}

func (c *Consul) Init(ic resources.InitContext) error {
	c.address = ic.Arg("address", consul.DefaultConfig().Address)
	c.prefix = strings.Trim(ic.Arg("prefix", "mainlaunch"), "/")
	if c.prefix == "" {
		return fmt.Errorf("consul prefix must not be empty")
	}
	c.seed = make(map[string]string)
	for k, v := range ic.Args {
		if key, ok := strings.CutPrefix(k, consulSeedArgPrefix); ok && key != "" {
			c.seed[key] = v
		}
	}
	c.logger = framework.OrNullLogger(ic.Logger)
	return nil
}

func (c *Consul) Start(ctx context.Context) (map[string]string, error) {
	config := consul.DefaultConfig()
	config.Address = c.address
	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}
	c.client = client

	kv := client.KV()
	if _, err := kv.DeleteTree(c.prefix+"/", (&consul.WriteOptions{}).WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("failed to clear consul prefix %q: %w", c.prefix, err)
	}
	if err := c.writeSeed(ctx, kv); err != nil {
		return nil, err
	}
	return map[string]string{
		"consul.address": c.address,
		"consul.prefix":  c.prefix,
	}, nil
}

func (c *Consul) writeSeed(ctx context.Context, kv *consul.KV) error {
	if len(c.seed) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.seed))
	for k := range c.seed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make(consul.KVTxnOps, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, &consul.KVTxnOp{Verb: consul.KVSet, Key: c.prefix + "/" + k, Value: []byte(c.seed[k])})
	}
	if err := batchTxn(ctx, kv, ops); err != nil {
		return err
	}
	c.logger.Printf("Wrote %d keys under %s", len(ops), c.prefix)
	return nil
}

func batchTxn(ctx context.Context, kv *consul.KV, ops consul.KVTxnOps) error {
	for i := 0; i < len(ops); {
		j := i + consulMaxTxnOps
		if j > len(ops) {
			j = len(ops)
		}
		ok, resp, _, err := kv.Txn(ops[i:j], (&consul.QueryOptions{}).WithContext(ctx))
		if err != nil {
			return err
		}
		if !ok {
			var errs []string
			if resp != nil {
				for _, te := range resp.Errors {
					errs = append(errs, te.What)
				}
			}
			return fmt.Errorf("consul transaction failed: %s", strings.Join(errs, ", "))
		}
		i = j
	}
	return nil
}

// Handle returns the *consul.Client, or nil before Start.
func (c *Consul) Handle() any { return c.client }

func (c *Consul) Close() error {
	if c.client == nil {
		return nil
	}
	_, err := c.client.KV().DeleteTree(c.prefix+"/", nil)
	return err
}
