package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

// DefaultEtcdPrefix is the key prefix catalogs are stored under.
const DefaultEtcdPrefix = "/adchecklist/catalog/"

// KV is the subset of the etcd client used to read a catalog.
// *clientv3.Client satisfies it.
type KV interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
}

// EtcdSource loads definitions stored one per key under a prefix:
//
//	/adchecklist/catalog/<section>/<name> = <YAML or JSON definition>
//
// The key segment between the prefix and the last "/" becomes the section
// unless the definition names its own. Keys are read in ascending order, which
// fixes the catalog order.
type EtcdSource struct {
	KV     KV
	Prefix string
}

// Load implements Source.
func (s EtcdSource) Load(ctx context.Context) ([]Query, error) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	resp, err := s.KV.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, auditerr.Catalog("catalog.EtcdSource", fmt.Errorf("read prefix %s: %w", prefix, err))
	}

	defs := make([]Query, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		var q Query
		if err := yaml.Unmarshal(kv.Value, &q); err != nil {
			return nil, auditerr.Catalog("catalog.EtcdSource", fmt.Errorf("parse key %s: %w", key, err))
		}
		if strings.TrimSpace(q.Cypher) == "" {
			continue
		}

		rel := strings.TrimPrefix(key, prefix)
		if q.Section == "" {
			if i := strings.LastIndex(rel, "/"); i > 0 {
				q.Section = rel[:i]
			}
		}
		if q.Name == "" {
			q.Name = rel[strings.LastIndex(rel, "/")+1:]
		}
		defs = append(defs, q)
	}
	return defs, nil
}

// EtcdConfig configures the etcd connection used by EtcdSource.
type EtcdConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	DialTimeout time.Duration
}

// NewEtcdClient connects to etcd. The caller closes the returned client.
func NewEtcdClient(cfg EtcdConfig) (*clientv3.Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints cannot be empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return cli, nil
}
