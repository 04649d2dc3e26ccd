package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

type fakeKV struct {
	data map[string]string
	err  error
	got  string
}

func (f *fakeKV) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.got = key
	if f.err != nil {
		return nil, f.err
	}
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if strings.HasPrefix(k, key) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	resp := &clientv3.GetResponse{}
	for _, k := range keys {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(f.data[k])})
	}
	resp.Count = int64(len(resp.Kvs))
	return resp, nil
}

func TestEtcdSourceLoad(t *testing.T) {
	kv := &fakeKV{data: map[string]string{
		"/adchecklist/catalog/General checks/kerberoastable-accounts": `
query: MATCH (u:User {hasspn: true}) RETURN u.name AS account
category: Kerberos
identify: [account]`,
		"/adchecklist/catalog/Owned checks/owned-to-da": `{"name": "owned-paths", "query": "MATCH (o {owned: true}) RETURN o.name AS owned"}`,
		"/adchecklist/catalog/General checks/placeholder":  `query: ""`,
		"/other/ignored": `query: MATCH (n) RETURN n`,
	}}

	defs, err := EtcdSource{KV: kv}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultEtcdPrefix, kv.got)
	require.Len(t, defs, 2)

	assert.Equal(t, "kerberoastable-accounts", defs[0].Name)
	assert.Equal(t, "General checks", defs[0].Section)
	assert.Equal(t, "Kerberos", defs[0].Category)

	assert.Equal(t, "owned-paths", defs[1].Name, "definition name wins over key")
	assert.Equal(t, "Owned checks", defs[1].Section)

	c, err := Load(context.Background(), EtcdSource{KV: kv})
	require.NoError(t, err)
	assert.Equal(t, []string{"General checks", "Owned checks"}, c.Sections())
}

func TestEtcdSourceCustomPrefix(t *testing.T) {
	kv := &fakeKV{data: map[string]string{
		"/audits/acme/q1": `query: MATCH (n) RETURN n`,
	}}

	defs, err := EtcdSource{KV: kv, Prefix: "/audits/acme"}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/audits/acme/", kv.got)
	require.Len(t, defs, 1)
	assert.Equal(t, "q1", defs[0].Name)
	assert.Empty(t, defs[0].Section)
}

func TestEtcdSourceErrors(t *testing.T) {
	_, err := EtcdSource{KV: &fakeKV{err: errors.New("connection refused")}}.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, auditerr.ErrCatalog)

	kv := &fakeKV{data: map[string]string{DefaultEtcdPrefix + "bad": "query: [unterminated"}}
	_, err = EtcdSource{KV: kv}.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse key")
}

func TestNewEtcdClientRequiresEndpoints(t *testing.T) {
	_, err := NewEtcdClient(EtcdConfig{})
	assert.Error(t, err)
}
