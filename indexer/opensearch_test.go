// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package indexer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"zipfinder/awsconf"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSearchBulkWithoutProductHeader(t *testing.T) {
	node := newFakeESNode("")
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	backend, err := NewOpenSearchBackend(
		context.Background(), &Conf{Type: BackendOpenSearch, Addresses: []string{srv.URL}})
	require.NoError(t, err)

	res, err := backend.Bulk(context.Background(), "address-to-zip", []BulkItem{
		{ID: "a", Doc: testRecord("6100001", "12", "A", "Tel Aviv", "Herzl")},
		{ID: "b", Doc: testRecord("6100002", "14", "", "Tel Aviv", "Herzl")},
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, res.NumIndexed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b", res.Failures[0].ID)

	assert.NoError(t, backend.Ping(context.Background()))
	count, err := backend.Count(context.Background(), "address-to-zip")
	assert.NoError(t, err)
	assert.Equal(t, 42, count)
}

func TestElasticClientRejectsNodeWithoutProductHeader(t *testing.T) {
	node := newFakeESNode("")
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	backend, err := NewElasticBackend(&Conf{Type: BackendElastic, Addresses: []string{srv.URL}})
	require.NoError(t, err)
	_, err = backend.Bulk(context.Background(), "address-to-zip", []BulkItem{
		{ID: "a", Doc: testRecord("6100001", "12", "A", "Tel Aviv", "Herzl")},
	})
	assert.Error(t, err)
}

type signedRequestLog struct {
	mu      sync.Mutex
	auth    []string
	payload []string
}

func (l *signedRequestLog) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	body, _ := io.ReadAll(req.Body)
	l.auth = append(l.auth, req.Header.Get("Authorization"))
	l.payload = append(l.payload, string(body))
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"count":7}`)
}

func TestOpenSearchSigV4SignsRequests(t *testing.T) {
	reqLog := &signedRequestLog{}
	srv := httptest.NewServer(reqLog)
	t.Cleanup(srv.Close)
	rt := &sigV4Transport{
		next:   http.DefaultTransport,
		signer: v4.NewSigner(),
		credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"}, nil
		}),
		region:  "il-central-1",
		service: "es",
		now: func() time.Time {
			return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		},
	}
	backend, err := newOpenSearchBackend(
		&Conf{Type: BackendOpenSearch, Addresses: []string{srv.URL}}, rt)
	require.NoError(t, err)

	count, err := backend.Count(context.Background(), "address-to-zip")
	assert.NoError(t, err)
	assert.Equal(t, 7, count)
	_, err = backend.Search(
		context.Background(), "address-to-zip", LookupQuery{HouseNumber: "12", Address: "Herzl", Size: 3})
	assert.NoError(t, err)

	reqLog.mu.Lock()
	defer reqLog.mu.Unlock()
	require.Len(t, reqLog.auth, 2)
	for _, auth := range reqLog.auth {
		assert.True(t, strings.HasPrefix(
			auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240301/il-central-1/es/aws4_request"), auth)
	}
	assert.Contains(t, reqLog.payload[1], `"house_number"`)
}

func TestOpenSearchConfValidation(t *testing.T) {
	conf := &Conf{Type: BackendOpenSearch}
	assert.Error(t, conf.ValidateAndDefaults())

	conf = &Conf{Type: BackendOpenSearch, Addresses: []string{"localhost:9200"}}
	assert.Error(t, conf.ValidateAndDefaults())

	conf = &Conf{
		Type:      BackendOpenSearch,
		Addresses: []string{"https://search-zips.il-central-1.es.amazonaws.com"},
		SigV4:     &awsconf.Conf{},
	}
	assert.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, "es", conf.SigV4Service)
	assert.NotEmpty(t, conf.SigV4.Region)
}
