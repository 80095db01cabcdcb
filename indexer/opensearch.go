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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"zipfinder/awsconf"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/rs/zerolog/log"
)

// sigV4Transport signs outgoing requests the way Amazon OpenSearch
// Service expects them.
type sigV4Transport struct {
	next        http.RoundTripper
	signer      *v4.Signer
	credentials aws.CredentialsProvider
	region      string
	service     string
	now         func() time.Time
}

func (t *sigV4Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	signed := req.Clone(req.Context())
	var payload []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
		payload = data
		signed.Body = io.NopCloser(bytes.NewReader(payload))
		signed.ContentLength = int64(len(payload))
	}
	creds, err := t.credentials.Retrieve(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	hash := sha256.Sum256(payload)
	err = t.signer.SignHTTP(
		req.Context(), creds, signed, hex.EncodeToString(hash[:]), t.service, t.region, t.now())
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	return t.next.RoundTrip(signed)
}

func parseNodeURLs(addresses []string) ([]*url.URL, error) {
	ans := make([]*url.URL, 0, len(addresses))
	for _, addr := range addresses {
		u, err := url.Parse(strings.TrimRight(addr, "/"))
		if err != nil {
			return []*url.URL{}, fmt.Errorf("invalid node address %s: %w", addr, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return []*url.URL{}, fmt.Errorf("invalid node address %s: missing http(s) scheme", addr)
		}
		ans = append(ans, u)
	}
	return ans, nil
}

func newOpenSearchBackend(conf *Conf, rt http.RoundTripper) (*ElasticBackend, error) {
	urls, err := parseNodeURLs(conf.Addresses)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}
	tp, err := elastictransport.New(elastictransport.Config{
		URLs:      urls,
		Username:  conf.Username,
		Password:  conf.Password,
		Transport: rt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
	}
	return &ElasticBackend{client: esapi.New(tp)}, nil
}

// NewOpenSearchBackend creates a backend for an OpenSearch cluster.
// With the `sigV4` section configured, requests are signed using
// AWS credentials (Amazon OpenSearch Service).
func NewOpenSearchBackend(ctx context.Context, conf *Conf) (*ElasticBackend, error) {
	var rt http.RoundTripper = http.DefaultTransport
	if conf.SigV4 != nil {
		awsCfg, err := awsconf.Load(ctx, conf.SigV4)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenSearch client: %w", err)
		}
		rt = &sigV4Transport{
			next:        rt,
			signer:      v4.NewSigner(),
			credentials: awsCfg.Credentials,
			region:      awsCfg.Region,
			service:     conf.SigV4Service,
			now:         time.Now,
		}
		log.Info().
			Str("region", awsCfg.Region).
			Str("service", conf.SigV4Service).
			Msg("OpenSearch requests will be signed with AWS SigV4")
	}
	return newOpenSearchBackend(conf, rt)
}
