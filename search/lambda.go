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

package search

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// LambdaHandler adapts the lookup to AWS Lambda. It accepts both
// API Gateway proxy events and direct invocations with a payload
// like {"zip_code": "Herzl 12, Tel Aviv"}.
type LambdaHandler struct {
	service *Service
}

func toProxyResponse(resp Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}
}

func (h *LambdaHandler) Handle(ctx context.Context, raw json.RawMessage) (events.APIGatewayProxyResponse, error) {
	var proxyReq events.APIGatewayProxyRequest
	if err := json.Unmarshal(raw, &proxyReq); err != nil || proxyReq.HTTPMethod == "" {
		// direct invocation
		return toProxyResponse(HandleLookup(ctx, h.service, raw)), nil
	}
	if proxyReq.HTTPMethod == http.MethodOptions {
		return toProxyResponse(PreflightResponse(h.service.CORSAllowOrigin())), nil
	}
	payload := []byte(proxyReq.Body)
	if proxyReq.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(proxyReq.Body)
		if err != nil {
			return toProxyResponse(
				errorResponse(
					http.StatusBadRequest,
					fmt.Errorf("%w: %s", ErrMalformedRequest, err),
					h.service.CORSAllowOrigin(),
				),
			), nil
		}
		payload = decoded
	}
	if proxyReq.HTTPMethod == http.MethodGet {
		q, ok := proxyReq.QueryStringParameters["q"]
		if ok {
			payload, _ = json.Marshal(q)
		}
	}
	return toProxyResponse(HandleLookup(ctx, h.service, payload)), nil
}

func NewLambdaHandler(service *Service) *LambdaHandler {
	return &LambdaHandler{service: service}
}
