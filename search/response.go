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
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Response is a transport independent response of the lookup handler
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type errorBody struct {
	Error string `json:"error"`
}

func corsHeaders(origin string) map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  origin,
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Methods": "OPTIONS,POST,GET",
	}
}

func errorResponse(status int, err error, origin string) Response {
	body, _ := json.Marshal(errorBody{Error: err.Error()})
	return Response{
		StatusCode: status,
		Headers:    corsHeaders(origin),
		Body:       string(body),
	}
}

// PreflightResponse answers CORS preflight requests
func PreflightResponse(origin string) Response {
	return Response{
		StatusCode: http.StatusOK,
		Headers:    corsHeaders(origin),
	}
}

// HandleLookup processes a raw lookup request payload. It never
// fails. Invalid requests produce a response with status 400,
// search failures a response with status 500.
func HandleLookup(ctx context.Context, service *Service, payload []byte) Response {
	origin := service.CORSAllowOrigin()
	text, err := ParseLookupRequest(payload)
	if err != nil {
		log.Warn().Err(err).Msg("invalid lookup request")
		return errorResponse(http.StatusBadRequest, err, origin)
	}
	result, err := service.Lookup(ctx, text)
	if IsClientError(err) {
		log.Warn().Err(err).Str("text", text).Msg("invalid lookup request")
		return errorResponse(http.StatusBadRequest, err, origin)

	} else if err != nil {
		log.Error().Err(err).Str("text", text).Msg("address lookup failed")
		return errorResponse(http.StatusInternalServerError, err, origin)
	}
	body, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode lookup result")
		return errorResponse(http.StatusInternalServerError, err, origin)
	}
	return Response{
		StatusCode: http.StatusOK,
		Headers:    corsHeaders(origin),
		Body:       string(body),
	}
}
