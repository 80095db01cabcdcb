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
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Actions struct {
	service *Service
}

func (a *Actions) writeResponse(ctx *gin.Context, resp Response) {
	for k, v := range resp.Headers {
		ctx.Header(k, v)
	}
	ctx.Data(resp.StatusCode, resp.Headers["Content-Type"], []byte(resp.Body))
}

// Lookup handles POST requests with a JSON payload
// (e.g. {"zip_code": "Herzl 12, Tel Aviv"})
func (a *Actions) Lookup(ctx *gin.Context) {
	payload, err := io.ReadAll(ctx.Request.Body)
	if err != nil {
		a.writeResponse(ctx, errorResponse(http.StatusBadRequest, err, a.service.CORSAllowOrigin()))
		return
	}
	a.writeResponse(ctx, HandleLookup(ctx.Request.Context(), a.service, payload))
}

// LookupByQuery handles GET requests with the address passed
// via the `q` URL argument.
func (a *Actions) LookupByQuery(ctx *gin.Context) {
	payload, err := json.Marshal(ctx.Query("q"))
	if err != nil {
		a.writeResponse(ctx, errorResponse(http.StatusBadRequest, err, a.service.CORSAllowOrigin()))
		return
	}
	a.writeResponse(ctx, HandleLookup(ctx.Request.Context(), a.service, payload))
}

func (a *Actions) Preflight(ctx *gin.Context) {
	resp := PreflightResponse(a.service.CORSAllowOrigin())
	for k, v := range resp.Headers {
		ctx.Header(k, v)
	}
	ctx.Status(resp.StatusCode)
}

func NewActions(service *Service) *Actions {
	return &Actions{service: service}
}
