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

package main

import (
	"net/http"

	"github.com/czcorpus/cnc-gokit/uniresp"
	"github.com/gin-gonic/gin"
)

type Actions struct {
	services *services
	version  VersionInfo
}

// Overview shows the state of the search backend, the default index
// and the dead letter processing.
func (a *Actions) Overview(ctx *gin.Context) {
	ans := make(map[string]any)
	ans["version"] = a.version
	backendOK := true
	if err := a.services.backend.Ping(ctx.Request.Context()); err != nil {
		backendOK = false
		ans["backendError"] = err.Error()
	}
	ans["backendOk"] = backendOK
	indexName := a.services.conf.SearchBackend.IndexName
	if backendOK {
		count, err := a.services.backend.Count(ctx.Request.Context(), indexName)
		if err != nil {
			ans["index"] = map[string]any{"name": indexName, "error": err.Error()}

		} else {
			ans["index"] = map[string]any{"name": indexName, "numDocs": count}
		}
	}
	if a.services.keeper != nil {
		ans["deadLetter"] = a.services.keeper.GetStats()
	}
	if a.services.cleaner != nil {
		ans["cleaner"] = a.services.cleaner.GetStats()
	}
	if a.services.rds != nil {
		qlen, err := a.services.rds.QueueLength(a.services.conf.DeadLetter.QueueKey)
		if err != nil {
			uniresp.RespondWithErrorJSON(ctx, err, http.StatusInternalServerError)
			return
		}
		ans["deadLetterQueueLength"] = qlen
	}
	uniresp.WriteJSONResponse(ctx.Writer, ans)
}
