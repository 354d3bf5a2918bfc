// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"medgateway/internal/api/http/middleware"
	"medgateway/pkg/log"
)

// RegisterRoutes 注册全部路由。
// 健康与指标是运维端点，不要求调用方身份；业务端点都在身份中间件之后。
func RegisterRoutes(srv *server.Hertz, h *Handler, logger *log.Logger, rateLimitRPS int, enableCORS bool) {
	srv.Use(middleware.Recovery(logger))
	if enableCORS {
		srv.Use(middleware.CORS())
	}
	srv.Use(middleware.RateLimit(rateLimitRPS))

	srv.GET("/api/health", h.Health)
	srv.GET("/api/metrics", h.Metrics)

	api := srv.Group("/api", middleware.Identity())
	api.GET("/tools", h.Tools)
	api.POST("/invoke", h.Invoke)
	api.POST("/converse", h.Converse)
	api.GET("/audit", h.Audit)
}
