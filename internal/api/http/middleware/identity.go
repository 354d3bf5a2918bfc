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

package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"medgateway/pkg/auth"
)

// 外层身份网关已完成令牌校验，这里只消费其注入的结果头
const (
	headerSubjectID   = "X-Subject-Id"
	headerRole        = "X-Role"
	headerPermissions = "X-Permissions"
)

// Identity 身份提取中间件：缺失主体或角色直接 401，不进入业务处理
func Identity() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		id := auth.Identity{
			SubjectID: string(c.GetHeader(headerSubjectID)),
			Role:      string(c.GetHeader(headerRole)),
		}
		if raw := string(c.GetHeader(headerPermissions)); raw != "" {
			for _, p := range strings.Split(raw, ",") {
				if p = strings.TrimSpace(p); p != "" {
					id.Permissions = append(id.Permissions, p)
				}
			}
		}

		if !id.Valid() {
			c.JSON(consts.StatusUnauthorized, map[string]string{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		c.Next(auth.WithIdentity(ctx, id))
	}
}
