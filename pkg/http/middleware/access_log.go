// Copyright 2026 AskAnna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package middleware

import (
	"time"

	"github.com/askanna-io/runcore/pkg/log"
	"github.com/gofiber/fiber/v2"
)

// Part uploads routinely take longer than a regular API call, so the slow
// threshold is generous enough to keep healthy chunk traffic out of the log.
const slowRequest = 2 * time.Second

// AccessLogMiddleware logs failed and slow requests. Successful fast
// requests stay quiet; chunked upload traffic would otherwise drown the log.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		elapsed := time.Since(start)
		status := c.Response().StatusCode()
		if err == nil && status < fiber.StatusBadRequest && elapsed < slowRequest {
			return nil
		}

		log.Warnw("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"bytesIn", len(c.Body()),
			"elapsed", elapsed,
			"ip", c.IP(),
			"error", err,
		)
		return err
	}
}
