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

package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Http holds HTTP server configuration.
type Http struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	AccessLog       bool   `mapstructure:"accessLog"`
	ReadTimeout     int    `mapstructure:"readTimeout"`
	WriteTimeout    int    `mapstructure:"writeTimeout"`
	IdleTimeout     int    `mapstructure:"idleTimeout"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"`
	BodyLimit       int    `mapstructure:"bodyLimit"` // bytes; uploads go through here
}

// SetDefaults normalizes HTTP configuration.
func (h *Http) SetDefaults() {
	if h.Host == "" {
		h.Host = "127.0.0.1"
	}
	if h.Port == 0 {
		h.Port = 8080
	}
	if h.ReadTimeout == 0 {
		h.ReadTimeout = 60
	}
	if h.WriteTimeout == 0 {
		h.WriteTimeout = 60
	}
	if h.IdleTimeout == 0 {
		h.IdleTimeout = 60
	}
	if h.ShutdownTimeout == 0 {
		h.ShutdownTimeout = 10
	}
	if h.BodyLimit == 0 {
		h.BodyLimit = 500 * 1024 * 1024 // chunk parts can be large
	}
}

// Status pairs an application code with its default message.
type Status struct {
	Code int
	Msg  string
}

var (
	OK                             = Status{0, "success"}
	Failed                         = Status{1, "request failed"}
	BadRequest                     = Status{400, "bad request"}
	NotFound                       = Status{404, "not found"}
	Conflict                       = Status{409, "conflict"}
	RequestParameterParsingFailed  = Status{422, "request parameter parsing failed"}
	InternalError                  = Status{500, "internal error"}
	Timeout                        = Status{504, "timed out"}
)

// WithRep writes the success envelope.
func WithRep(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"code":    OK.Code,
		"message": OK.Msg,
		"data":    data,
	})
}

// WithRepStatus writes the success envelope with an explicit HTTP status.
func WithRepStatus(c *fiber.Ctx, httpStatus int, data any) error {
	return c.Status(httpStatus).JSON(fiber.Map{
		"code":    OK.Code,
		"message": OK.Msg,
		"data":    data,
	})
}

// WithRepErrMsg writes the error envelope.
func WithRepErrMsg(c *fiber.Ctx, code int, msg string, path string) error {
	httpStatus := fiber.StatusBadRequest
	switch code {
	case NotFound.Code:
		httpStatus = fiber.StatusNotFound
	case Conflict.Code:
		httpStatus = fiber.StatusConflict
	case RequestParameterParsingFailed.Code:
		httpStatus = fiber.StatusUnprocessableEntity
	case InternalError.Code:
		httpStatus = fiber.StatusInternalServerError
	case Timeout.Code:
		httpStatus = fiber.StatusGatewayTimeout
	}
	return c.Status(httpStatus).JSON(fiber.Map{
		"code":    code,
		"message": msg,
		"path":    path,
	})
}

// QueryInt returns the int value of a query parameter, 0 when absent.
func QueryInt(c *fiber.Ctx, key string) int {
	value := c.Query(key)
	if value == "" {
		return 0
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return intValue
}
