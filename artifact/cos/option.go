//
// Tencent is pleased to support the open source community by making trpc-adk-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-adk-go is licensed under the Apache License Version 2.0.
//
//

package cos

import (
	"net/http"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// Option configures the COS artifact service.
type Option func(*options)

type options struct {
	client     client
	httpClient *http.Client

	timeout   time.Duration
	secretID  string
	secretKey string
}

// WithClient sets a pre-configured COS client. It takes precedence over the
// other options.
func WithClient(c *cos.Client) Option {
	return func(o *options) {
		o.client = newCosClient(c)
	}
}

// WithHTTPClient sets the HTTP client used for COS requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithSecretID sets the COS secret ID. Defaults to the COS_SECRETID
// environment variable.
func WithSecretID(secretID string) Option {
	return func(o *options) {
		o.secretID = secretID
	}
}

// WithSecretKey sets the COS secret key. Defaults to the COS_SECRETKEY
// environment variable.
func WithSecretKey(secretKey string) Option {
	return func(o *options) {
		o.secretKey = secretKey
	}
}
