// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeSnip Contributors

//go:build tools

// Package main keeps the integration test stack in go.mod. Those suites only
// compile under the integration tag:
//
//	go test -tags integration ./test/integration/... ./internal/store/...
package main

import (
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"
)
