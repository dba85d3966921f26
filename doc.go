// Package cerberus provides adaptive admission control for HTTP services.
//
// Cerberus decides, per client and per endpoint, whether a request should
// be admitted right now. It combines classic rate-limiting algorithms
// (sliding window, token bucket, leaky bucket, fixed window) with adaptive
// policy layers that tighten or relax limits based on where a client
// connects from, how it has behaved, and how long it has been around.
//
// # Quick Start
//
// Install Cerberus:
//
//	go install github.com/kadirpekel/cerberus/cmd/cerberus@latest
//
// Create a configuration:
//
//	yaml
//	limits:
//	  default:
//	    algorithm: sliding_window
//	    capacity: 100
//	    window: 1m
//	  endpoints:
//	    /api/search:
//	      algorithm: token_bucket
//	      capacity: 20
//	      window: 1m
//
//	store:
//	  backend: redis
//	  redis:
//	    addr: localhost:6379
//
// Start the server:
//
//	cerberus serve --config cerberus.yaml
//
// # Using as Go Library
//
// Embed the engine directly in your service:
//
//	import (
//	    "github.com/kadirpekel/cerberus/pkg/admission"
//	    "github.com/kadirpekel/cerberus/pkg/ratelimit"
//	)
//
// Wrap any http.Handler with admission.Middleware, or call
// Controller.Evaluate yourself for non-HTTP workloads.
//
// # Key Features
//
//   - **Multiple Algorithms**: sliding window log, token bucket, leaky
//     bucket, and fixed window, selectable per endpoint
//   - **Adaptive Policies**: geographic tiers, behavior-based reputation,
//     suspicious request detection, and new-client warmup
//   - **Shared State**: Redis-backed counters for multi-instance
//     deployments, atomic via server-side scripts
//   - **Graceful Degradation**: circuit breaker with configurable
//     fail-open or fail-closed fallback when the store is unhealthy
//   - **Violation Backoff**: escalating retry hints for repeat offenders
//
// # Architecture
//
// Every decision flows through one pipeline:
//
//	Request → Policy Compositor → Algorithm Executor → Counter Store
//
// The compositor adjusts the base limit for the caller, the executor runs
// the endpoint's algorithm against the adjusted limit, and the store keeps
// the counters. Outcome reports feed the behavior scorer, closing the loop.
//
// # Documentation
//
// For complete documentation, see:
//   - [README](https://github.com/kadirpekel/cerberus/blob/main/README.md)
//   - [API Reference](https://godoc.org/github.com/kadirpekel/cerberus)
//
// # License
//
// AGPL-3.0 - See LICENSE.md for details.
package cerberus
