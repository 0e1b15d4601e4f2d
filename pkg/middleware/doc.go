// Package middleware provides HTTP middleware for caller identity and rate limiting.
//
// # Overview
//
// Identity trusts a header set by the upstream session provider and stores the
// admin user id in the request context. Credentials are never validated here.
//
//	router.Use(middleware.Identity("X-Admin-User-ID"))
//
// RateLimit throttles requests per admin user, falling back to the client IP for
// unauthenticated calls. The limiter is either process-local or shared via Redis.
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
//	router.Use(middleware.RateLimit(limiter, logger))
//
//	shared := middleware.NewDistributedRateLimiter(redisClient, cfg, "ratelimit:admin")
//	router.Use(middleware.RateLimit(shared, logger))
//
// Distributed limiting fails open when Redis is unreachable.
package middleware
