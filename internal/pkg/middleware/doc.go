// Package middleware provides HTTP middleware for the evaluation server.
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Stop()
//	handler = middleware.RequestLog(log, rl.Middleware(handler))
package middleware
