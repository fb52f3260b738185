// Package handlers contains the health checks, authentication, and
// reusable middleware behind the HTTP server.
//
// # Health Checks
//
// CompositeHealthChecker runs named dependency probes in parallel and
// aggregates them into one report:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewDatabaseCheck(db))
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//	checker.AddCheck("evaluator", handlers.NewEvaluatorCheck(evaluatorClient))
//
//	status := checker.Check(ctx)
//
// # Service-Key Authentication
//
// Mutating endpoints are called only by trusted collaborators (the identity
// provider and the content frontend), each holding a long-lived service key.
// The server stores bcrypt hashes of those keys, never the keys themselves:
//
//	auth := handlers.NewServiceKeyAuth("X-Service-Key", hashes)
//	mux.Handle("POST /api/v1/progress/{userId}/lesson", auth.Middleware(lessonHandler))
//
// With no hashes configured the middleware rejects every request.
//
// # Middleware
//
// The remaining middleware follows the standard func(http.Handler)
// http.Handler shape and is composed by the server's middleware chain.
package handlers
