// Package health reports liveness and readiness of the gateway.
//
// Liveness is a fixed payload. Readiness runs every registered check
// concurrently under a deadline and fails when any critical check fails:
//
//	checker := health.NewChecker(version,
//	    health.WithCheck(health.StoreCheck(store)),
//	    health.WithCheck(health.BackendCheck(client, health.WithCritical(false))),
//	)
//	router.GET("/health", checker.HealthHandler())
//	router.GET("/ready", checker.ReadinessHandler())
package health
