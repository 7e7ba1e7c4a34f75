// Package instrumentation provides OpenTelemetry instrumentation for the provider.
//
// Metrics are recorded through pre-registered instruments on Metrics; spans are
// opened through Tracer. When Config.Enabled is false every provider is a no-op
// and recording costs nothing.
//
// # Prometheus
//
// With MetricsExporter set to "prometheus" (the default when enabled), metrics
// are collected by an sdk MeterProvider backed by the OpenTelemetry Prometheus
// exporter and a private registry. MetricsHandler serves that registry:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:        true,
//		ServiceName:    "oidc-provider",
//		ServiceVersion: version,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
//	mux.Handle("GET /metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint} (ms)
//
// OAuth Flows:
//   - oauth.authorization.started{client_id}
//   - oauth.code.exchanged{client_id, pkce_method}
//   - oauth.token.refreshed{client_id, rotated}
//   - oauth.token.revoked{client_id}
//   - oauth.token.issued{token_use}
//   - oauth.userinfo.served
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.pkce.validation_failed{method}
//   - oauth.code.reuse_detected
//   - oauth.token.reuse_detected
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} (ms)
//   - storage.replay.entries (gauge, registered by stores)
//
// # Security
//
// Never put credentials into span attributes or metric labels. The Attr*
// constants in tracing.go name metadata only.
package instrumentation
