package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/gabelle.json.
const wellKnownManifest = `{
  "name": "Gabelle",
  "description": "Metered OCR service for marketplace SaaS subscriptions",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization"
  },
  "endpoints": {
    "landing": "/api/v1/landing",
    "landing_details": "/api/v1/landing/details",
    "documents": "/api/v1/documents",
    "admin_usage": "/api/v1/admin/usage",
    "admin_records": "/api/v1/admin/usage/records"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static Gabelle well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
