// Package auth provides authentication middleware for the cric-alert REST API.
//
// APIKey(mode, header, key) returns a gin middleware that validates the API
// key carried in the named HTTP header.
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware aborts with 401 and a JSON {"error": ...} body. CORS
// preflight requests are never challenged.
package auth
