// Package httputil provides HTTP helpers shared by the admin handlers: JSON
// responses, request decoding with struct validation, path parameters and
// common middleware.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteConflict(w, "role is still assigned")
//
// # Request Helpers
//
//	var req CreateRoleRequest
//	if !httputil.DecodeAndValidate(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	router.Use(httputil.RequestIDMiddleware, httputil.RecoveryMiddleware(logger))
package httputil
