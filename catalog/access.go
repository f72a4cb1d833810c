package catalog

// ApprovedOnly is the clause prepended to the queries of unauthorized callers.
const ApprovedOnly = "display_status:(approved) AND "

// RestrictToApproved limits unauthorized callers to approved records.
// Authorized callers get query back unchanged.
func RestrictToApproved(query string, authorized bool) string {
	if authorized {
		return query
	}
	return ApprovedOnly + query
}

// IsAuthorized reports whether the session holds authorized == true.
// A nil session or a missing or non-boolean value means unauthorized.
func IsAuthorized(s Session) bool {
	if s == nil {
		return false
	}
	v, ok := s.Get(AuthorizedKey)
	if !ok {
		return false
	}
	authorized, ok := v.(bool)
	return ok && authorized
}
