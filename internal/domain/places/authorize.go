package places

// Authorize allows a mutation only when the verified requester owns the
// resource. An empty requester never matches.
func Authorize(requesterID, ownerID string) error {
	if requesterID == "" || requesterID != ownerID {
		return ErrForbidden
	}
	return nil
}
