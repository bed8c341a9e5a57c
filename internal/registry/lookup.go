package registry

// FindByGlobalID performs the linear scan spec.md §4.6 calls for: at most
// MaxRequestsPerClient entries, so a map index would be overkill for the
// gain.
func (c *Client) FindByGlobalID(globalID uint32) (listenerKey int, req *Request, ok bool) {
	for key, r := range c.Requests {
		if r.GlobalID == globalID {
			return key, r, true
		}
	}
	return 0, nil, false
}
