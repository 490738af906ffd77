package domain

// Count is a piece-counter reading. A device that could not be reached or
// answered with an unparsable body yields an unknown count; unknown is a
// legitimate terminal value, never zero.
type Count struct {
	Value int64
	Known bool
}

// KnownCount wraps a successful device reading.
func KnownCount(value int64) Count {
	return Count{Value: value, Known: true}
}

// UnknownCount marks an unreadable device.
func UnknownCount() Count {
	return Count{}
}

// Ptr renders the count as a nullable column value.
func (c Count) Ptr() *int64 {
	if !c.Known {
		return nil
	}
	v := c.Value
	return &v
}
