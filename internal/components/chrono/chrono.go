package chrono

import "time"

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	Now() time.Time
	Location() *time.Location
}

// StandardImpl is the standard implementation of TimeAPI using the standard library,
// times are returned in the portal's timezone.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(timezone string) (StandardImpl, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}
