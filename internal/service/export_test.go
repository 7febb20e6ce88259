package service

import "time"

// SetClock replaces the time source used for token issuance and validation.
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// SetClock replaces the time source used for issue timestamps.
func (s *IssueService) SetClock(now func() time.Time) {
	s.now = now
}
