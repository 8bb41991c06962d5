package enums

import "fmt"

// ReturnRequestStatus tracks the admin review of a return request.
type ReturnRequestStatus string

const (
	ReturnRequestStatusReviewing ReturnRequestStatus = "REVIEWING"
	ReturnRequestStatusApproved  ReturnRequestStatus = "APPROVED"
	ReturnRequestStatusDeclined  ReturnRequestStatus = "DECLINED"
)

var validReturnRequestStatuses = []ReturnRequestStatus{
	ReturnRequestStatusReviewing,
	ReturnRequestStatusApproved,
	ReturnRequestStatusDeclined,
}

func (s ReturnRequestStatus) String() string {
	return string(s)
}

func (s ReturnRequestStatus) IsValid() bool {
	for _, candidate := range validReturnRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReturnRequestStatus converts raw input into a ReturnRequestStatus.
func ParseReturnRequestStatus(value string) (ReturnRequestStatus, error) {
	for _, candidate := range validReturnRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return request status %q", value)
}
