package dto

// CreateStudentRequest registers a student profile with enrollments, weak
// topics and availability in one call.
type CreateStudentRequest struct {
	ID           string        `json:"id"`
	FullName     string        `json:"fullName" validate:"required"`
	Courses      []string      `json:"courses" validate:"required,min=1,dive,required"`
	WeakTopics   []string      `json:"weakTopics"`
	Availability []WindowInput `json:"availability" validate:"omitempty,dive"`
}

// StudentPayload is the response form of a stored student snapshot.
type StudentPayload struct {
	ID           string          `json:"id"`
	FullName     string          `json:"fullName"`
	Active       bool            `json:"active"`
	Courses      []string        `json:"courses"`
	WeakTopics   []string        `json:"weakTopics,omitempty"`
	Availability []WindowPayload `json:"availability,omitempty"`
}
