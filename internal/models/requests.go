package models

// CreateStudentRequest is the payload for registering a student.
type CreateStudentRequest struct {
	AdmissionNo   string `json:"admission_no" validate:"required,max=32"`
	FullName      string `json:"full_name" validate:"required,max=128"`
	ClassName     string `json:"class_name" validate:"required,max=64"`
	GuardianName  string `json:"guardian_name" validate:"max=128"`
	GuardianPhone string `json:"guardian_phone" validate:"max=20"`
	GuardianEmail string `json:"guardian_email" validate:"omitempty,email"`
}

// UpdateStudentRequest is the payload for editing a student profile.
type UpdateStudentRequest struct {
	AdmissionNo   *string `json:"admission_no" validate:"omitempty,max=32"`
	FullName      *string `json:"full_name" validate:"omitempty,max=128"`
	ClassName     *string `json:"class_name" validate:"omitempty,max=64"`
	GuardianName  *string `json:"guardian_name" validate:"omitempty,max=128"`
	GuardianPhone *string `json:"guardian_phone" validate:"omitempty,max=20"`
	GuardianEmail *string `json:"guardian_email" validate:"omitempty,email"`
	Active        *bool   `json:"active"`
}

// RosterImportResult summarises a CSV roster upload.
type RosterImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// CreateTermRequest creates a DRAFT academic term.
type CreateTermRequest struct {
	Year int `json:"year" validate:"required,min=2000,max=2100"`
	Term int `json:"term" validate:"required,min=1,max=3"`
}

// CreateFeeComponentRequest creates a named fee component.
type CreateFeeComponentRequest struct {
	Name          string  `json:"name" validate:"required,max=128"`
	DefaultAmount float64 `json:"default_amount" validate:"gte=0"`
}

// SetFeeAmountRequest sets a class default or student override amount.
type SetFeeAmountRequest struct {
	ComponentID string  `json:"component_id" validate:"required,uuid"`
	Amount      float64 `json:"amount" validate:"gte=0"`
}

// SetDiscountRequest sets the invoice-level discount for one student in a
// term. Zero clears it.
type SetDiscountRequest struct {
	Amount float64 `json:"amount" validate:"gte=0"`
}

// RecordPaymentRequest posts a manual payment.
type RecordPaymentRequest struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Method    string  `json:"method" validate:"required,oneof=CASH BANK CHEQUE"`
	Reference string  `json:"reference" validate:"max=64"`
	Narrative string  `json:"narrative" validate:"max=255"`
}

// CreditActionRequest applies or refunds part of a student's credit.
type CreditActionRequest struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Note      string  `json:"note" validate:"max=255"`
}

// CreditTransferRequest moves credit between two students.
type CreditTransferRequest struct {
	FromStudentID string  `json:"from_student_id" validate:"required,uuid"`
	ToStudentID   string  `json:"to_student_id" validate:"required,uuid,nefield=FromStudentID"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
}

// STKPushRequest initiates an M-Pesa prompt on the payer's handset.
type STKPushRequest struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	Phone     string  `json:"phone" validate:"required,e164"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

// SendRemindersRequest triggers a manual reminder sweep.
type SendRemindersRequest struct {
	MinBalance float64 `json:"min_balance" validate:"gte=0"`
	Channel    string  `json:"channel" validate:"omitempty,oneof=EMAIL WHATSAPP"`
}

// CreateSchoolRequest onboards a new tenant.
type CreateSchoolRequest struct {
	Code string `json:"code" validate:"required,max=16,alphanum"`
	Name string `json:"name" validate:"required,max=128"`
}

// UpdateSchoolRequest edits a tenant's profile.
type UpdateSchoolRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=128"`
	Active *bool   `json:"active"`
}

// UpsertSettingRequest sets one per-school configuration value.
type UpsertSettingRequest struct {
	Key   string `json:"key" validate:"required,max=64"`
	Value string `json:"value" validate:"max=1024"`
}

// CreateUserRequest provisions a staff or guardian account.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required,max=128"`
	Role     string `json:"role" validate:"required,oneof=ADMIN BURSAR GUARDIAN"`
}

// UpdateUserRequest edits an account's profile or status.
type UpdateUserRequest struct {
	FullName *string `json:"full_name" validate:"omitempty,max=128"`
	Role     *string `json:"role" validate:"omitempty,oneof=ADMIN BURSAR GUARDIAN"`
	Active   *bool   `json:"active"`
}
