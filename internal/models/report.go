package models

// DashboardSummary aggregates the headline figures shown on the school
// dashboard. Served from cache when available.
type DashboardSummary struct {
	SchoolID          string  `json:"school_id"`
	TermID            string  `json:"term_id"`
	TermLabel         string  `json:"term_label"`
	StudentCount      int     `json:"student_count"`
	TotalInvoiced     float64 `json:"total_invoiced"`
	TotalCollected    float64 `json:"total_collected"`
	TotalOutstanding  float64 `json:"total_outstanding"`
	TotalCredit       float64 `json:"total_credit"`
	DefaulterCount    int     `json:"defaulter_count"`
	MpesaSuccessRate  float64 `json:"mpesa_success_rate"`
	CollectionsToday  float64 `json:"collections_today"`
}

// MethodTotal is one payment-method slice of collections.
type MethodTotal struct {
	Method PaymentMethod `db:"method" json:"method"`
	Total  float64       `db:"total" json:"total"`
	Count  int           `db:"count" json:"count"`
}

// DailyTotal is collections for one calendar day.
type DailyTotal struct {
	Day   string  `db:"day" json:"day"`
	Total float64 `db:"total" json:"total"`
}

// ClassOutstanding is the owed total per class.
type ClassOutstanding struct {
	ClassName   string  `db:"class_name" json:"class_name"`
	Outstanding float64 `db:"outstanding" json:"outstanding"`
	Students    int     `db:"students" json:"students"`
}

// Defaulter is one student over the outstanding-balance threshold.
type Defaulter struct {
	StudentID     string  `db:"student_id" json:"student_id"`
	AdmissionNo   string  `db:"admission_no" json:"admission_no"`
	FullName      string  `db:"full_name" json:"full_name"`
	ClassName     string  `db:"class_name" json:"class_name"`
	GuardianPhone string  `db:"guardian_phone" json:"guardian_phone"`
	Balance       float64 `db:"balance" json:"balance"`
}
