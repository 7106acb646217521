package domain

// TimetableEntry is one weekly class slot, e.g. {"Mon", "9:00 AM", "Data Structures"}.
type TimetableEntry struct {
	Day     string
	Time    string
	Subject string
}
