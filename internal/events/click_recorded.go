package events

// ClickRecorded is emitted when a redirect attempt reaches an existing live link.
type ClickRecorded struct {
	EventID    string `json:"eventId"`
	Code       string `json:"code"`
	URLID      string `json:"urlId"`
	Referrer   string `json:"referrer,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	OccurredAt string `json:"occurredAt"`
}
