package bootstrap

import "encoding/json"

// Preferences is written over the owner's settings column on every run.
// It must stay free of timestamps or random values so repeated writes are
// identical.
type Preferences struct {
	UserActivated          bool                   `json:"userActivated"`
	NotificationsEnabled   bool                   `json:"notificationsEnabled"`
	PersonalizationAnswers PersonalizationAnswers `json:"personalizationAnswers"`
}

// PersonalizationAnswers pre-fills the onboarding survey so the editor does
// not block on it.
type PersonalizationAnswers struct {
	Version        string `json:"version"`
	CompanySize    string `json:"companySize"`
	CompanyType    string `json:"companyType"`
	Role           string `json:"role"`
	ReportedSource string `json:"reportedSource"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		UserActivated:        true,
		NotificationsEnabled: true,
		PersonalizationAnswers: PersonalizationAnswers{
			Version:        "v4",
			CompanySize:    "personalUser",
			CompanyType:    "personal",
			Role:           "other",
			ReportedSource: "other",
		},
	}
}

func (p Preferences) encode() ([]byte, error) {
	return json.Marshal(p)
}
