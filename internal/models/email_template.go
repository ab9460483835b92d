package models

// EmailTemplate defines the structure for email templates stored in the DB.
// Subject and Body are text/template sources.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"template_id" json:"template_id"` // e.g. "notification"
	Locale     string `bson:"locale" json:"locale"`           // e.g. "tr-TR"
	Subject    string `bson:"subject" json:"subject"`
	Body       string `bson:"body" json:"body"`
}
