// Package history stores processed documents for pro users.
//
// Free users keep their history on the client; the server only
// accepts items from users whose subscription grants entitlement.
package history

import (
	"time"
)

// DocType is the kind of document produced from a transcript
type DocType string

const (
	DocSummary            DocType = "SUMMARY"
	DocEmailDraft         DocType = "EMAIL_DRAFT"
	DocMeetingNotes       DocType = "MEETING_NOTES"
	DocLinkedInPost       DocType = "LINKEDIN_POST"
	DocTweetThread        DocType = "TWEET_THREAD"
	DocBlogPost           DocType = "BLOG_POST"
	DocNewsletter         DocType = "NEWSLETTER"
	DocPressRelease       DocType = "PRESS_RELEASE"
	DocProductDescription DocType = "PRODUCT_DESCRIPTION"
	DocVideoScript        DocType = "VIDEO_SCRIPT"
	DocPodcastOutline     DocType = "PODCAST_OUTLINE"
	DocSalesPitch         DocType = "SALES_PITCH"
	DocBugReport          DocType = "BUG_REPORT"
	DocDesignFeedback     DocType = "DESIGN_FEEDBACK"
	DocBrainstorm         DocType = "BRAINSTORM"
)

// Length controls how long the generated document is
type Length string

const (
	LengthVeryConcise  Length = "VERY_CONCISE"
	LengthConcise      Length = "CONCISE"
	LengthBalanced     Length = "BALANCED"
	LengthDetailed     Length = "DETAILED"
	LengthVeryDetailed Length = "VERY_DETAILED"
)

// Style is the writing register of the generated document
type Style string

const (
	StyleConversational Style = "CONVERSATIONAL"
	StyleProfessional   Style = "PROFESSIONAL"
	StyleCreative       Style = "CREATIVE"
	StyleDirect         Style = "DIRECT"
	StyleTechnical      Style = "TECHNICAL"
)

var (
	docTypes = map[DocType]bool{
		DocSummary: true, DocEmailDraft: true, DocMeetingNotes: true, DocLinkedInPost: true,
		DocTweetThread: true, DocBlogPost: true, DocNewsletter: true, DocPressRelease: true,
		DocProductDescription: true, DocVideoScript: true, DocPodcastOutline: true,
		DocSalesPitch: true, DocBugReport: true, DocDesignFeedback: true, DocBrainstorm: true,
	}
	lengths = map[Length]bool{
		LengthVeryConcise: true, LengthConcise: true, LengthBalanced: true,
		LengthDetailed: true, LengthVeryDetailed: true,
	}
	styles = map[Style]bool{
		StyleConversational: true, StyleProfessional: true, StyleCreative: true,
		StyleDirect: true, StyleTechnical: true,
	}
)

// Settings are the processing options a document was generated with
type Settings struct {
	DocType DocType `json:"doc_type"`
	Length  Length  `json:"length"`
	Style   Style   `json:"style"`
}

// Validate checks that every option is a known value
func (s Settings) Validate() error {
	if !docTypes[s.DocType] {
		return &InvalidSettingError{Field: "doc_type", Value: string(s.DocType)}
	}
	if !lengths[s.Length] {
		return &InvalidSettingError{Field: "length", Value: string(s.Length)}
	}
	if !styles[s.Style] {
		return &InvalidSettingError{Field: "style", Value: string(s.Style)}
	}
	return nil
}

// Item is one saved document
type Item struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Transcript string    `json:"transcript"`
	Result     string    `json:"result"`
	Settings   Settings  `json:"settings"`
	CreatedAt  time.Time `json:"created_at"`
}
