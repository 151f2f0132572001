package model

import "time"

// Draft is a locally stored outgoing message pending send. Drafts are
// created by compose, deleted explicitly or on successful send; there is
// no partial edit.
type Draft struct {
	DraftID string `json:"draft_id"`
	Account string `json:"account"`

	// From is filled from the account configuration at compose time and
	// checked against it again by the send pipeline.
	From Address `json:"from"`

	To  []Address `json:"to"`
	Cc  []Address `json:"cc,omitempty"`
	Bcc []Address `json:"bcc,omitempty"`

	Subject  string  `json:"subject"`
	BodyText string  `json:"body_text"`
	BodyHTML *string `json:"body_html,omitempty"`

	// Reply linkage: set when the draft replies to a cached conversation,
	// carried onto the outgoing In-Reply-To/References headers.
	ReplyToConvID string   `json:"reply_to_conv_id,omitempty"`
	InReplyTo     string   `json:"in_reply_to,omitempty"`
	References    []string `json:"references,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Recipients returns all recipient addresses across To, Cc, and Bcc.
func (d *Draft) Recipients() []Address {
	out := make([]Address, 0, len(d.To)+len(d.Cc)+len(d.Bcc))
	out = append(out, d.To...)
	out = append(out, d.Cc...)
	out = append(out, d.Bcc...)
	return out
}
