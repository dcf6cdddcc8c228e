package domain

import (
	"sort"
	"time"
)

type CollectionStatus string

const (
	CollectionActive           CollectionStatus = "active"
	CollectionPaused           CollectionStatus = "paused"
	CollectionAwaitingResponse CollectionStatus = "awaiting_response"
	CollectionPendingReview    CollectionStatus = "pending_review"
	CollectionCompleted        CollectionStatus = "completed"
	CollectionEscalated        CollectionStatus = "escalated"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Collection is one per-invoice outreach case following a playbook.
type Collection struct {
	ID                  string           `db:"id" json:"id"`
	TenantID            string           `db:"tenant_id" json:"tenantId"`
	InvoiceID           string           `db:"invoice_id" json:"invoiceId"`
	CompanyID           string           `db:"company_id" json:"companyId"`
	PrimaryContactID    string           `db:"primary_contact_id" json:"primaryContactId"`
	PlaybookID          string           `db:"playbook_id" json:"playbookId"`
	Status              CollectionStatus `db:"status" json:"status"`
	CurrentMessageIndex int              `db:"current_message_index" json:"currentMessageIndex"`
	MessagesSentCount   int              `db:"messages_sent_count" json:"messagesSentCount"`
	LastMessageSentAt   *time.Time       `db:"last_message_sent_at" json:"lastMessageSentAt,omitempty"`
	NextActionAt        *time.Time       `db:"next_action_at" json:"nextActionAt,omitempty"`
	CustomerResponded   bool             `db:"customer_responded" json:"customerResponded"`
	PauseReason         *string          `db:"pause_reason" json:"pauseReason,omitempty"`
	StartedAt           time.Time        `db:"started_at" json:"startedAt"`
	CompletedAt         *time.Time       `db:"completed_at" json:"completedAt,omitempty"`
}

type Step struct {
	ID                   string  `db:"id" json:"id"`
	PlaybookID           string  `db:"playbook_id" json:"playbookId"`
	SequenceOrder        int     `db:"sequence_order" json:"sequenceOrder"`
	Channel              Channel `db:"channel" json:"channel"`
	SubjectTemplate      string  `db:"subject_template" json:"subjectTemplate"`
	BodyTemplate         string  `db:"body_template" json:"bodyTemplate"`
	WaitDays             int     `db:"wait_days" json:"waitDays"`
	SendOnlyIfNoResponse bool    `db:"send_only_if_no_response" json:"sendOnlyIfNoResponse"`
}

type Playbook struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Steps []Step `json:"steps"`
}

// OrderedSteps returns a copy of the steps sorted by sequence order.
func (p Playbook) OrderedSteps() []Step {
	steps := make([]Step, len(p.Steps))
	copy(steps, p.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].SequenceOrder < steps[j].SequenceOrder
	})
	return steps
}

type Invoice struct {
	ID            string    `db:"id" json:"id"`
	InvoiceNumber string    `db:"invoice_number" json:"invoiceNumber"`
	Amount        float64   `db:"amount" json:"amount"`
	Currency      string    `db:"currency" json:"currency"`
	DueDate       time.Time `db:"due_date" json:"dueDate"`
}

type Company struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Contact struct {
	ID        string  `db:"id" json:"id"`
	FirstName string  `db:"first_name" json:"firstName"`
	LastName  string  `db:"last_name" json:"lastName"`
	Email     string  `db:"email" json:"email"`
	Phone     *string `db:"phone" json:"phone,omitempty"`
}

// DueCollection is the composed read the worker operates on. Its shape does
// not depend on how many queries or joins were needed to assemble it.
type DueCollection struct {
	Collection Collection
	Playbook   Playbook
	Invoice    Invoice
	Company    Company
	Contact    Contact
}

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryFailed    DeliveryStatus = "failed"
)

// SentMessage is the audit record of one dispatched step.
type SentMessage struct {
	ID                string         `db:"id" json:"id"`
	TenantID          string         `db:"tenant_id" json:"tenantId"`
	CollectionID      string         `db:"collection_id" json:"collectionId"`
	ContactID         string         `db:"contact_id" json:"contactId"`
	StepID            *string        `db:"step_id" json:"stepId,omitempty"`
	MessageIndex      int            `db:"message_index" json:"messageIndex"`
	Channel           Channel        `db:"channel" json:"channel"`
	Subject           *string        `db:"subject" json:"subject,omitempty"`
	Body              string         `db:"body" json:"body"`
	ExternalMessageID *string        `db:"external_message_id" json:"externalMessageId,omitempty"`
	DeliveryStatus    DeliveryStatus `db:"delivery_status" json:"deliveryStatus"`
	SentAt            time.Time      `db:"sent_at" json:"sentAt"`
	DeliveredAt       *time.Time     `db:"delivered_at" json:"deliveredAt,omitempty"`
}
