package notify

import (
	"fmt"
	"strings"

	"leadbridge/internal/models"
)

type Message struct {
	Subject string
	Body    string
}

var subjects = map[models.EventType]string{
	models.EventLeadCreated:      "New lead",
	models.EventLeadUpdated:      "Lead updated",
	models.EventNoteAdded:        "New note",
	models.EventMeetingScheduled: "Meeting scheduled",
	models.EventMeetingCompleted: "Meeting completed",
	models.EventDealCreated:      "Deal created",
	models.EventDealUpdated:      "Deal updated",
	models.EventCommissionReady:  "Commission ready",
	models.EventCommissionPaid:   "Commission paid",
	models.EventCallbackDue:      "Callback due",
}

func Render(ev models.LeadEvent, lead models.Lead) Message {
	subject, ok := subjects[ev.EventType]
	if !ok {
		subject = string(ev.EventType)
	}

	var b strings.Builder
	if ev.Description != "" {
		b.WriteString(ev.Description)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Client: %s\n", lead.ClientName())
	if lead.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", lead.ClientPhone)
	}
	if note, _ := ev.PayloadMap()["note"].(string); note != "" && ev.EventType == models.EventCallbackDue {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}
	fmt.Fprintf(&b, "Lead #%d", lead.ID)
	if ev.DealID != nil {
		fmt.Fprintf(&b, ", deal #%d", *ev.DealID)
	}

	return Message{
		Subject: fmt.Sprintf("%s: %s", subject, lead.ClientName()),
		Body:    b.String(),
	}
}
