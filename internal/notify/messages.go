package notify

import (
	"fmt"
	"strings"

	"circleburo/internal/events"
	"circleburo/internal/models"
	"circleburo/internal/service"
)

// FormatMessage текст уведомления для сотрудников.
func FormatMessage(event *events.Event) (string, error) {
	p, err := event.DecodeLead()
	if err != nil {
		return "", fmt.Errorf("decode lead payload: %w", err)
	}

	var b strings.Builder
	switch event.Type {
	case events.EventLeadCreated:
		b.WriteString("🆕 Новая заявка на консультацию\n\n")
	case events.EventLeadStatusChanged:
		fmt.Fprintf(&b, "🔄 Статус заявки #%d: %s → %s\n\n", p.LeadID, p.PreviousStatus.Label(), p.Status.Label())
	case events.EventLeadDeleted:
		fmt.Fprintf(&b, "🗑 Заявка #%d удалена\n\n", p.LeadID)
	case events.EventLeadNotesUpdated:
		fmt.Fprintf(&b, "📝 Заметки к заявке #%d обновлены\n\n", p.LeadID)
	default:
		return "", fmt.Errorf("unknown event type %q", event.Type)
	}

	fmt.Fprintf(&b, "Имя: %s\n", p.Name)
	fmt.Fprintf(&b, "Телефон: %s\n", service.FormatPhone(p.Phone))
	fmt.Fprintf(&b, "Встреча: %s в %s\n", displayDate(p.MeetingDate), p.MeetingTime)
	if event.Type != events.EventLeadStatusChanged {
		fmt.Fprintf(&b, "Статус: %s\n", p.Status.Label())
	}
	if p.ChangedBy != "" && event.Type != events.EventLeadCreated {
		fmt.Fprintf(&b, "Изменил: %s\n", p.ChangedBy)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func displayDate(key string) string {
	d, err := models.ParseDate(key)
	if err != nil {
		return key
	}
	return d.Format(models.DisplayDateLayout)
}
