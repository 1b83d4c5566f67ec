package service

import (
	"fmt"

	"github.com/noah-isme/libstats-api/internal/models"
	"github.com/noah-isme/libstats-api/pkg/mailer"
)

const noticeDateLayout = "2 January 2006 15:04 MST"

// broadcastMessage builds the yearly announcement email from the content
// stored on the session.
func broadcastMessage(session *models.SurveySession, to []string) mailer.Message {
	subject := session.BroadcastSubject
	if subject == "" {
		subject = fmt.Sprintf("Library statistics survey %d", session.AcademicYear)
	}
	body := session.BroadcastBody
	if body == "" {
		body = fmt.Sprintf(
			"The %d library statistics survey runs from %s until %s. Please submit your data through the portal before the closing date.",
			session.AcademicYear,
			session.OpeningDate.Format(noticeDateLayout),
			session.ClosingDate.Format(noticeDateLayout),
		)
	}
	return mailer.Message{Subject: subject, Body: body, To: to}
}

func openUserNotice(session *models.SurveySession, to []string) mailer.Message {
	return mailer.Message{
		Subject: fmt.Sprintf("Survey %d forms are now open", session.AcademicYear),
		Body: fmt.Sprintf(
			"Data entry forms for the %d library statistics survey are now open. The survey closes on %s.",
			session.AcademicYear,
			session.ClosingDate.Format(noticeDateLayout),
		),
		To: to,
	}
}

func openAdminNotice(session *models.SurveySession, to []string) mailer.Message {
	return mailer.Message{
		Subject: fmt.Sprintf("Survey %d opened", session.AcademicYear),
		Body: fmt.Sprintf(
			"Forms for the %d survey were opened and participating libraries have been notified. The survey closes on %s.",
			session.AcademicYear,
			session.ClosingDate.Format(noticeDateLayout),
		),
		To: to,
	}
}

func closeUserNotice(session *models.SurveySession, to []string) mailer.Message {
	return mailer.Message{
		Subject: fmt.Sprintf("Survey %d forms are now closed", session.AcademicYear),
		Body: fmt.Sprintf(
			"The %d library statistics survey closed on %s. Submitted data is now locked for review. Thank you for participating.",
			session.AcademicYear,
			session.ClosingDate.Format(noticeDateLayout),
		),
		To: to,
	}
}

func closeAdminNotice(session *models.SurveySession, to []string) mailer.Message {
	return mailer.Message{
		Subject: fmt.Sprintf("Survey %d closed", session.AcademicYear),
		Body: fmt.Sprintf(
			"Forms for the %d survey were closed and every library record was verified locked. Participating libraries have been notified.",
			session.AcademicYear,
		),
		To: to,
	}
}
