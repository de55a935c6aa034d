package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"diagnosis-refiner/internal/diagnosis"
	"diagnosis-refiner/internal/pkg/logger"

	"github.com/signintech/gopdf"
)

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error
}

// DejaVuSans covers Cyrillic and Latin; the paths cover Alpine and Debian images.
var defaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
	log          logger.ILogger
}

func NewService(tg TelegramClient, doctorChatID int64, log logger.ILogger) *Service {
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    defaultFontPaths,
		log:          log,
	}
}

// SendEscalationReport hands an escalated session over to the on-call doctor.
// A PDF is sent when it can be rendered, plain text otherwise.
func (s *Service) SendEscalationReport(ctx context.Context, rec diagnosis.Record) error {
	if s.doctorChatID == 0 {
		return fmt.Errorf("doctor chat is not configured")
	}

	caption := fmt.Sprintf("Escalated diagnosis session %s", rec.ID)
	pdf, err := s.Render(rec)
	if err != nil {
		s.log.Warn("REPORT", "PDF rendering failed, sending text report", map[string]interface{}{
			"session_id": rec.ID.String(),
			"error":      err.Error(),
		})
		return s.tgClient.SendMessage(ctx, s.doctorChatID, caption+"\n\n"+strings.Join(reportLines(rec), "\n"))
	}

	fileName := fmt.Sprintf("escalation_%s.pdf", rec.ID.String())
	if err := s.tgClient.SendDocument(ctx, s.doctorChatID, pdf, fileName, caption); err != nil {
		return fmt.Errorf("failed to send escalation report: %w", err)
	}
	s.log.Info("REPORT", "Escalation report sent", map[string]interface{}{
		"session_id": rec.ID.String(),
		"chat_id":    s.doctorChatID,
	})
	return nil
}

func (s *Service) Render(rec diagnosis.Record) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load font for PDF, is ttf-dejavu installed? last error: %v", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 18); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Diagnosis escalation report")
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	for _, line := range reportLines(rec) {
		wrapped, err := pdf.SplitText(line, 500)
		if err != nil {
			wrapped = []string{line}
		}
		for _, l := range wrapped {
			pdf.Cell(nil, l)
			pdf.Br(14)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func reportLines(rec diagnosis.Record) []string {
	lines := []string{
		fmt.Sprintf("Date: %s", time.Now().Format("02.01.2006 15:04")),
		fmt.Sprintf("Session: %s", rec.ID),
		fmt.Sprintf("Status: %s", rec.Status),
		fmt.Sprintf("Refinement rounds: %d", rec.Round),
		fmt.Sprintf("Reported symptoms: %s", joinOrNone(symptomStrings(rec.Evidence))),
		fmt.Sprintf("Denied symptoms: %s", joinOrNone(symptomStrings(rec.Denied))),
	}
	if rec.Reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", rec.Reason))
	}
	if rec.Fallback != nil {
		lines = append(lines, fmt.Sprintf("Tentative diagnosis: %s", *rec.Fallback))
	}
	return lines
}

func symptomStrings[T ~string](ids []T) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
