// Package mail sends the report-ready e-mail through Amazon SES.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/olcbioinformatics/sippr-launcher/internal/config"
	"github.com/olcbioinformatics/sippr-launcher/internal/constants"
	"github.com/olcbioinformatics/sippr-launcher/internal/logging"
)

// Optional SES-only keys. When unset the default AWS credential chain is used.
const (
	EnvAccessKey = "SIPPR_MAIL_ACCESS_KEY_ID"
	EnvSecretKey = "SIPPR_MAIL_SECRET_ACCESS_KEY"
)

// ErrNoRecipients is returned when a message has nobody to go to.
var ErrNoRecipients = errors.New("no mail recipients")

// EmailSender is the part of *sesv2.Client the sender needs.
type EmailSender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Sender delivers plain-text notifications.
type Sender struct {
	client     EmailSender
	from       string
	recipients []string
	logger     *logging.Logger
}

// ReportMessage describes a finished report.
type ReportMessage struct {
	RunName    string
	ReportPath string
	// Location is the archive URL, if the report was archived.
	Location string
	Samples  int
}

// NewSender builds an SES v2 sender from the [mail] section.
func NewSender(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *logging.Logger) (*Sender, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	if cfg.Mail.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Mail.Region))
	}
	if key, secret := os.Getenv(EnvAccessKey), os.Getenv(EnvSecretKey); key != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(sesv2.NewFromConfig(awsCfg), cfg.Mail.From, cfg.MailRecipients(), logger), nil
}

// New wraps an existing SES client.
func New(client EmailSender, from string, recipients []string, logger *logging.Logger) *Sender {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Sender{
		client:     client,
		from:       from,
		recipients: recipients,
		logger:     logger.Component("mail"),
	}
}

// SendText sends one plain-text message to every recipient.
func (s *Sender) SendText(ctx context.Context, subject, body string) error {
	if len(s.recipients) == 0 {
		return ErrNoRecipients
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &s.from,
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Text: &types.Content{Data: &body},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	ev := s.logger.Info().Strs("to", s.recipients).Str("subject", subject)
	if out != nil && out.MessageId != nil {
		ev = ev.Str("message_id", *out.MessageId)
	}
	ev.Msg("Mail sent")
	return nil
}

// ReportReady sends the report-ready message for a run.
func (s *Sender) ReportReady(ctx context.Context, msg ReportMessage) error {
	return s.SendText(ctx, ReportSubject(msg.RunName), ReportBody(msg))
}

// ReportSubject returns the subject line for a finished run.
func ReportSubject(runName string) string {
	return fmt.Sprintf("[%s] GeneSippr report ready: %s", constants.AppName, runName)
}

// ReportBody returns the plain-text body for a finished run.
func ReportBody(msg ReportMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The GeneSippr analysis of run %s has finished.\n\n", msg.RunName)
	if msg.Samples > 0 {
		fmt.Fprintf(&b, "Samples: %d\n", msg.Samples)
	}
	fmt.Fprintf(&b, "Report: %s\n", msg.ReportPath)
	if msg.Location != "" {
		fmt.Fprintf(&b, "Archived copy: %s\n", msg.Location)
	}
	b.WriteString("\n" + constants.DefaultReportFooter + "\n")
	return b.String()
}
