package mail

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	err   error
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestReportReady(t *testing.T) {
	ses := &fakeSES{}
	s := New(ses, "lab@example.org", []string{"a@example.org", "b@example.org"}, nil)

	err := s.ReportReady(context.Background(), ReportMessage{
		RunName:    "161104_M02466_0002_000000000-AV4G5",
		ReportPath: "/out/161104_M02466_0002_000000000-AV4G5_gar_2024-03-01.pdf",
		Location:   "s3://lab/gar/161104_M02466_0002_000000000-AV4G5_gar_2024-03-01.pdf",
		Samples:    12,
	})
	if err != nil {
		t.Fatalf("ReportReady() error = %v", err)
	}

	in := ses.input
	if aws.ToString(in.FromEmailAddress) != "lab@example.org" {
		t.Errorf("from = %q", aws.ToString(in.FromEmailAddress))
	}
	if len(in.Destination.ToAddresses) != 2 {
		t.Errorf("to = %v", in.Destination.ToAddresses)
	}
	subject := aws.ToString(in.Content.Simple.Subject.Data)
	if !strings.Contains(subject, "161104_M02466_0002_000000000-AV4G5") {
		t.Errorf("subject %q does not name the run", subject)
	}
	body := aws.ToString(in.Content.Simple.Body.Text.Data)
	for _, want := range []string{"Samples: 12", "_gar_2024-03-01.pdf", "Archived copy: s3://lab/"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestReportBodyWithoutArchive(t *testing.T) {
	body := ReportBody(ReportMessage{RunName: "run1", ReportPath: "/out/run1_gar.pdf"})
	if strings.Contains(body, "Archived copy") {
		t.Errorf("body mentions an archive that does not exist:\n%s", body)
	}
	if strings.Contains(body, "Samples:") {
		t.Errorf("body lists zero samples:\n%s", body)
	}
}

func TestSendErrors(t *testing.T) {
	s := New(&fakeSES{}, "lab@example.org", nil, nil)
	if err := s.SendText(context.Background(), "s", "b"); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("SendText() without recipients error = %v", err)
	}

	sesErr := errors.New("MessageRejected")
	s = New(&fakeSES{err: sesErr}, "lab@example.org", []string{"a@example.org"}, nil)
	if err := s.SendText(context.Background(), "s", "b"); !errors.Is(err, sesErr) {
		t.Errorf("SendText() error = %v, want wrapped %v", err, sesErr)
	}
}
