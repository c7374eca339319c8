package emailsvc

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/mulespace/core"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"

	maxSendAttempts  = 3
	firstRetryDelay  = 2 * time.Second
	maxRetryAfterCap = time.Minute
)

// sendgridService delivers notifications through the SendGrid v3 mail API.
// Every mail is tagged with the app category and, for templated mails, the template name,
// so confirmations and password resets can be told apart in the SendGrid activity feed.
type sendgridService struct {
	key        string
	from       *sgmail.Email
	category   string
	env        string
	subjPrefix string
	sandbox    bool
	logger     core.Logger

	api        func(rest.Request) (*rest.Response, error)
	retryDelay time.Duration
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return newSendgridService(conf, logger)
}

func newSendgridService(conf *core.Config, logger core.Logger) *sendgridService {
	from := conf.DefaultFromEmail
	return &sendgridService{
		key:        conf.SendgridApiKey,
		from:       sgmail.NewEmail(from.Name, from.Address),
		category:   strings.ToLower(conf.AppName),
		env:        conf.Env,
		subjPrefix: "[" + conf.AppName + "] ",
		sandbox:    conf.TestMode,
		logger:     logger,
		api:        sendgrid.API,
		retryDelay: firstRetryDelay,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.TemplateName, err), err)
				return
			}
			if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
				return
			}
			if err := svc.deliver(svc.buildMail(*msg)); err != nil {
				svc.logger.Error(fmt.Sprintf("sending email %q to %d recipient(s): %v", msg.Subject, len(msg.To), err), err)
			}
		}()
	}
}

func (svc *sendgridService) buildMail(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject
	p.AddTos(sgEmails(msg.To)...)
	p.AddCCs(sgEmails(msg.Cc)...)
	p.AddBCCs(sgEmails(msg.Bcc)...)

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, at := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     base64.StdEncoding.EncodeToString(at.Content.Bytes()),
			Type:        at.ContentType,
			Filename:    at.Filename,
			Disposition: "attachment",
		})
	}

	m.AddCategories(svc.category)
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}
	if svc.env != "" {
		m.SetCustomArg("env", svc.env)
	}
	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}
	return m
}

// deliver posts the mail, retrying transport failures, 429 and 5xx responses up to maxSendAttempts times.
func (svc *sendgridService) deliver(m *sgmail.SGMailV3) error {
	body := sgmail.GetRequestBody(m)
	delay := svc.retryDelay

	for attempt := 1; ; attempt++ {
		req := sendgrid.GetRequest(svc.key, sendgridEndpoint, sendgridHost)
		req.Method = rest.Post
		req.Body = body

		res, err := svc.api(req)
		switch {
		case err != nil:
			err = errors.Wrap(err, "calling sendgrid")
		case res.StatusCode < http.StatusBadRequest:
			return nil
		case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError:
			err = errors.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
			if wait, ok := retryAfter(res); ok {
				delay = wait
			}
		default:
			return errors.Errorf("sendgrid rejected the mail (%d): %s", res.StatusCode, res.Body)
		}

		if attempt >= maxSendAttempts {
			return errors.Wrapf(err, "giving up after %d attempts", attempt)
		}
		svc.logger.Warn(fmt.Sprintf("sendgrid attempt %d failed, retrying in %s: %v", attempt, delay, err))
		time.Sleep(delay)
		delay *= 2
	}
}

// retryAfter reads the Retry-After header (in seconds), capped to maxRetryAfterCap.
func retryAfter(res *rest.Response) (time.Duration, bool) {
	var vals []string
	for k, v := range res.Headers {
		if strings.EqualFold(k, "Retry-After") {
			vals = v
		}
	}
	if len(vals) == 0 {
		return 0, false
	}
	secs, err := strconv.Atoi(vals[0])
	if err != nil || secs < 0 {
		return 0, false
	}
	if d := time.Duration(secs) * time.Second; d < maxRetryAfterCap {
		return d, true
	}
	return maxRetryAfterCap, true
}

func sgEmails(addrs []mail.Address) []*sgmail.Email {
	emails := make([]*sgmail.Email, 0, len(addrs))
	for _, addr := range addrs {
		emails = append(emails, sgmail.NewEmail(addr.Name, addr.Address))
	}
	return emails
}
